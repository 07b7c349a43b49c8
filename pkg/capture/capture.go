// Package capture holds the captured HTTP exchanges the analysis core consumes.
package capture

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction identifies which side of an exchange a byte range belongs to
type Direction int

const (
	Request Direction = iota
	Response
)

func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

// MessagePair is one captured request/response exchange
type MessagePair struct {
	ID       string
	Index    int
	URL      string
	Host     string
	Request  []byte
	Response []byte
	Time     time.Time
}

// HasResponse reports whether the exchange captured a response
func (m *MessagePair) HasResponse() bool {
	return len(m.Response) > 0
}

// Raw returns the bytes of one side of the exchange
func Raw(m *MessagePair, d Direction) []byte {
	if m == nil {
		return nil
	}
	if d == Response {
		return m.Response
	}
	return m.Request
}

// Source enumerates captured message pairs in capture order
type Source interface {
	Messages(ctx context.Context) ([]*MessagePair, error)
}

// MemorySource is an in-memory capture set
type MemorySource struct {
	pairs []*MessagePair
}

// NewMemorySource numbers the pairs in the order given
func NewMemorySource(pairs ...*MessagePair) *MemorySource {
	s := &MemorySource{}
	for _, p := range pairs {
		s.Append(p)
	}
	return s
}

// Append adds a pair at the end of the capture
func (s *MemorySource) Append(p *MessagePair) {
	p.Index = len(s.pairs)
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.pairs = append(s.pairs, p)
}

func (s *MemorySource) Messages(ctx context.Context) ([]*MessagePair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*MessagePair, len(s.pairs))
	copy(out, s.pairs)
	return out, nil
}

func (s *MemorySource) Len() int {
	return len(s.pairs)
}

// Scope restricts analysis to a set of hosts. An empty scope admits everything.
type Scope struct {
	Hosts []string
}

// InScope matches the pair host exactly or against a "*.example.com" suffix rule
func (s Scope) InScope(p *MessagePair) bool {
	if len(s.Hosts) == 0 {
		return true
	}
	host := strings.ToLower(p.Host)
	if i := strings.LastIndexByte(host, ':'); i != -1 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	for _, h := range s.Hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if strings.HasPrefix(h, "*.") {
			suffix := h[1:]
			if strings.HasSuffix(host, suffix) || host == h[2:] {
				return true
			}
			continue
		}
		if host == h {
			return true
		}
	}
	return false
}

// Filter keeps the in-scope pairs, preserving order and indexes
func (s Scope) Filter(pairs []*MessagePair) []*MessagePair {
	if len(s.Hosts) == 0 {
		return pairs
	}
	out := make([]*MessagePair, 0, len(pairs))
	for _, p := range pairs {
		if s.InScope(p) {
			out = append(out, p)
		}
	}
	return out
}
