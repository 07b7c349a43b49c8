package params

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ErrParse marks a message that could not be decomposed into parameters
var ErrParse = errors.New("unable to parse message")

type header struct {
	name       string
	value      string
	valueStart int
}

// message is the decomposed head and body of one raw HTTP message.
// All offsets are relative to the start of the raw bytes.
type message struct {
	startLine string
	headers   []header
	body      []byte
	bodyStart int
}

func parseMessage(raw []byte) (*message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrParse)
	}

	headEnd, bodyStart := len(raw), len(raw)
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i != -1 {
		headEnd, bodyStart = i, i+4
	} else if i := bytes.Index(raw, []byte("\n\n")); i != -1 {
		headEnd, bodyStart = i, i+2
	}

	m := &message{body: raw[bodyStart:], bodyStart: bodyStart}

	offset := 0
	head := raw[:headEnd]
	first := true
	for offset <= len(head) {
		end := bytes.IndexByte(head[offset:], '\n')
		var line []byte
		if end == -1 {
			line = head[offset:]
			end = len(head) - offset
		} else {
			line = head[offset : offset+end]
		}
		line = bytes.TrimRight(line, "\r")

		if first {
			m.startLine = string(line)
			first = false
		} else if colon := bytes.IndexByte(line, ':'); colon > 0 {
			valueStart := colon + 1
			for valueStart < len(line) && (line[valueStart] == ' ' || line[valueStart] == '\t') {
				valueStart++
			}
			m.headers = append(m.headers, header{
				name:       string(bytes.TrimSpace(line[:colon])),
				value:      string(bytes.TrimRight(line[valueStart:], " \t")),
				valueStart: offset + valueStart,
			})
		}
		offset += end + 1
	}

	if strings.TrimSpace(m.startLine) == "" {
		return nil, fmt.Errorf("%w: missing start line", ErrParse)
	}
	return m, nil
}

func (m *message) header(name string) (header, bool) {
	for _, h := range m.headers {
		if strings.EqualFold(h.name, name) {
			return h, true
		}
	}
	return header{}, false
}

func (m *message) headersNamed(name string) []header {
	var out []header
	for _, h := range m.headers {
		if strings.EqualFold(h.name, name) {
			out = append(out, h)
		}
	}
	return out
}

func (m *message) mediaType() (string, map[string]string) {
	h, ok := m.header("Content-Type")
	if !ok {
		return "", nil
	}
	mt, params, err := mime.ParseMediaType(h.value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(h.value, ";", 2)[0])), nil
	}
	return mt, params
}

// requestTarget is the parsed request line of a request message
type requestTarget struct {
	method     string
	target     string
	offset     int // offset of target within the message
	pathStart  int // index into target
	queryStart int // index into target of the first query byte, -1 if none
	queryEnd   int
}

func (t requestTarget) path() string {
	end := len(t.target)
	if t.queryStart != -1 {
		end = t.queryStart - 1
	} else if i := strings.IndexByte(t.target, '#'); i != -1 {
		end = i
	}
	if t.pathStart > end {
		return ""
	}
	return t.target[t.pathStart:end]
}

func (t requestTarget) query() string {
	if t.queryStart == -1 {
		return ""
	}
	return t.target[t.queryStart:t.queryEnd]
}

func parseRequestLine(line string) (requestTarget, error) {
	sp1 := strings.IndexByte(line, ' ')
	if sp1 <= 0 {
		return requestTarget{}, fmt.Errorf("%w: malformed request line %q", ErrParse, truncate(line, 64))
	}
	rest := line[sp1+1:]
	sp2 := strings.LastIndexByte(rest, ' ')
	if sp2 <= 0 || !strings.HasPrefix(rest[sp2+1:], "HTTP/") {
		return requestTarget{}, fmt.Errorf("%w: malformed request line %q", ErrParse, truncate(line, 64))
	}
	method := line[:sp1]
	for _, c := range method {
		if c < 'A' || c > 'Z' {
			return requestTarget{}, fmt.Errorf("%w: invalid method %q", ErrParse, truncate(method, 16))
		}
	}

	t := requestTarget{
		method:     method,
		target:     rest[:sp2],
		offset:     sp1 + 1,
		queryStart: -1,
	}

	// absolute-form targets carry scheme and authority before the path
	if i := strings.Index(t.target, "://"); i != -1 && i < strings.IndexAny(t.target+"/?", "/?") {
		slash := strings.IndexAny(t.target[i+3:], "/?")
		if slash == -1 {
			t.pathStart = len(t.target)
		} else {
			t.pathStart = i + 3 + slash
		}
	}

	if q := strings.IndexByte(t.target, '?'); q != -1 {
		t.queryStart = q + 1
		t.queryEnd = len(t.target)
		if h := strings.IndexByte(t.target[q:], '#'); h != -1 {
			t.queryEnd = q + h
		}
	}
	return t, nil
}

func isResponseLine(line string) bool {
	return strings.HasPrefix(line, "HTTP/")
}

// pair is one name/value split out of a delimited list, with offsets relative
// to the list start
type pair struct {
	name       string
	value      string
	valueStart int
	valueEnd   int
}

// splitPairs splits "a=1&b=2" style lists. Entries without '=' yield an empty
// value positioned after the name.
func splitPairs(s string, sep byte, trimSpace bool) []pair {
	var out []pair
	offset := 0
	for offset <= len(s) {
		end := strings.IndexByte(s[offset:], sep)
		if end == -1 {
			end = len(s) - offset
		}
		piece := s[offset : offset+end]
		start := offset
		if trimSpace {
			trimmed := strings.TrimLeft(piece, " \t")
			start += len(piece) - len(trimmed)
			piece = strings.TrimRight(trimmed, " \t")
		}
		if piece != "" {
			if eq := strings.IndexByte(piece, '='); eq != -1 {
				out = append(out, pair{
					name:       piece[:eq],
					value:      piece[eq+1:],
					valueStart: start + eq + 1,
					valueEnd:   start + len(piece),
				})
			} else {
				out = append(out, pair{
					name:       piece,
					valueStart: start + len(piece),
					valueEnd:   start + len(piece),
				})
			}
		}
		offset += end + 1
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
