// Package tracker infers which parameter a value originated from.
package tracker

import (
	"fmt"
	"sync"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
)

const displayLimit = 32

// TrackedParameter is a graph vertex wrapping a correlated parameter and the
// parameters it was inferred to originate from
type TrackedParameter struct {
	Param *correlation.CorrelatedParam

	mu      sync.RWMutex
	origins []*TrackedParameter
}

func NewTrackedParameter(p *correlation.CorrelatedParam) *TrackedParameter {
	return &TrackedParameter{Param: p}
}

// Key is the logical identity used by the graph model
func (t *TrackedParameter) Key() string {
	return t.Param.Key()
}

// ID is safe to expose outside the process
func (t *TrackedParameter) ID() string {
	return t.Param.Fingerprint()
}

// Origins returns the inferred origins in discovery order
func (t *TrackedParameter) Origins() []*TrackedParameter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*TrackedParameter, len(t.origins))
	copy(out, t.origins)
	return out
}

func (t *TrackedParameter) HasSelfOrigin() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, o := range t.origins {
		if o == t {
			return true
		}
	}
	return false
}

// setOrigins replaces the origin set in one step
func (t *TrackedParameter) setOrigins(origins []*TrackedParameter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.origins = origins
}

func (t *TrackedParameter) String() string {
	value := t.Param.DecodedValue
	if len(value) > displayLimit {
		value = value[:displayLimit] + "..."
	}
	return fmt.Sprintf("%s=%s", t.Param.RepresentativeName, value)
}
