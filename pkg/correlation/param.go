package correlation

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/twmb/murmur3"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/params"
)

// CorrelatedParam groups every instance sharing one decoded value. The first
// instance seen fixes the representative name and location.
type CorrelatedParam struct {
	RepresentativeName string
	DecodedValue       string
	Location           params.Location

	mu        sync.RWMutex
	instances []*params.ParamInstance
	names     []string

	marked  atomic.Bool
	matched atomic.Bool
}

func newCorrelatedParam(first *params.ParamInstance) *CorrelatedParam {
	p := &CorrelatedParam{
		RepresentativeName: first.Name,
		DecodedValue:       first.DecodedValue,
		Location:           first.Location,
	}
	p.add(first)
	return p
}

func (p *CorrelatedParam) add(inst *params.ParamInstance) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.instances = append(p.instances, inst)
	for _, n := range p.names {
		if n == inst.Name {
			return
		}
	}
	p.names = append(p.names, inst.Name)
}

// Instances returns a copy of the instances in capture order
func (p *CorrelatedParam) Instances() []*params.ParamInstance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*params.ParamInstance, len(p.instances))
	copy(out, p.instances)
	return out
}

func (p *CorrelatedParam) InstanceCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.instances)
}

// Names lists the distinct parameter names carrying this value, first seen first
func (p *CorrelatedParam) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

func (p *CorrelatedParam) Earliest() *params.ParamInstance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.instances) == 0 {
		return nil
	}
	return p.instances[0]
}

// FirstIn returns the earliest instance on the given side of an exchange
func (p *CorrelatedParam) FirstIn(dir capture.Direction) *params.ParamInstance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, inst := range p.instances {
		if inst.Direction == dir {
			return inst
		}
	}
	return nil
}

// DisplayValue is the decoded value, or the raw form of the first instance
func (p *CorrelatedParam) DisplayValue(showDecoded bool) string {
	if showDecoded {
		return p.DecodedValue
	}
	if first := p.Earliest(); first != nil {
		return first.RawValue
	}
	return p.DecodedValue
}

// MarkSecret sets the user flag and reports whether it was newly set
func (p *CorrelatedParam) MarkSecret() bool {
	return p.marked.CompareAndSwap(false, true)
}

func (p *CorrelatedParam) UnmarkSecret() {
	p.marked.Store(false)
}

// Marked reports the user flag only
func (p *CorrelatedParam) Marked() bool {
	return p.marked.Load()
}

// SetMatched records the outcome of secret classification
func (p *CorrelatedParam) SetMatched(matched bool) {
	p.matched.Store(matched)
}

func (p *CorrelatedParam) IsSecret() bool {
	return p.marked.Load() || p.matched.Load()
}

// Key identifies the parameter by value and representative name
func (p *CorrelatedParam) Key() string {
	return p.DecodedValue + "\x00" + p.RepresentativeName
}

// Fingerprint is a stable short id safe to log and expose instead of the value
func (p *CorrelatedParam) Fingerprint() string {
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(p.Key())))
}

func (p *CorrelatedParam) String() string {
	return fmt.Sprintf("%s=%s", p.RepresentativeName, p.DecodedValue)
}
