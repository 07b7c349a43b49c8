package correlation

import (
	"sort"
	"sync"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/params"
)

// Result is the in-memory outcome of one correlation pass. Getters return
// parameters in first-seen order.
type Result struct {
	ShowDecoded bool

	mu          sync.RWMutex
	params      []*CorrelatedParam
	byValue     map[string]*CorrelatedParam
	cookies     map[string]*cookieAccumulator
	diagnostics []Diagnostic
	messages    int
}

func newResult(showDecoded bool) *Result {
	return &Result{
		ShowDecoded: showDecoded,
		byValue:     make(map[string]*CorrelatedParam),
		cookies:     make(map[string]*cookieAccumulator),
	}
}

func (r *Result) add(inst *params.ParamInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byValue[inst.DecodedValue]; ok {
		p.add(inst)
	} else {
		p = newCorrelatedParam(inst)
		r.byValue[inst.DecodedValue] = p
		r.params = append(r.params, p)
	}

	if inst.Location == params.LocationCookie {
		acc, ok := r.cookies[inst.Name]
		if !ok {
			acc = newCookieAccumulator(inst.Name)
			r.cookies[inst.Name] = acc
		}
		acc.observe(inst)
	}
}

func (r *Result) addDiagnostic(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d)
}

// Params returns every correlated parameter regardless of location
func (r *Result) Params() []*CorrelatedParam {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*CorrelatedParam, len(r.params))
	copy(out, r.params)
	return out
}

func (r *Result) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.params)
}

// MessageCount is the number of message pairs processed
func (r *Result) MessageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.messages
}

// ByLocation filters by the location of each parameter's first instance
func (r *Result) ByLocation(loc params.Location) []*CorrelatedParam {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*CorrelatedParam
	for _, p := range r.params {
		if p.Location == loc {
			out = append(out, p)
		}
	}
	return out
}

func (r *Result) URLParameters() []*CorrelatedParam    { return r.ByLocation(params.LocationURL) }
func (r *Result) BodyParameters() []*CorrelatedParam   { return r.ByLocation(params.LocationBody) }
func (r *Result) CookieParameters() []*CorrelatedParam { return r.ByLocation(params.LocationCookie) }
func (r *Result) JSONParameters() []*CorrelatedParam   { return r.ByLocation(params.LocationJSON) }
func (r *Result) RESTParameters() []*CorrelatedParam   { return r.ByLocation(params.LocationREST) }

// ParamSecrets is the subset flagged as secret by the user or a matcher
func (r *Result) ParamSecrets() []*CorrelatedParam {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*CorrelatedParam
	for _, p := range r.params {
		if p.IsSecret() {
			out = append(out, p)
		}
	}
	return out
}

// Lookup finds the parameter carrying a decoded value
func (r *Result) Lookup(value string) (*CorrelatedParam, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byValue[value]
	return p, ok
}

// ByFingerprint finds a parameter by its exported id
func (r *Result) ByFingerprint(fp string) (*CorrelatedParam, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.params {
		if p.Fingerprint() == fp {
			return p, true
		}
	}
	return nil, false
}

func (r *Result) Diagnostics() []Diagnostic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Diagnostic, len(r.diagnostics))
	copy(out, r.diagnostics)
	return out
}

// CookieStatistics summarises cookie instances per name, ordered by name
func (r *Result) CookieStatistics() []CookieStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CookieStats, 0, len(r.cookies))
	for _, acc := range r.cookies {
		out = append(out, acc.stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear drops all correlation state
func (r *Result) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = nil
	r.byValue = make(map[string]*CorrelatedParam)
	r.cookies = make(map[string]*cookieAccumulator)
	r.diagnostics = nil
	r.messages = 0
}

// CookieStats describes how one cookie behaved across the capture
type CookieStats struct {
	Name         string `json:"name"`
	RequestCount int    `json:"request_count"`
	SetCount     int    `json:"set_count"`
	UniqueValues int    `json:"unique_values"`
	MinLength    int    `json:"min_length"`
	MaxLength    int    `json:"max_length"`
	FirstSeen    int    `json:"first_seen"`
	LastSeen     int    `json:"last_seen"`
}

type cookieAccumulator struct {
	CookieStats
	values map[string]struct{}
}

func newCookieAccumulator(name string) *cookieAccumulator {
	return &cookieAccumulator{
		CookieStats: CookieStats{Name: name, MinLength: -1, FirstSeen: -1, LastSeen: -1},
		values:      make(map[string]struct{}),
	}
}

func (a *cookieAccumulator) observe(inst *params.ParamInstance) {
	if inst.Direction == capture.Response {
		a.SetCount++
	} else {
		a.RequestCount++
	}
	a.values[inst.DecodedValue] = struct{}{}

	n := len(inst.DecodedValue)
	if a.MinLength == -1 || n < a.MinLength {
		a.MinLength = n
	}
	if n > a.MaxLength {
		a.MaxLength = n
	}

	idx := inst.MessageIndex()
	if a.FirstSeen == -1 || idx < a.FirstSeen {
		a.FirstSeen = idx
	}
	if idx > a.LastSeen {
		a.LastSeen = idx
	}
}

func (a *cookieAccumulator) stats() CookieStats {
	s := a.CookieStats
	s.UniqueValues = len(a.values)
	return s
}

func (r *Result) countMessage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages++
}
