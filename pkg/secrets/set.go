package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
)

// Set is the active secret list. Custom secrets are keyed by name, imported
// secrets by value.
type Set struct {
	mu      sync.RWMutex
	secrets []*Secret
	logger  *logger.Logger
}

func NewSet(log *logger.Logger, initial ...*Secret) (*Set, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Set{logger: log.WithComponent("secrets")}
	for _, sec := range initial {
		if err := s.Add(sec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) indexOf(name string) int {
	for i, sec := range s.secrets {
		if sec.Kind != KindImported && sec.Name == name {
			return i
		}
	}
	return -1
}

func (s *Set) importedIndex(value string) int {
	for i, sec := range s.secrets {
		if sec.Kind == KindImported && sec.Match == value {
			return i
		}
	}
	return -1
}

// Add appends a secret. Custom names must be unique; an imported value that
// is already present is ignored.
func (s *Set) Add(sec *Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sec.Kind == KindImported {
		if s.importedIndex(sec.Match) == -1 {
			s.secrets = append(s.secrets, sec)
		}
		return nil
	}
	if s.indexOf(sec.Name) != -1 {
		return fmt.Errorf("%w: %s", ErrDuplicateName, sec.Name)
	}
	s.secrets = append(s.secrets, sec)
	return nil
}

// AddCustom validates and adds a user rule; a rejected rule leaves the set unchanged
func (s *Set) AddCustom(name string, isRegex bool, match string) (*Secret, error) {
	sec, err := NewCustom(name, isRegex, match)
	if err != nil {
		s.logger.Warnw("Rejected secret definition", "name", name, "error", err)
		return nil, err
	}
	if err := s.Add(sec); err != nil {
		return nil, err
	}
	s.logger.Debugw("Secret added", "name", name, "kind", sec.Kind.String())
	return sec, nil
}

// Update replaces a custom secret's definition in place
func (s *Set) Update(name string, isRegex bool, match string) (*Secret, error) {
	sec, err := NewCustom(name, isRegex, match)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(name)
	if i == -1 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSecret, name)
	}
	s.secrets[i] = sec
	return sec, nil
}

// Remove deletes a custom secret by name
func (s *Set) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(name)
	if i == -1 {
		return false
	}
	s.secrets = append(s.secrets[:i], s.secrets[i+1:]...)
	return true
}

// RemoveImported deletes the imported secret for p's value and clears p's mark
func (s *Set) RemoveImported(p *correlation.CorrelatedParam) bool {
	p.UnmarkSecret()

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.importedIndex(p.DecodedValue)
	if i == -1 {
		return false
	}
	s.secrets = append(s.secrets[:i], s.secrets[i+1:]...)
	return true
}

// RemoveAllImported drops every imported secret, clears the marks on ps and
// returns how many secrets were removed
func (s *Set) RemoveAllImported(ps []*correlation.CorrelatedParam) int {
	for _, p := range ps {
		if p.Marked() {
			p.UnmarkSecret()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.secrets[:0]
	for _, sec := range s.secrets {
		if sec.Kind != KindImported {
			kept = append(kept, sec)
		}
	}
	removed := len(s.secrets) - len(kept)
	clear(s.secrets[len(kept):])
	s.secrets = kept
	return removed
}

// Import adds an imported secret for every marked parameter not yet imported
// and returns the newly added secrets
func (s *Set) Import(params []*correlation.CorrelatedParam) []*Secret {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []*Secret
	for _, p := range params {
		if !p.Marked() || s.importedIndex(p.DecodedValue) != -1 {
			continue
		}
		sec := NewImported(p)
		s.secrets = append(s.secrets, sec)
		added = append(added, sec)
	}
	return added
}

// Secrets returns a snapshot in insertion order
func (s *Set) Secrets() []*Secret {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Secret, len(s.secrets))
	copy(out, s.secrets)
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.secrets)
}

// Clone copies the set so a run can classify against a stable snapshot
func (s *Set) Clone() *Set {
	return &Set{secrets: s.Secrets(), logger: s.logger}
}

// Matching lists every secret that matches p
func (s *Set) Matching(p *correlation.CorrelatedParam) []*Secret {
	var out []*Secret
	for _, sec := range s.Secrets() {
		if sec.Matches(p) {
			out = append(out, sec)
		}
	}
	return out
}

// ClassifyAll classifies every parameter and returns the secret ones in input order
func (s *Set) ClassifyAll(ctx context.Context, params []*correlation.CorrelatedParam) []*correlation.CorrelatedParam {
	snapshot := s.Secrets()
	var out []*correlation.CorrelatedParam
	for _, p := range params {
		if !Classify(p, snapshot) {
			continue
		}
		out = append(out, p)
		for _, sec := range snapshot {
			if sec.Matches(p) {
				s.logger.LogSecretMatch(ctx, p.RepresentativeName, p.Fingerprint(), sec.Name)
				break
			}
		}
	}
	return out
}
