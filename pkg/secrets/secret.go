// Package secrets decides which correlated parameters carry sensitive values.
package secrets

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/correlation"
)

var (
	ErrInvalidPattern = errors.New("invalid secret pattern")
	ErrDuplicateName  = errors.New("secret name already defined")
	ErrUnknownSecret  = errors.New("unknown secret")
)

// ConfigError rejects a user supplied secret definition
type ConfigError struct {
	Name    string
	Pattern string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("secret %q: %v", e.Name, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidPattern, e.Err}
}

// Kind tags the Secret variant
type Kind int

const (
	KindExact Kind = iota
	KindRegex
	KindImported
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "EXACT"
	case KindRegex:
		return "REGEX"
	case KindImported:
		return "IMPORTED"
	default:
		return fmt.Sprintf("KIND(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Secret is either a user defined exact/regex rule or a value imported from a
// parameter the user marked
type Secret struct {
	Name  string
	Kind  Kind
	Match string

	re *regexp.Regexp
}

// NewCustom builds an exact or regex secret. Regexes compile once here; an
// invalid pattern yields a *ConfigError and no secret.
func NewCustom(name string, isRegex bool, match string) (*Secret, error) {
	if name == "" {
		return nil, &ConfigError{Name: name, Pattern: match, Err: errors.New("name is required")}
	}
	if match == "" {
		return nil, &ConfigError{Name: name, Pattern: match, Err: errors.New("match is required")}
	}
	if !isRegex {
		return &Secret{Name: name, Kind: KindExact, Match: match}, nil
	}
	re, err := regexp.Compile(match)
	if err != nil {
		return nil, &ConfigError{Name: name, Pattern: match, Err: err}
	}
	return &Secret{Name: name, Kind: KindRegex, Match: match, re: re}, nil
}

func mustCustom(name, pattern string) *Secret {
	s, err := NewCustom(name, true, pattern)
	if err != nil {
		panic(err)
	}
	return s
}

// NewImported turns a marked parameter into a secret matching its exact value
func NewImported(p *correlation.CorrelatedParam) *Secret {
	return &Secret{Name: p.RepresentativeName, Kind: KindImported, Match: p.DecodedValue}
}

func (s *Secret) IsRegex() bool {
	return s.Kind == KindRegex
}

// Matches compares against the decoded value. Exact and imported secrets need
// full equality, never containment.
func (s *Secret) Matches(p *correlation.CorrelatedParam) bool {
	return s.MatchesValue(p.DecodedValue)
}

func (s *Secret) MatchesValue(v string) bool {
	switch s.Kind {
	case KindRegex:
		return s.re.MatchString(v)
	default:
		return v == s.Match
	}
}

func (s *Secret) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.Name)
}

// Classify sets the parameter's matched flag from secrets and reports whether
// the parameter is now considered secret
func Classify(p *correlation.CorrelatedParam, secrets []*Secret) bool {
	matched := false
	for _, s := range secrets {
		if s.Matches(p) {
			matched = true
			break
		}
	}
	p.SetMatched(matched)
	return p.IsSecret()
}
