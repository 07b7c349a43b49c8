package secrets

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Definition is one entry of a secrets file:
//
//	secrets:
//	  - name: session-id
//	    regex: true
//	    match: "^[A-F0-9]{32}$"
type Definition struct {
	Name  string `yaml:"name" json:"name" validate:"required,max=128"`
	Regex bool   `yaml:"regex" json:"regex"`
	Match string `yaml:"match" json:"match" validate:"required"`
}

type definitionsFile struct {
	Secrets []Definition `yaml:"secrets"`
}

var validate = validator.New()

// LoadFile reads secret definitions from a YAML file
func LoadFile(path string) ([]*Secret, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses definitions. Invalid entries are skipped and reported together
// in the returned error; the valid secrets are returned alongside it.
func Load(r io.Reader) ([]*Secret, error) {
	var doc definitionsFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse secret definitions: %w", err)
	}

	var (
		out  []*Secret
		errs []error
		seen = make(map[string]bool)
	)
	for i, def := range doc.Secrets {
		if err := validate.Struct(def); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, &ConfigError{Name: def.Name, Pattern: def.Match, Err: err}))
			continue
		}
		if seen[def.Name] {
			errs = append(errs, fmt.Errorf("entry %d: %w: %s", i, ErrDuplicateName, def.Name))
			continue
		}
		sec, err := NewCustom(def.Name, def.Regex, def.Match)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		seen[def.Name] = true
		out = append(out, sec)
	}
	return out, errors.Join(errs...)
}

// Definitions converts custom secrets back to their file form; imported
// secrets are session specific and skipped
func Definitions(secrets []*Secret) []Definition {
	var out []Definition
	for _, s := range secrets {
		if s.Kind == KindImported {
			continue
		}
		out = append(out, Definition{Name: s.Name, Regex: s.IsRegex(), Match: s.Match})
	}
	return out
}

// Write stores custom secrets as YAML
func Write(w io.Writer, secrets []*Secret) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(definitionsFile{Secrets: Definitions(secrets)}); err != nil {
		return fmt.Errorf("failed to write secret definitions: %w", err)
	}
	return enc.Close()
}
