package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/config"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage secret definitions",
}

var secretsValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a secret definitions file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := secrets.LoadFile(args[0])
		out := cmd.OutOrStdout()
		for _, s := range defs {
			fmt.Fprintf(out, "%s %-24s %-6s %s\n", color.GreenString("✓"), s.Name, s.Kind, s.Match)
		}
		if err != nil {
			for _, e := range unwrapJoined(err) {
				fmt.Fprintf(out, "%s %v\n", color.RedString("✗"), e)
			}
			return fmt.Errorf("%s has invalid definitions", args[0])
		}
		color.Green("\n%d definitions valid\n", len(defs))
		return nil
	},
}

var secretsBuiltinCmd = &cobra.Command{
	Use:   "builtin",
	Short: "Print the built-in secret catalogue as a definitions file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return secrets.Write(cmd.OutOrStdout(), secrets.Builtin())
	},
}

func init() {
	rootCmd.AddCommand(secretsCmd)
	secretsCmd.AddCommand(secretsValidateCmd)
	secretsCmd.AddCommand(secretsBuiltinCmd)
}

func unwrapJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// parseSecretFlag splits a name=regex definition
func parseSecretFlag(def string) (string, string, error) {
	name, pattern, ok := strings.Cut(def, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || pattern == "" {
		return "", "", fmt.Errorf("secret %q must have the form name=regex", def)
	}
	return name, pattern, nil
}

// buildSecretSet combines the built-in catalogue, a definitions file and
// command line rules. Any invalid definition fails the whole set.
func buildSecretSet(c config.SecretsConfig) (*secrets.Set, error) {
	set, err := secrets.NewSet(log)
	if err != nil {
		return nil, err
	}

	if c.Builtin {
		for _, s := range secrets.Builtin() {
			if err := set.Add(s); err != nil {
				return nil, err
			}
		}
	}

	if c.File != "" {
		defs, err := secrets.LoadFile(c.File)
		if err != nil {
			return nil, fmt.Errorf("secrets file %s: %w", c.File, err)
		}
		for _, s := range defs {
			if err := set.Add(s); err != nil {
				return nil, fmt.Errorf("secrets file %s: %w", c.File, err)
			}
		}
	}

	var errs []error
	for _, def := range c.Custom {
		name, pattern, err := parseSecretFlag(def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := set.AddCustom(name, true, pattern); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return set, nil
}

