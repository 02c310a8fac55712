package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/credentials"
)

// KeyStore persists the inference API key.
type KeyStore interface {
	credentials.Source
	Set(key string) error
	Delete() error
}

// AuthCommandDeps holds the dependencies for auth commands.
type AuthCommandDeps struct {
	Store KeyStore
	// Source resolves the key the engine would use.
	Source credentials.Source
	// ReadSecret prompts for a secret without echoing it.
	ReadSecret func(prompt string) (string, error)
}

// DefaultAuthDeps returns the default dependencies for production use.
func DefaultAuthDeps() *AuthCommandDeps {
	return &AuthCommandDeps{
		Store:      credentials.NewKeyringStore(),
		Source:     credentials.DefaultChain(),
		ReadSecret: readSecret(os.Stdin, os.Stderr),
	}
}

// NewAuthCommand creates the root auth command with all subcommands.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAuthDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the inference API key",
		Long: `Manage the API key used to reach a remote inference backend.

The key is stored in the system keyring (macOS Keychain, Windows
Credential Manager, or the Secret Service on Linux). The
` + credentials.EnvAPIKey + ` environment variable takes precedence over the
stored key.

Commands:
  set-key     Store the API key
  clear-key   Remove the stored API key
  status      Show where the active key comes from

Examples:
  minutes auth set-key
  minutes auth status
  minutes auth clear-key`,
	}

	cmd.AddCommand(newAuthSetKeyCommand(deps))
	cmd.AddCommand(newAuthClearKeyCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))

	return cmd
}

// newAuthSetKeyCommand creates the 'auth set-key' subcommand.
func newAuthSetKeyCommand(deps *AuthCommandDeps) *cobra.Command {
	var apiKey string

	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store the inference API key",
		Long: `Store the inference API key in the system keyring.

Without --api-key the key is read from the terminal without echo, or
from the first line of stdin when stdin is not a terminal.

Examples:
  # Interactive (hidden input)
  minutes auth set-key

  # From a secret manager
  vault read -field=key secret/minutes | minutes auth set-key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := apiKey
			if key == "" {
				k, err := deps.ReadSecret("Inference API key: ")
				if err != nil {
					return fmt.Errorf("reading API key: %w", err)
				}
				key = k
			}
			key = strings.TrimSpace(key)
			if err := validateAPIKey(key); err != nil {
				return err
			}
			if err := deps.Store.Set(key); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API key stored in %s\n", deps.Store.Description())
			fmt.Fprintf(out, "  Key: %s\n", credentials.MaskAPIKey(key))
			if os.Getenv(credentials.EnvAPIKey) != "" {
				fmt.Fprintf(out, "\nNote: %s is set and takes precedence over the stored key.\n", credentials.EnvAPIKey)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (prefer the prompt; flags end up in shell history)")

	return cmd
}

// newAuthClearKeyCommand creates the 'auth clear-key' subcommand.
func newAuthClearKeyCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-key",
		Short: "Remove the stored API key",
		Long: `Remove the API key from the system keyring.

The ` + credentials.EnvAPIKey + ` environment variable is not affected.

Examples:
  minutes auth clear-key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Store.Delete(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Stored API key removed.")
			if os.Getenv(credentials.EnvAPIKey) != "" {
				fmt.Fprintf(out, "\nNote: %s is still set.\n", credentials.EnvAPIKey)
				fmt.Fprintf(out, "Unset it with: unset %s\n", credentials.EnvAPIKey)
			}
			return nil
		},
	}
}

// newAuthStatusCommand creates the 'auth status' subcommand.
func newAuthStatusCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active API key",
		Long: `Show whether an API key is configured and where it comes from.

Examples:
  minutes auth status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sources: %s\n", deps.Source.Description())

			key, err := deps.Source.APIKey()
			switch {
			case errors.Is(err, credentials.ErrNoAPIKey):
				fmt.Fprintln(out, "Status:  no API key configured")
				return nil
			case err != nil:
				return err
			}

			from := deps.Store.Description()
			if os.Getenv(credentials.EnvAPIKey) != "" {
				from = credentials.EnvSource{Var: credentials.EnvAPIKey}.Description()
			}
			fmt.Fprintln(out, "Status:  configured")
			fmt.Fprintf(out, "From:    %s\n", from)
			fmt.Fprintf(out, "Key:     %s\n", credentials.MaskAPIKey(key))
			return nil
		},
	}
}

// validateAPIKey performs basic validation on a key.
func validateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key is empty")
	}
	if len(key) < 8 {
		return fmt.Errorf("API key is too short")
	}
	if strings.ContainsAny(key, " \t\n") {
		return fmt.Errorf("API key must not contain whitespace")
	}
	return nil
}

// readSecret prompts on prompt and reads a hidden line from in when it is a
// terminal, or a plain line otherwise.
func readSecret(in *os.File, prompt io.Writer) func(string) (string, error) {
	return func(msg string) (string, error) {
		fd := int(in.Fd())
		if term.IsTerminal(fd) {
			fmt.Fprint(prompt, msg)
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(prompt)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
