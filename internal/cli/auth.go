package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/GriffinCanCode/meetscribe/internal/credentials"
)

func newAuthCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the OpenAI API key",
		Long: `Manage the OpenAI API key kept in the system keyring.

A key in OPENAI_API_KEY takes precedence over the stored one.`,
	}
	cmd.AddCommand(newAuthSetKeyCommand(), newAuthStatusCommand(opts), newAuthClearCommand())
	return cmd
}

func newAuthSetKeyCommand() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store the API key in the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				var err error
				if key, err = promptKey(cmd); err != nil {
					return err
				}
			}
			if err := credentials.SetAPIKey(key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key stored in %s.\n", credentials.Description())
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key (prompted for when omitted)")
	return cmd
}

func newAuthStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which API key will be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, source, err := credentials.Resolve(opts.cfg.Backend.APIKey)
			if errors.Is(err, credentials.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No API key configured.")
				return nil
			}
			if err != nil {
				return err
			}
			where := "OPENAI_API_KEY"
			if source == credentials.SourceKeyring {
				where = credentials.Description()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key %s (from %s)\n", credentials.Mask(key), where)
			return nil
		},
	}
}

func newAuthClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := credentials.DeleteAPIKey(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key removed.")
			return nil
		},
	}
}

// promptKey reads the key without echo from a terminal, or one line from
// piped input.
func promptKey(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print("OpenAI API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		cmd.Println()
		if err != nil {
			return "", fmt.Errorf("read api key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read api key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
