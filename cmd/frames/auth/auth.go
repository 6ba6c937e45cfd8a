// Package authcmder provides the auth command, which stores generation
// provider API keys.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/frames/cmd/frames/setup"
	"github.com/papercomputeco/frames/pkg/cliui"
	"github.com/papercomputeco/frames/pkg/credentials"
)

const authLongDesc string = `Store API keys for generation providers.

Keys are kept in credentials.toml in the .frames/ directory, readable only
by you. A stored key takes precedence over the provider's environment
variable when generate, watch or serve build a provider.

Supported providers: anthropic, openai

Examples:
  frames auth anthropic              Prompt for an Anthropic API key
  frames auth --list                 List stored keys
  frames auth --remove openai        Remove the stored OpenAI key
  echo $KEY | frames auth openai     Read the key from stdin`

const authShortDesc string = "Store API keys for generation providers"

type authCommander struct {
	list   bool
	remove string
}

func NewAuthCmd() *cobra.Command {
	cmder := &authCommander{}

	cmd := &cobra.Command{
		Use:   "auth [provider]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString(setup.FlagConfigDir)
			mgr, err := credentials.NewManager(configDir)
			if err != nil {
				return fmt.Errorf("loading credentials: %w", err)
			}

			switch {
			case cmder.list:
				return runList(cmd.OutOrStdout(), mgr)
			case cmder.remove != "":
				return runRemove(cmd.OutOrStdout(), mgr, cmder.remove)
			case len(args) == 0:
				return fmt.Errorf("provider argument required\n\nSupported providers: %s",
					strings.Join(credentials.SupportedProviders(), ", "))
			}
			return runAuth(cmd, mgr, args[0])
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedProviders(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&cmder.list, "list", false, "List stored keys")
	cmd.Flags().StringVar(&cmder.remove, "remove", "", "Remove the stored key for a provider")
	cmd.MarkFlagsMutuallyExclusive("list", "remove")

	return cmd
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func runAuth(cmd *cobra.Command, mgr *credentials.Manager, provider string) error {
	provider = normalize(provider)
	if !credentials.IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider %q\n\nSupported providers: %s",
			provider, strings.Join(credentials.SupportedProviders(), ", "))
	}

	key, err := readAPIKey(cmd.InOrStdin(), cmd.ErrOrStderr(), provider)
	if err != nil {
		return err
	}
	if err := mgr.SetKey(provider, key); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Stored %s key %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(provider),
		cliui.DimStyle.Render("(overrides "+credentials.EnvVarForProvider(provider)+")"),
	)
	return nil
}

func runList(out io.Writer, mgr *credentials.Manager) error {
	providers, err := mgr.ListProviders()
	if err != nil {
		return err
	}

	if len(providers) == 0 {
		fmt.Fprintf(out, "\n  %s No stored keys.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(out, "  Supported providers: %s\n\n", strings.Join(credentials.SupportedProviders(), ", "))
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored keys"))
	for _, p := range providers {
		fmt.Fprintf(out, "  %s  %s  %s\n",
			cliui.SuccessMark,
			cliui.KeyStyle.Render(p),
			cliui.DimStyle.Render("→ "+credentials.EnvVarForProvider(p)),
		)
	}
	fmt.Fprintln(out)
	return nil
}

func runRemove(out io.Writer, mgr *credentials.Manager, provider string) error {
	provider = normalize(provider)
	if err := mgr.RemoveKey(provider); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n  %s Removed %s key.\n\n", cliui.SuccessMark, cliui.KeyStyle.Render(provider))
	return nil
}

// readAPIKey prompts with hidden input on a terminal and otherwise reads the
// first line of in.
func readAPIKey(in io.Reader, prompt io.Writer, provider string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "Enter API key for %s (%s): ", provider, credentials.EnvVarForProvider(provider))
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
