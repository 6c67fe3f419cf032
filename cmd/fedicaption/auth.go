package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fedicaption/pkg/auth"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/platforms"
	"fedicaption/pkg/ui"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAuthCmd(a *app) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage instance access tokens",
		Long: `Manage stored access tokens securely.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (FEDICAPTION_INSTANCE_URL, FEDICAPTION_ACCESS_TOKEN)

Never share your tokens or config files!`,
	}

	authCmd.AddCommand(newLoginCmd(a), newListCmd(a), newLogoutCmd(a))
	return authCmd
}

func newLoginCmd(a *app) *cobra.Command {
	var (
		username string
		name     string
		verify   bool
	)

	cmd := &cobra.Command{
		Use:   "login [instance-url]",
		Short: "Store an access token securely",
		Long: `Store an access token for an instance in the system keychain or an
encrypted file.

You will be prompted for:
  - Instance URL (if not provided)
  - Access token (hidden as you type)

The token is checked against the instance before it is stored unless
--verify=false is given.`,
		Example: `  # Interactive login
  fedicaption auth login

  # Login to a specific instance
  fedicaption auth login https://pixelfed.social --username alice`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			var instance string
			if len(args) > 0 {
				instance = args[0]
			} else {
				fmt.Fprint(out, "Instance URL: ")
				line, err := readLine(reader)
				if err != nil {
					return fmt.Errorf("failed to read instance URL: %w", err)
				}
				instance = line
			}
			instance = strings.TrimRight(strings.TrimSpace(instance), "/")
			if instance == "" {
				return errors.New("instance URL is required")
			}
			if !strings.Contains(instance, "://") {
				instance = "https://" + instance
			}

			cfg, err := a.loadConfig(false)
			if err != nil {
				return err
			}
			// A stored default account may have filled these for another instance.
			cfg.Platform.InstanceURL = instance
			cfg.Platform.Type = a.platform
			cfg.Platform.ClientKey = ""
			cfg.Platform.ClientSecret = ""

			platform := a.platform
			if platform == "" {
				registry := platforms.DefaultRegistry(logger.GetLogger())
				detected, ok := registry.Detect(instance)
				if !ok {
					detected = registry.Fallback()
				}
				platform = detected
			}

			if !ui.IsQuiet() {
				auth.ShowTokenGuide(out, platform, instance)
				fmt.Fprintln(out)
			}

			fmt.Fprint(out, "Access token: ")
			token, err := readSecret(cmd, reader)
			if err != nil {
				return fmt.Errorf("failed to read access token: %w", err)
			}
			if token == "" {
				return errors.New("access token is required")
			}
			cfg.Platform.AccessToken = token

			if verify {
				client, err := a.newClient(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				ok, err := client.Authenticate(cmd.Context())
				client.Close()
				if err != nil {
					return fmt.Errorf("failed to verify token: %w", err)
				}
				if !ok {
					return errors.New("the instance rejected the token")
				}
				platform = client.Platform()
				ui.PrintSuccess("Token accepted by " + instance)
			}

			manager, err := a.newManager()
			if err != nil {
				return fmt.Errorf("failed to initialize credential manager: %w", err)
			}

			if name == "" {
				name = auth.AccountName(username, instance)
			}
			if existing, _ := manager.Retrieve(name); existing != nil {
				ui.PrintWarning("Replacing stored token", name)
			}

			account := &auth.Account{
				Name:         name,
				Platform:     a.platform,
				InstanceURL:  instance,
				AccessToken:  token,
				LastModified: time.Now(),
			}
			if verify {
				account.Platform = platform
			}
			if err := manager.Store(account); err != nil {
				return fmt.Errorf("failed to store credentials: %w", err)
			}

			ui.PrintSuccess("Account saved: " + name)
			ui.PrintInfo("Use it with", "fedicaption --account "+name+" images <user>")
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "your username, used to name the stored account")
	cmd.Flags().StringVar(&name, "name", "", "name to store the account under (default user@host)")
	cmd.Flags().BoolVar(&verify, "verify", true, "check the token against the instance before storing it")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored accounts",
		Long:  `List all stored accounts with masked tokens.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.newManager()
			if err != nil {
				return fmt.Errorf("failed to initialize credential manager: %w", err)
			}

			accounts, err := manager.List()
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}
			if len(accounts) == 0 {
				ui.PrintInfo("No stored accounts", "Use 'fedicaption auth login' to add one")
				return nil
			}

			ui.PrintHighlight("Stored Accounts")
			ui.Print(ui.RenderAccounts(accounts))
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "logout <account>",
		Short:   "Remove a stored account",
		Long:    `Remove a stored account from every credential store.`,
		Example: `  fedicaption auth logout alice@pixelfed.social`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.newManager()
			if err != nil {
				return fmt.Errorf("failed to initialize credential manager: %w", err)
			}

			if err := manager.Delete(args[0]); err != nil {
				return fmt.Errorf("failed to remove account: %w", err)
			}
			ui.PrintSuccess("Account removed: " + args[0])
			return nil
		},
	}
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads without echo from a terminal and falls back to a plain
// line read when input is piped.
func readSecret(cmd *cobra.Command, reader *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}
	return readLine(reader)
}
