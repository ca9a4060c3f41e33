package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/klasterhq/klaster/internal/state"
)

var (
	loginPassword    string
	registerPassword string
	registerUsername string
)

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and save the access token",
	Long: `Log in to the configured Klaster server with email and password.

The returned token is saved in the local database and used by every
subsequent command. The password is read from --password, the
KLASTER_PASSWORD environment variable, or an interactive prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loginRun(args[0])
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return logoutRun()
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return whoamiRun()
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return registerRun(args[0])
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prefer KLASTER_PASSWORD or the prompt)")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "Password (prefer KLASTER_PASSWORD or the prompt)")
	registerCmd.Flags().StringVar(&registerUsername, "username", "", "Username (defaults to the part of the email before @)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(registerCmd)
}

// resolvePassword checks the flag, then KLASTER_PASSWORD, then prompts.
func resolvePassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("KLASTER_PASSWORD"); env != "" {
		return env, nil
	}

	fmt.Fprint(ui.Out, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("empty password")
	}
	return pw, nil
}

func loginRun(email string) error {
	password, err := resolvePassword(loginPassword)
	if err != nil {
		return err
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	creds, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s, err := getLocalStore()
	if err != nil {
		return err
	}
	serverURL := viper.GetString("server.url")
	err = s.SaveCredentials(ctx, &state.Credentials{
		ServerURL: serverURL,
		Token:     creds.AccessToken,
		UserID:    creds.User.ID,
		Username:  creds.User.Username,
		Email:     creds.User.Email,
		SavedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	ui.Success("Logged in as %s (%s)", creds.User.Username, serverURL)
	return nil
}

func logoutRun() error {
	s, err := getLocalStore()
	if err != nil {
		return err
	}
	serverURL := viper.GetString("server.url")
	if err := s.DeleteCredentials(context.Background(), serverURL); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	ui.Success("Logged out of %s", serverURL)
	return nil
}

func whoamiRun() error {
	client, err := getClient()
	if err != nil {
		return err
	}

	user, err := client.Me(context.Background())
	if err != nil {
		return fmt.Errorf("not logged in: %w", err)
	}

	fmt.Fprintf(ui.Out, "%s <%s> (id %d)\n", user.Username, user.Email, user.ID)
	return nil
}

func registerRun(email string) error {
	password, err := resolvePassword(registerPassword)
	if err != nil {
		return err
	}

	username := registerUsername
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	if username == "" {
		return fmt.Errorf("cannot derive a username from %q, pass --username", email)
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	if err := client.Register(context.Background(), username, email, password); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	ui.Success("Account created for %s. Run 'klaster login %s' to log in.", username, email)
	return nil
}
