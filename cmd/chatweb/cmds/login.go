package cmds

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatweb/pkg/settings"
	"github.com/go-go-golems/chatweb/pkg/ui"
)

func newLoginCommand() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			s.Token = ""
			client, err := s.NewClient()
			if err != nil {
				return err
			}

			if password == "" {
				password = os.Getenv("CHATWEB_PASSWORD")
			}
			if username == "" || password == "" {
				if !stdinIsTerminal() {
					return errors.New("pass --username and --password (or CHATWEB_PASSWORD) when not on a terminal")
				}
				creds, err := ui.RunLoginForm(username)
				if err != nil {
					return err
				}
				username, password = creds.Username, creds.Password
			}

			token, err := client.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			path, err := settings.DefaultCredentialsPath()
			if err != nil {
				return err
			}
			err = settings.SaveCredentials(path, settings.Credentials{
				Server:   client.BaseURL(),
				UserName: username,
				Token:    token,
				SavedAt:  time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", client.BaseURL(), username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "User name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := settings.DefaultCredentialsPath()
			if err != nil {
				return err
			}
			return settings.RemoveCredentials(path)
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient()
			if err != nil {
				return err
			}
			info, err := client.UserInfo(cmd.Context())
			if err != nil {
				return err
			}
			role := "user"
			if info.IsAdmin {
				role = "admin"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d, %s) on %s\n", info.UserName, info.UserID, role, client.BaseURL())
			return nil
		},
	}
}
