package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatweb/pkg/ui"
)

func newUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts (admin only)",
	}
	cmd.AddCommand(newUsersCreateCommand())
	return cmd
}

func newUsersCreateCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "create [username]",
		Short: "Create a user account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newAdminService()
			if err != nil {
				return err
			}
			var in ui.NewUserInput
			switch {
			case len(args) == 1 && password != "":
				in = ui.NewUserInput{Username: args[0], Password: password, Confirm: password}
			case stdinIsTerminal():
				in, err = ui.RunCreateUserForm()
				if err != nil {
					return err
				}
			default:
				return errors.New("pass a username and --password when not on a terminal")
			}
			if err := svc.CreateUser(cmd.Context(), in.Username, in.Password, in.Confirm); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Created user %s\n", in.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password of the new user")
	return cmd
}

func newPasswordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change passwords",
	}
	cmd.AddCommand(newPasswordUpdateCommand(), newPasswordResetCommand())
	return cmd
}

func newPasswordUpdateCommand() *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change your own password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newAdminService()
			if err != nil {
				return err
			}
			in := ui.PasswordInput{Current: current, New: next, Confirm: next}
			if current == "" || next == "" {
				if !stdinIsTerminal() {
					return errors.New("pass --current and --new when not on a terminal")
				}
				in, err = ui.RunPasswordForm(false)
				if err != nil {
					return err
				}
			}
			if err := svc.ChangePassword(cmd.Context(), in.Current, in.New, in.Confirm); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Password changed")
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "Current password")
	cmd.Flags().StringVar(&next, "new", "", "New password")
	return cmd
}

func newPasswordResetCommand() *cobra.Command {
	var next string
	cmd := &cobra.Command{
		Use:   "reset [username]",
		Short: "Set the password of another user (admin only)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newAdminService()
			if err != nil {
				return err
			}
			var in ui.PasswordInput
			switch {
			case len(args) == 1 && next != "":
				in = ui.PasswordInput{Username: args[0], New: next, Confirm: next}
			case stdinIsTerminal():
				in, err = ui.RunPasswordForm(true)
				if err != nil {
					return err
				}
			default:
				return errors.New("pass a username and --new when not on a terminal")
			}
			if err := svc.ResetPassword(cmd.Context(), in.Username, in.New, in.Confirm); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Password of %s reset\n", in.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&next, "new", "", "New password")
	return cmd
}
