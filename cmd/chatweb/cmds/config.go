package cmds

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatweb/pkg/admin"
	"github.com/go-go-golems/chatweb/pkg/ui"
)

func newAdminService() (*admin.Service, error) {
	client, _, err := newClient()
	if err != nil {
		return nil, err
	}
	return admin.NewService(client), nil
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change the server configuration (admin only)",
	}
	cmd.AddCommand(newConfigGetCommand(), newConfigSetCommand(), newConfigEditCommand())
	return cmd
}

func newConfigGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "get [key]",
		Short:     "Print the server configuration as yaml, or a single value",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: admin.ConfigKeys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newAdminService()
			if err != nil {
				return err
			}
			cfg, err := svc.Config(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return admin.WriteConfigYAML(cmd.OutOrStdout(), *cfg)
			}
			for _, f := range admin.ConfigFields(*cfg) {
				if f.Key == args[0] {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), f.Value)
					return nil
				}
			}
			return errors.Errorf("unknown config key %q (known: %s)", args[0], strings.Join(admin.ConfigKeys(), ", "))
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key=value>...",
		Short: "Change configuration values",
		Example: `  chatweb config set model=gpt-4o temperature=0.7
  chatweb config set max_tokens=1024`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newAdminService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg, err := svc.Config(ctx)
			if err != nil {
				return err
			}
			next := *cfg
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return errors.Errorf("expected key=value, got %q", arg)
				}
				if err := admin.SetField(&next, strings.TrimSpace(key), value); err != nil {
					return err
				}
			}
			if err := svc.UpdateConfig(ctx, next); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Configuration updated")
			return nil
		},
	}
}

func newConfigEditCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit the configuration in a form, or replace it from a yaml file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newAdminService()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return errors.Wrap(err, "open config file")
				}
				defer func() { _ = f.Close() }()
				cfg, err := admin.ReadConfigYAML(f)
				if err != nil {
					return err
				}
				return svc.UpdateConfig(ctx, cfg)
			}

			if !stdinIsTerminal() {
				return errors.New("edit needs an interactive terminal, use --file or config set")
			}
			current, err := svc.Config(ctx)
			if err != nil {
				return err
			}
			cfg, err := ui.RunConfigForm(*current)
			if err != nil {
				return err
			}
			if cfg == *current {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No changes")
				return nil
			}
			if err := svc.UpdateConfig(ctx, cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Configuration updated")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Yaml file holding the complete configuration")
	return cmd
}
