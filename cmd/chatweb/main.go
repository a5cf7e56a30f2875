package main

import (
	"fmt"
	"os"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/chatweb/cmd/chatweb/cmds"
	"github.com/go-go-golems/chatweb/pkg/settings"
)

var rootCmd = &cobra.Command{
	Use:   "chatweb",
	Short: "chatweb is a terminal client for a chat assistant server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		err := clay.InitLogger()
		cobra.CheckErr(err)
	},
	SilenceUsage: true,
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	err := initRootCmd()
	cobra.CheckErr(err)

	cmds.Register(rootCmd)

	err = rootCmd.Execute()
	if err != nil {
		if hint := cmds.LoginHint(err); hint != "" {
			_, _ = fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

func initRootCmd() error {
	flags := rootCmd.PersistentFlags()
	flags.String(settings.KeyServer, settings.DefaultServer, "Base URL of the chat server")
	flags.String(settings.KeyToken, "", "Bearer token (defaults to the one saved by login)")
	flags.Duration(settings.KeyTimeout, 0, "Request timeout (0 uses the default)")

	err := clay.InitViper("chatweb", rootCmd)
	if err != nil {
		return err
	}
	settings.SetDefaults(viper.GetViper())
	err = viper.BindPFlags(flags)
	if err != nil {
		return err
	}
	return clay.InitLogger()
}
