package cmds

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
	"github.com/go-go-golems/chatweb/pkg/conversation"
	"github.com/go-go-golems/chatweb/pkg/session"
	"github.com/go-go-golems/chatweb/pkg/settings"
	"github.com/go-go-golems/chatweb/pkg/ui"
)

// newTUIClient silences the global logger unless logs go to a file, then
// builds the client, which keeps the logger it was created with.
func newTUIClient(logFile string) (*chatapi.Client, settings.Settings, error) {
	if logFile == "" {
		log.Logger = zerolog.Nop()
	}
	return newClient()
}

func newChatCommand() *cobra.Command {
	var hideSidebar bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Long: `Open the terminal chat with the saved conversations on the left.

Keys: enter send, ctrl+n new conversation, ctrl+r rename, ctrl+d delete,
ctrl+y copy the transcript, ctrl+l clear the transcript, tab switch between
input and list, ctrl+b toggle the list, ctrl+c quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdinIsTerminal() || !stdoutIsTerminal() {
				return errors.New("chat needs an interactive terminal, use send for scripting")
			}
			client, s, err := newTUIClient(viper.GetString("log-file"))
			if err != nil {
				return err
			}
			if client.Token() == "" {
				return errors.New("not logged in, run chatweb login first")
			}

			bridge := ui.NewBridge()
			ctrl := conversation.NewController(client,
				conversation.WithNotifier(bridge),
				conversation.WithConfirmer(bridge),
				conversation.WithGreeting(s.Greeting),
				conversation.WithSession(session.New(session.WithPlaceholder(s.NewSubject))),
			)
			model, err := ui.NewAppModel(ctrl, bridge, ui.Options{
				SidebarWidth: s.SidebarWidth,
				HideSidebar:  hideSidebar,
				Style:        ui.DetectStyle(),
			})
			if err != nil {
				return err
			}

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.Wrap(err, "chat program")
			}
			return nil
		},
	}
	cmd.Flags().String(settings.KeyGreeting, "", "Greeting shown at the top of every conversation")
	cmd.Flags().String(settings.KeyNewSubject, "", "Subject of conversations that were not saved yet")
	cmd.Flags().Int(settings.KeySidebarWidth, 0, "Width of the conversation list")
	cmd.Flags().BoolVar(&hideSidebar, "hide-sidebar", false, "Start with the conversation list hidden")
	cobra.CheckErr(viper.BindPFlags(cmd.Flags()))
	return cmd
}
