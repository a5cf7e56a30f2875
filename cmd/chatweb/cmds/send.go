package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatweb/pkg/conversation"
	"github.com/go-go-golems/chatweb/pkg/session"
	"github.com/go-go-golems/chatweb/pkg/transcript"
	"github.com/go-go-golems/chatweb/pkg/ui"
)

func newSendCommand() *cobra.Command {
	var chat string
	var startNew, raw bool
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the reply.

Without --chat or --new the message continues the most recently updated
conversation. The message is read from stdin when no argument is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if chat != "" && startNew {
				return errors.New("--chat and --new are mutually exclusive")
			}
			text := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read message from stdin")
				}
				text = string(b)
			}

			client, s, err := newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ctrl := conversation.NewController(client,
				conversation.WithNotifier(cliNotifier(cmd.ErrOrStderr())),
				conversation.WithGreeting(s.Greeting),
				conversation.WithSession(session.New(session.WithPlaceholder(s.NewSubject))),
			)
			if err := ctrl.Load(ctx); err != nil {
				return err
			}
			switch {
			case startNew:
				ctrl.StartNewConversation()
			case chat != "":
				rec, err := findRecord(ctrl.Snapshot().Saved, chat)
				if err != nil {
					return err
				}
				if err := ctrl.SelectSavedConversation(ctx, rec.ChatID, rec.Subject); err != nil {
					return err
				}
			}

			sentTo := ctrl.Snapshot().Session.ChatID
			if err := ctrl.SubmitMessage(ctx, text); err != nil {
				return err
			}
			reply, err := replyIn(ctrl.Snapshot(), sentTo)
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), reply, raw)
		},
	}
	cmd.Flags().StringVarP(&chat, "chat", "c", "", "Conversation to continue, by chat id or subject")
	cmd.Flags().BoolVarP(&startNew, "new", "n", false, "Start a new conversation")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the reply without markdown rendering")
	return cmd
}

// replyIn returns the reply shown for chatID. It fails when the view moved to
// another conversation, whose last answer is not the reply to this message.
func replyIn(view conversation.View, chatID string) (transcript.Turn, error) {
	if view.Session.ChatID != chatID {
		return transcript.Turn{}, errors.Errorf("reply was not shown, the view switched from %s to %s", chatID, view.Session.ChatID)
	}
	reply, ok := lastReply(view.Turns)
	if !ok {
		return transcript.Turn{}, errors.New("no reply received")
	}
	return reply, nil
}

func lastReply(turns []transcript.Turn) (transcript.Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.Role == transcript.RoleAssistant && !t.Greeting {
			return t, true
		}
	}
	return transcript.Turn{}, false
}

func printReply(w io.Writer, reply transcript.Turn, raw bool) error {
	if raw || w != io.Writer(os.Stdout) || !stdoutIsTerminal() {
		_, err := fmt.Fprintln(w, strings.TrimRight(reply.Text, "\n"))
		return err
	}
	r, err := ui.NewRenderer(ui.DetectStyle(), terminalWidth())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, r.RenderTurn(reply))
	return err
}
