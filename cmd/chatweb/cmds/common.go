// Package cmds holds the cobra commands of the chatweb binary.
package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	input "github.com/tcnksm/go-input"
	"github.com/weaviate/tiktoken-go"
	"golang.org/x/term"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
	"github.com/go-go-golems/chatweb/pkg/conversation"
	"github.com/go-go-golems/chatweb/pkg/settings"
)

// Register adds every chatweb command to root.
func Register(root *cobra.Command) {
	root.AddCommand(
		newChatCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newSendCommand(),
		newChatsCommand(),
		newConfigCommand(),
		newUsersCommand(),
		newPasswordCommand(),
	)
}

// LoginHint returns advice for errors caused by a missing or expired token.
func LoginHint(err error) string {
	if chatapi.IsUnauthorized(err) {
		return "Run chatweb login to sign in again."
	}
	return ""
}

func loadSettings() (settings.Settings, error) {
	s := settings.FromViper(viper.GetViper())
	path, err := settings.DefaultCredentialsPath()
	if err != nil {
		return s, err
	}
	creds, err := settings.LoadCredentials(path)
	if err != nil {
		return s, err
	}
	return s.WithCredentials(creds), nil
}

func newClient() (*chatapi.Client, settings.Settings, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, s, err
	}
	client, err := s.NewClient()
	if err != nil {
		return nil, s, err
	}
	return client, s, nil
}

func stdinIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// askYesNo asks a y/N question on the terminal. The default answer is no.
func askYesNo(r io.Reader, w io.Writer, query string) (bool, error) {
	ui := &input.UI{
		Writer: w,
		Reader: r,
	}
	answer, err := ui.Ask(query+" [y/N]", &input.Options{
		Default:     "n",
		HideDefault: true,
		Loop:        true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}
	return strings.EqualFold(answer, "y"), nil
}

// confirmer returns the delete gate for CLI use: --yes approves, a terminal
// asks, anything else refuses.
func confirmer(yes bool) conversation.Confirmer {
	if yes {
		return conversation.AlwaysConfirm
	}
	if !stdinIsTerminal() {
		return conversation.ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
			return false, errors.New("not a terminal, pass --yes to confirm")
		})
	}
	return conversation.ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		return askYesNo(os.Stdin, os.Stderr, prompt)
	})
}

// cliNotifier prints notices on stderr. Errors are left to the returned error
// so they are not printed twice.
func cliNotifier(w io.Writer) conversation.Notifier {
	return conversation.NotifierFunc(func(n conversation.Notice) {
		if n.Level == conversation.LevelError {
			log.Debug().Str("notice", n.Text).Msg("error notice")
			return
		}
		_, _ = fmt.Fprintln(w, n.Text)
	})
}

// findRecord resolves arg to a saved conversation by chat id, then by unique
// subject.
func findRecord(records []chatapi.ChatRecord, arg string) (chatapi.ChatRecord, error) {
	for _, rec := range records {
		if rec.ChatID == arg {
			return rec, nil
		}
	}
	var matches []chatapi.ChatRecord
	for _, rec := range records {
		if strings.EqualFold(strings.TrimSpace(rec.Subject), strings.TrimSpace(arg)) {
			matches = append(matches, rec)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return chatapi.ChatRecord{}, errors.Errorf("no conversation %q", arg)
	default:
		return chatapi.ChatRecord{}, errors.Errorf("%d conversations are named %q, use the chat id", len(matches), arg)
	}
}

type textStats struct {
	Tokens     int
	Lines      int
	Words      int
	Characters int
}

func computeStats(content string) (textStats, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return textStats{}, errors.Wrap(err, "initialize token counter")
	}
	return textStats{
		Tokens:     len(enc.Encode(content, nil, nil)),
		Lines:      strings.Count(content, "\n") + 1,
		Words:      len(strings.Fields(content)),
		Characters: len([]rune(content)),
	}, nil
}

func printStats(w io.Writer, content string) {
	st, err := computeStats(content)
	if err != nil {
		_, _ = fmt.Fprintf(w, "Error initializing token counter: %v\n", err)
		return
	}
	_, _ = fmt.Fprintf(w, "Tokens: %d  Lines: %d  Words: %d  Characters: %d\n", st.Tokens, st.Lines, st.Words, st.Characters)
}
