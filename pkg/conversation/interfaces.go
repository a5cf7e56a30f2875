package conversation

import (
	"context"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
)

// Service is the part of the backend API the controller drives.
type Service interface {
	ChatRecords(ctx context.Context) (*chatapi.UserChatRecords, error)
	ChatMessages(ctx context.Context, chatID string) ([]chatapi.Message, error)
	Completion(ctx context.Context, req chatapi.CompletionRequest) (*chatapi.CompletionResponse, error)
	RenameSubject(ctx context.Context, chatID, subject string) error
	DeleteChat(ctx context.Context, chatID string) error
}

var _ Service = (*chatapi.Client)(nil)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Notice is a user-visible message produced by an operation.
type Notice struct {
	Level Level
	Text  string
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier sends notices to the global zerolog logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notice) {
	switch n.Level {
	case LevelError:
		log.Error().Str("notice", n.Text).Msg("user notice")
	case LevelWarn:
		log.Warn().Str("notice", n.Text).Msg("user notice")
	default:
		log.Info().Str("notice", n.Text).Msg("user notice")
	}
}

// Confirmer gates destructive actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm approves every prompt, for non-interactive use with an
// explicit --yes.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// NeverConfirm declines every prompt. It is the default, so a controller
// without a Confirmer never deletes anything.
var NeverConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })

type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}
