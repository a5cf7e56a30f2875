package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatweb/pkg/conversation"
)

// ConfirmRequest asks the program for a yes/no answer. The asking goroutine
// blocks on Reply.
type ConfirmRequest struct {
	Prompt string
	Reply  chan bool
}

// Bridge connects the controller's Notifier and Confirmer to the program.
// Controller operations run inside tea.Cmds and publish on its channels; the
// model reads them with waitForNotice and waitForConfirm.
type Bridge struct {
	notices  chan conversation.Notice
	confirms chan ConfirmRequest
}

func NewBridge() *Bridge {
	return &Bridge{
		notices:  make(chan conversation.Notice, 16),
		confirms: make(chan ConfirmRequest),
	}
}

// Notify never blocks; when the program is not keeping up the notice only
// goes to the log.
func (b *Bridge) Notify(n conversation.Notice) {
	select {
	case b.notices <- n:
	default:
		log.Warn().Str("notice", n.Text).Msg("dropping notice, queue full")
	}
}

func (b *Bridge) Confirm(ctx context.Context, prompt string) (bool, error) {
	req := ConfirmRequest{Prompt: prompt, Reply: make(chan bool, 1)}
	select {
	case b.confirms <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-req.Reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

var (
	_ conversation.Notifier  = (*Bridge)(nil)
	_ conversation.Confirmer = (*Bridge)(nil)
)

func waitForNotice(ch <-chan conversation.Notice) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return n
	}
}

func waitForConfirm(ch <-chan ConfirmRequest) tea.Cmd {
	return func() tea.Msg {
		req, ok := <-ch
		if !ok {
			return nil
		}
		return req
	}
}
