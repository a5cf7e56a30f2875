package ui

import (
	"fmt"
	"strings"

	"github.com/koki-develop/go-fzf"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
	"github.com/go-go-golems/chatweb/pkg/export"
	"github.com/go-go-golems/chatweb/pkg/transcript"
)

// PickConversation runs a fuzzy finder over convs with the messages in a
// preview pane. It returns nil when the user cancels.
func PickConversation(convs []export.Conversation) (*chatapi.ChatRecord, error) {
	if len(convs) == 0 {
		return nil, errors.New("no saved conversations")
	}

	f, err := fzf.New(
		fzf.WithPrompt("Conversations > "),
		fzf.WithInputPosition(fzf.InputPositionTop),
		fzf.WithLimit(1),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create finder")
	}

	idxs, err := f.Find(
		convs,
		func(i int) string {
			return pickerLine(convs[i].Record)
		},
		fzf.WithPreviewWindow(func(i, w, h int) string {
			if i < 0 || i >= len(convs) {
				return ""
			}
			return pickerPreview(convs[i], w)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "find conversation")
	}
	if len(idxs) == 0 {
		return nil, nil
	}
	rec := convs[idxs[0]].Record
	return &rec, nil
}

func pickerLine(rec chatapi.ChatRecord) string {
	return fmt.Sprintf("%s  %s", rec.UpdatedAt.Local().Format("2006-01-02 15:04"), rec.Subject)
}

func pickerPreview(conv export.Conversation, width int) string {
	var b strings.Builder
	rule := strings.Repeat("━", max(width-2, 10))
	b.WriteString(rule + "\n")
	b.WriteString(fmt.Sprintf("Subject: %s\n", conv.Record.Subject))
	b.WriteString(fmt.Sprintf("Chat:    %s\n", conv.Record.ChatID))
	b.WriteString(fmt.Sprintf("Created: %s\n", conv.Record.CreatedAt.Local().Format("2006-01-02 15:04:05")))
	b.WriteString(rule + "\n\n")
	for _, m := range conv.Messages {
		if m.Role == string(transcript.RoleSystem) {
			continue
		}
		label := "You"
		if m.Role != string(transcript.RoleUser) {
			label = "Assistant"
		}
		b.WriteString(label + ": " + strings.TrimSpace(m.Content) + "\n\n")
	}
	return b.String()
}
