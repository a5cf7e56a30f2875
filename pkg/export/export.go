// Package export writes saved conversations to files.
package export

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
)

// Conversation is a saved chat together with its stored messages.
type Conversation struct {
	Record   chatapi.ChatRecord `json:"record" yaml:"record"`
	Messages []chatapi.Message  `json:"messages" yaml:"messages"`
}

type Exporter interface {
	Export(conv Conversation, w io.Writer) error
	Extension() string
}

func NewExporter(format string) (Exporter, error) {
	switch format {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "jsonl":
		return &JSONLExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "html":
		return NewHTMLExporter(), nil
	default:
		return nil, errors.Errorf("unsupported format: %s (supported: md, json, jsonl, yaml, html)", format)
	}
}

// MessageFetcher loads the stored messages of one conversation.
type MessageFetcher interface {
	ChatMessages(ctx context.Context, chatID string) ([]chatapi.Message, error)
}

// DefaultConcurrency bounds the number of history requests in flight.
const DefaultConcurrency = 4

// FetchAll loads the messages of every record, at most limit at a time. The
// result keeps the order of records. The first failure cancels the rest.
func FetchAll(ctx context.Context, f MessageFetcher, records []chatapi.ChatRecord, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	out := make([]Conversation, len(records))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, rec := range records {
		g.Go(func() error {
			messages, err := f.ChatMessages(ctx, rec.ChatID)
			if err != nil {
				return errors.Wrapf(err, "fetch messages of %s", rec.ChatID)
			}
			out[i] = Conversation{Record: rec, Messages: messages}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// FileName builds a file name from the subject and chat id of conv.
func FileName(conv Conversation, ext string) string {
	subject := strings.Trim(unsafeName.ReplaceAllString(conv.Record.Subject, "-"), "-.")
	if r := []rune(subject); len(r) > 40 {
		subject = string(r[:40])
	}
	if subject == "" {
		return fmt.Sprintf("%s.%s", conv.Record.ChatID, ext)
	}
	return fmt.Sprintf("%s_%s.%s", subject, conv.Record.ChatID, ext)
}
