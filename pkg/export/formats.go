package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"
)

type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(conv Conversation, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Record.Subject)
	fmt.Fprintf(&b, "**Chat:** %s  \n", conv.Record.ChatID)
	if !conv.Record.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "**Created:** %s  \n", conv.Record.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "**Messages:** %d\n\n---\n\n", len(conv.Messages))

	for i, msg := range conv.Messages {
		fmt.Fprintf(&b, "**%s:**\n\n%s\n\n", roleTitle(msg.Role), msg.Content)
		if i < len(conv.Messages)-1 {
			b.WriteString("---\n\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return errors.Wrap(err, "write markdown")
}

func (e *MarkdownExporter) Extension() string { return "md" }

func roleTitle(role string) string {
	switch role {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	default:
		return role
	}
}

type JSONExporter struct{}

func (e *JSONExporter) Export(conv Conversation, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return errors.Wrap(enc.Encode(conv), "encode json")
}

func (e *JSONExporter) Extension() string { return "json" }

// JSONLExporter writes one message per line.
type JSONLExporter struct{}

func (e *JSONLExporter) Export(conv Conversation, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, msg := range conv.Messages {
		line := struct {
			ChatID  string `json:"chat_id"`
			Role    string `json:"role"`
			Content string `json:"content"`
		}{conv.Record.ChatID, msg.Role, msg.Content}
		if err := enc.Encode(line); err != nil {
			return errors.Wrap(err, "encode message")
		}
	}
	return nil
}

func (e *JSONLExporter) Extension() string { return "jsonl" }

type YAMLExporter struct{}

func (e *YAMLExporter) Export(conv Conversation, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(conv); err != nil {
		return errors.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string { return "yaml" }

// HTMLExporter renders the markdown export to a standalone page.
type HTMLExporter struct {
	md goldmark.Markdown
}

func NewHTMLExporter() *HTMLExporter {
	return &HTMLExporter{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

func (e *HTMLExporter) Export(conv Conversation, w io.Writer) error {
	var src bytes.Buffer
	if err := (&MarkdownExporter{}).Export(conv, &src); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := e.md.Convert(src.Bytes(), &body); err != nil {
		return errors.Wrap(err, "convert markdown")
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(conv.Record.Subject), body.String())
	return errors.Wrap(err, "write html")
}

func (e *HTMLExporter) Extension() string { return "html" }
