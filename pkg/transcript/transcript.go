// Package transcript holds the displayed message list of a conversation.
package transcript

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Format is the rendering hint of a turn.
type Format int

const (
	FormatPlain Format = iota
	FormatRich
)

func (f Format) String() string {
	if f == FormatRich {
		return "rich"
	}
	return "plain"
}

// Turn is one displayed message. Greeting marks the assistant greeting a
// fresh transcript starts with; it is excluded from clipboard text.
type Turn struct {
	Role     Role
	Text     string
	Greeting bool
}

func (t Turn) Format() Format {
	return Classify(t.Text)
}

var richTextRegex = regexp.MustCompile("(?i)(<[^>]+>)|(```[^`]*```)")

// Classify returns FormatRich for text carrying HTML-like markup or a fenced
// code block.
func Classify(text string) Format {
	if richTextRegex.MatchString(text) {
		return FormatRich
	}
	return FormatPlain
}

const terminalPunctuation = ",.;!?，。！？、…"

// NormalizeQuestion removes all whitespace and terminates the text with a
// full-width period unless its last rune is already a punctuation mark.
func NormalizeQuestion(text string) string {
	stripped := strings.Join(strings.Fields(text), "")
	if stripped == "" {
		return ""
	}
	last, _ := utf8.DecodeLastRuneInString(stripped)
	if !strings.ContainsRune(terminalPunctuation, last) {
		stripped += "。"
	}
	return stripped
}

// Transcript is an ordered list of turns. It is not safe for concurrent use.
type Transcript struct {
	greeting string
	turns    []Turn
}

// New returns a transcript holding only the greeting turn.
func New(greeting string) *Transcript {
	t := &Transcript{greeting: greeting}
	t.Reset()
	return t
}

func (t *Transcript) GreetingTurn() Turn {
	return Turn{Role: RoleAssistant, Text: t.greeting, Greeting: true}
}

// Reset drops every turn and re-adds the greeting.
func (t *Transcript) Reset() {
	t.turns = []Turn{t.GreetingTurn()}
}

func (t *Transcript) Append(role Role, text string) {
	t.turns = append(t.turns, Turn{Role: role, Text: text})
}

// Replace swaps the whole turn list, used when switching conversations.
func (t *Transcript) Replace(turns []Turn) {
	t.turns = append([]Turn(nil), turns...)
}

func (t *Transcript) Turns() []Turn {
	return append([]Turn(nil), t.turns...)
}

// ClipboardText joins the text of every non-greeting turn with newlines.
// It returns false when there is nothing but the greeting to copy.
func (t *Transcript) ClipboardText() (string, bool) {
	parts := make([]string, 0, len(t.turns))
	for _, turn := range t.turns {
		if turn.Greeting {
			continue
		}
		parts = append(parts, turn.Text)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}
