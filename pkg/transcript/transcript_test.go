package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "appends full-width period", in: "hello", want: "hello。"},
		{name: "strips inner and outer whitespace", in: "  how are\tyou \n", want: "howareyou。"},
		{name: "keeps half-width question mark", in: "why?", want: "why?"},
		{name: "keeps full-width exclamation", in: "好！", want: "好！"},
		{name: "keeps ellipsis", in: "so…", want: "so…"},
		{name: "keeps enumeration comma", in: "一、", want: "一、"},
		{name: "only last rune is checked", in: "a.b", want: "a.b。"},
		{name: "blank stays blank", in: " \t ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuestion(tt.in))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FormatPlain, Classify("just some words"))
	assert.Equal(t, FormatPlain, Classify("2 > 1"))
	assert.Equal(t, FormatRich, Classify("<b>bold</b>"))
	assert.Equal(t, FormatRich, Classify("look:\n```go\nfmt.Println(1)\n```\n"))
	assert.Equal(t, FormatPlain, Classify("an unterminated ``` fence"))
	assert.Equal(t, FormatRich, Turn{Text: "<br>"}.Format())
}

func TestTranscriptStartsWithGreeting(t *testing.T) {
	tr := New("hi there")
	turns := tr.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, RoleAssistant, turns[0].Role)
	assert.Equal(t, "hi there", turns[0].Text)
	assert.True(t, turns[0].Greeting)

	_, ok := tr.ClipboardText()
	assert.False(t, ok)
}

func TestTranscriptClipboardTextSkipsGreeting(t *testing.T) {
	tr := New("hi there")
	tr.Append(RoleUser, "question")
	tr.Append(RoleAssistant, "answer")

	text, ok := tr.ClipboardText()
	require.True(t, ok)
	assert.Equal(t, "question\nanswer", text)

	tr.Reset()
	require.Len(t, tr.Turns(), 1)
	_, ok = tr.ClipboardText()
	assert.False(t, ok)
}

func TestTranscriptReplaceCopiesInput(t *testing.T) {
	tr := New("hi")
	in := []Turn{{Role: RoleUser, Text: "a"}, {Role: RoleAssistant, Text: "b"}}
	tr.Replace(in)
	in[0].Text = "mutated"

	turns := tr.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "a", turns[0].Text)

	text, ok := tr.ClipboardText()
	require.True(t, ok)
	assert.Equal(t, "a\nb", text)
}
