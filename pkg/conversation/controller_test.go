package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
	"github.com/go-go-golems/chatweb/pkg/transcript"
)

// fakeService is an in-memory Service. Completion, ChatMessages and
// ChatRecords block on gate, historyGate and recordsGate when set; the
// matching started channel is closed once the call is blocked.
type fakeService struct {
	mu       sync.Mutex
	records  []chatapi.ChatRecord
	messages map[string][]chatapi.Message
	userID   uint64

	completions []chatapi.CompletionRequest
	reply       string
	replyChatID string
	completeErr error
	messagesErr error
	renameErr   error
	deleteErr   error
	gate        chan struct{}
	started     chan struct{}

	historyGate    chan struct{}
	historyStarted chan struct{}
	recordsGate    chan struct{}
	recordsStarted chan struct{}

	renamed []string
	deleted []string
	fetches int
}

func newFakeService() *fakeService {
	return &fakeService{messages: map[string][]chatapi.Message{}, userID: 42, reply: "hi there"}
}

func (f *fakeService) addChat(chatID, subject string, msgs ...chatapi.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append([]chatapi.ChatRecord{{ID: uint64(len(f.records) + 1), ChatID: chatID, Subject: subject}}, f.records...)
	f.messages[chatID] = msgs
}

func wait(gate, started chan struct{}) {
	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
}

func (f *fakeService) ChatRecords(ctx context.Context) (*chatapi.UserChatRecords, error) {
	f.mu.Lock()
	gate, started := f.recordsGate, f.recordsStarted
	f.recordsGate, f.recordsStarted = nil, nil
	f.mu.Unlock()
	wait(gate, started)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return &chatapi.UserChatRecords{
		UserID:     f.userID,
		UserName:   "alice",
		ChatRecord: append([]chatapi.ChatRecord(nil), f.records...),
	}, nil
}

func (f *fakeService) ChatMessages(ctx context.Context, chatID string) ([]chatapi.Message, error) {
	f.mu.Lock()
	gate, started := f.historyGate, f.historyStarted
	f.historyGate, f.historyStarted = nil, nil
	f.mu.Unlock()
	wait(gate, started)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return append([]chatapi.Message(nil), f.messages[chatID]...), nil
}

func (f *fakeService) Completion(ctx context.Context, req chatapi.CompletionRequest) (*chatapi.CompletionResponse, error) {
	f.mu.Lock()
	f.completions = append(f.completions, req)
	gate, started := f.gate, f.started
	f.mu.Unlock()
	wait(gate, started)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	chatID := req.ChatID
	if f.replyChatID != "" {
		chatID = f.replyChatID
	}
	if _, ok := f.messages[chatID]; !ok {
		f.records = append([]chatapi.ChatRecord{{ID: uint64(len(f.records) + 1), ChatID: chatID, Subject: req.Messages[0].Content}}, f.records...)
	}
	f.messages[chatID] = append(f.messages[chatID], req.Messages[0], chatapi.Message{Role: "assistant", Content: f.reply})
	return &chatapi.CompletionResponse{Reply: f.reply, ChatRecord: []chatapi.ChatRecord{{ChatID: chatID}}}, nil
}

func (f *fakeService) RenameSubject(ctx context.Context, chatID, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	f.renamed = append(f.renamed, chatID)
	for i := range f.records {
		if f.records[i].ChatID == chatID {
			f.records[i].Subject = subject
		}
	}
	return nil
}

func (f *fakeService) DeleteChat(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, chatID)
	kept := f.records[:0]
	for _, rec := range f.records {
		if rec.ChatID != chatID {
			kept = append(kept, rec)
		}
	}
	f.records = kept
	delete(f.messages, chatID)
	return nil
}

func (f *fakeService) completionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completions)
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *noticeRecorder) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

type memClipboard struct{ text string }

func (m *memClipboard) WriteAll(text string) error {
	m.text = text
	return nil
}

func newTestController(svc *fakeService, opts ...Option) (*Controller, *noticeRecorder) {
	rec := &noticeRecorder{}
	opts = append([]Option{WithNotifier(rec), WithGreeting("greeting"), WithClipboard(&memClipboard{})}, opts...)
	return NewController(svc, opts...), rec
}

func texts(turns []transcript.Turn) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Text)
	}
	return out
}

func TestLoadWithEmptyListShowsGreeting(t *testing.T) {
	svc := newFakeService()
	c, _ := newTestController(svc)

	require.NoError(t, c.Load(context.Background()))
	v := c.Snapshot()
	assert.Equal(t, []string{"greeting"}, texts(v.Turns))
	assert.Empty(t, v.Saved)
	assert.Equal(t, uint64(42), v.Session.UserID)
	assert.Equal(t, "alice", v.UserName)
}

func TestLoadSelectsNewestConversation(t *testing.T) {
	svc := newFakeService()
	svc.addChat("old", "Old", chatapi.Message{Role: "user", Content: "old q"})
	svc.addChat("new", "New",
		chatapi.Message{Role: "system", Content: "persona"},
		chatapi.Message{Role: "user", Content: "q"},
		chatapi.Message{Role: "assistant", Content: "a"},
		chatapi.Message{Role: "tool", Content: "ignored"},
	)
	c, _ := newTestController(svc)

	require.NoError(t, c.Load(context.Background()))
	v := c.Snapshot()
	assert.Equal(t, "new", v.Session.ChatID)
	assert.Equal(t, "New", v.Session.Subject)
	assert.Equal(t, []string{"greeting", "q", "a"}, texts(v.Turns))
	assert.True(t, v.Turns[0].Greeting)
}

func TestSubmitMessageFirstTurnRefreshesSidebar(t *testing.T) {
	svc := newFakeService()
	c, _ := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	chatID := c.Snapshot().Session.ChatID

	require.NoError(t, c.SubmitMessage(ctx, "hello"))

	require.Equal(t, 1, svc.completionCount())
	req := svc.completions[0]
	assert.Equal(t, uint64(42), req.UserID)
	assert.Equal(t, chatID, req.ChatID)
	assert.Equal(t, []chatapi.Message{{Role: "user", Content: "hello。"}}, req.Messages)

	v := c.Snapshot()
	require.Len(t, v.Saved, 1)
	assert.Equal(t, chatID, v.Session.ChatID)
	assert.False(t, v.Pending())
	// the refresh re-selects the conversation and shows the stored history
	assert.Equal(t, []string{"hello。", "hi there"}, texts(v.Turns))
}

func TestSubmitMessageKnownConversationAppendsReply(t *testing.T) {
	svc := newFakeService()
	svc.addChat("c1", "Chat", chatapi.Message{Role: "user", Content: "q"}, chatapi.Message{Role: "assistant", Content: "a"})
	c, _ := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	fetches := svc.fetches

	require.NoError(t, c.SubmitMessage(ctx, "hello"))

	v := c.Snapshot()
	assert.Equal(t, []string{"q", "a", "hello", "hi there"}, texts(v.Turns))
	assert.Equal(t, transcript.RoleUser, v.Turns[2].Role)
	assert.Equal(t, transcript.RoleAssistant, v.Turns[3].Role)
	assert.Equal(t, fetches, svc.fetches)
	assert.False(t, v.Pending())
}

func TestSubmitMessageRejectsBlank(t *testing.T) {
	svc := newFakeService()
	c, rec := newTestController(svc)

	err := c.SubmitMessage(context.Background(), "  \n ")
	require.ErrorIs(t, err, ErrBlankInput)
	assert.Equal(t, 0, svc.completionCount())
	assert.Equal(t, []string{"greeting"}, texts(c.Snapshot().Turns))
	assert.Equal(t, LevelWarn, rec.last().Level)
}

func TestSubmitMessageWhilePendingIsNoOp(t *testing.T) {
	svc := newFakeService()
	svc.addChat("c1", "Chat")
	svc.gate = make(chan struct{})
	svc.started = make(chan struct{})
	c, rec := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	done := make(chan error, 1)
	go func() { done <- c.SubmitMessage(ctx, "first") }()
	<-svc.started

	before := c.Snapshot()
	require.True(t, before.Pending())
	assert.Equal(t, []string{"first"}, texts(before.Turns))

	err := c.SubmitMessage(ctx, "second")
	require.ErrorIs(t, err, ErrTurnPending)
	assert.Equal(t, LevelWarn, rec.last().Level)
	assert.Equal(t, before.Turns, c.Snapshot().Turns)
	assert.Equal(t, 1, svc.completionCount())

	close(svc.gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"first", "hi there"}, texts(c.Snapshot().Turns))
}

func TestSubmitMessageFailureClearsPending(t *testing.T) {
	svc := newFakeService()
	svc.addChat("c1", "Chat")
	svc.completeErr = &chatapi.APIError{Op: "send turn", Code: 280, Message: "quota exceeded"}
	c, rec := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	err := c.SubmitMessage(ctx, "hello")
	require.Error(t, err)
	_, ok := chatapi.AsAPIError(err)
	assert.True(t, ok)
	assert.Equal(t, Notice{Level: LevelError, Text: "request failed: quota exceeded"}, rec.last())

	v := c.Snapshot()
	assert.False(t, v.Pending())
	assert.Equal(t, []string{"hello"}, texts(v.Turns))

	svc.mu.Lock()
	svc.completeErr = nil
	svc.mu.Unlock()
	require.NoError(t, c.SubmitMessage(ctx, "again"))
}

func TestReplyAfterSwitchingConversationIsDropped(t *testing.T) {
	svc := newFakeService()
	svc.addChat("other", "Other", chatapi.Message{Role: "user", Content: "other q"})
	svc.addChat("c1", "Chat")
	svc.gate = make(chan struct{})
	svc.started = make(chan struct{})
	c, _ := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.Equal(t, "c1", c.Snapshot().Session.ChatID)

	done := make(chan error, 1)
	go func() { done <- c.SubmitMessage(ctx, "hello") }()
	<-svc.started

	require.NoError(t, c.SelectSavedConversation(ctx, "other", "Other"))
	v := c.Snapshot()
	assert.False(t, v.Pending())

	close(svc.gate)
	require.ErrorIs(t, <-done, ErrStaleResponse)

	v = c.Snapshot()
	assert.Equal(t, "other", v.Session.ChatID)
	assert.Equal(t, []string{"other q"}, texts(v.Turns))
}

func TestSelectionDuringFirstTurnWins(t *testing.T) {
	svc := newFakeService()
	svc.addChat("b", "B", chatapi.Message{Role: "user", Content: "from b"})
	c, _ := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	c.StartNewConversation()
	abandoned := c.Snapshot().Session.ChatID

	svc.gate = make(chan struct{})
	svc.started = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- c.SubmitMessage(ctx, "hello") }()
	<-svc.started

	svc.mu.Lock()
	svc.historyGate = make(chan struct{})
	svc.historyStarted = make(chan struct{})
	historyGate, historyStarted := svc.historyGate, svc.historyStarted
	svc.mu.Unlock()
	selected := make(chan error, 1)
	go func() { selected <- c.SelectSavedConversation(ctx, "b", "B") }()
	<-historyStarted
	assert.False(t, c.Snapshot().Pending())

	// the reply arrives while the history of b is still loading
	close(svc.gate)
	require.ErrorIs(t, <-done, ErrStaleResponse)
	close(historyGate)
	require.NoError(t, <-selected)

	v := c.Snapshot()
	assert.Equal(t, "b", v.Session.ChatID)
	assert.NotEqual(t, abandoned, v.Session.ChatID)
	assert.Equal(t, []string{"from b"}, texts(v.Turns))
}

func TestSelectionDuringFirstTurnRefreshWins(t *testing.T) {
	svc := newFakeService()
	svc.addChat("b", "B", chatapi.Message{Role: "user", Content: "from b"})
	c, _ := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	c.StartNewConversation()

	svc.recordsGate = make(chan struct{})
	svc.recordsStarted = make(chan struct{})
	recordsGate, recordsStarted := svc.recordsGate, svc.recordsStarted
	done := make(chan error, 1)
	go func() { done <- c.SubmitMessage(ctx, "hello") }()

	// the reply was accepted and the saved list is being refetched
	<-recordsStarted
	require.NoError(t, c.SelectSavedConversation(ctx, "b", "B"))
	close(recordsGate)
	require.NoError(t, <-done)

	v := c.Snapshot()
	assert.Equal(t, "b", v.Session.ChatID)
	assert.Equal(t, []string{"from b"}, texts(v.Turns))
	assert.Len(t, v.Saved, 2)
}

func TestRenameDuringPendingTurnKeepsReply(t *testing.T) {
	svc := newFakeService()
	svc.addChat("c1", "Chat", chatapi.Message{Role: "user", Content: "q"}, chatapi.Message{Role: "assistant", Content: "a"})
	c, _ := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	svc.gate = make(chan struct{})
	svc.started = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- c.SubmitMessage(ctx, "hello") }()
	<-svc.started

	require.NoError(t, c.RenameConversation(ctx, "c1", "Renamed"))
	v := c.Snapshot()
	assert.True(t, v.Pending())
	assert.Equal(t, "Renamed", v.Session.Subject)
	assert.Equal(t, []string{"q", "a", "hello"}, texts(v.Turns))

	close(svc.gate)
	require.NoError(t, <-done)
	v = c.Snapshot()
	assert.False(t, v.Pending())
	assert.Equal(t, []string{"q", "a", "hello", "hi there"}, texts(v.Turns))
}

func TestSelectSavedConversationFailureKeepsTranscript(t *testing.T) {
	svc := newFakeService()
	svc.addChat("c1", "Chat", chatapi.Message{Role: "user", Content: "q"})
	c, rec := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	svc.mu.Lock()
	svc.messagesErr = &chatapi.TransportError{Op: "fetch messages", Err: errors.New("connection refused")}
	svc.mu.Unlock()

	err := c.SelectSavedConversation(ctx, "c2", "Other")
	require.Error(t, err)
	assert.True(t, chatapi.IsTransport(err))
	assert.Equal(t, "cannot reach server: connection refused", rec.last().Text)

	v := c.Snapshot()
	assert.Equal(t, "c1", v.Session.ChatID)
	assert.Equal(t, []string{"q"}, texts(v.Turns))
}

func TestStartNewConversation(t *testing.T) {
	svc := newFakeService()
	svc.addChat("c1", "Chat", chatapi.Message{Role: "user", Content: "q"})
	c, _ := newTestController(svc)
	require.NoError(t, c.Load(context.Background()))

	prev := c.Snapshot().Session.ChatID
	c.StartNewConversation()
	v := c.Snapshot()
	assert.NotEqual(t, prev, v.Session.ChatID)
	assert.Equal(t, []string{"greeting"}, texts(v.Turns))
	assert.Equal(t, "New conversation", v.Session.Subject)

	prev = v.Session.ChatID
	c.StartNewConversation()
	assert.NotEqual(t, prev, c.Snapshot().Session.ChatID)
}

func TestRefreshSavedListPrefersRequestedChat(t *testing.T) {
	svc := newFakeService()
	svc.addChat("a", "A", chatapi.Message{Role: "user", Content: "from a"})
	svc.addChat("b", "B", chatapi.Message{Role: "user", Content: "from b"})
	c, _ := newTestController(svc)
	ctx := context.Background()

	require.NoError(t, c.RefreshSavedList(ctx, "a"))
	v := c.Snapshot()
	assert.Equal(t, "a", v.Session.ChatID)
	assert.Equal(t, []string{"from a"}, texts(v.Turns))

	require.NoError(t, c.RefreshSavedList(ctx, "missing"))
	assert.Equal(t, "b", c.Snapshot().Session.ChatID)
}

func TestSelectDefault(t *testing.T) {
	list := []chatapi.ChatRecord{{ChatID: "x"}, {ChatID: "y"}}

	_, ok := SelectDefault(nil, "x")
	assert.False(t, ok)

	got, ok := SelectDefault(list, "y")
	require.True(t, ok)
	assert.Equal(t, "y", got.ChatID)

	got, ok = SelectDefault(list, "")
	require.True(t, ok)
	assert.Equal(t, "x", got.ChatID)

	got, ok = SelectDefault(list, "z")
	require.True(t, ok)
	assert.Equal(t, "x", got.ChatID)
}

func TestRenameConversation(t *testing.T) {
	svc := newFakeService()
	svc.addChat("a", "A")
	svc.addChat("b", "B")
	c, rec := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.ErrorIs(t, c.RenameConversation(ctx, "a", "   "), ErrBlankSubject)
	assert.Equal(t, LevelWarn, rec.last().Level)
	assert.Empty(t, svc.renamed)

	require.NoError(t, c.RenameConversation(ctx, "a", "Foo"))
	v := c.Snapshot()
	assert.Equal(t, "a", v.Session.ChatID)
	assert.Equal(t, "Foo", v.Session.Subject)
	idx := indexOf(v.Saved, "a")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "Foo", v.Saved[idx].Subject)
}

func TestRenameConversationFailure(t *testing.T) {
	svc := newFakeService()
	svc.addChat("a", "A")
	svc.renameErr = &chatapi.APIError{Code: 280, Message: "not yours"}
	c, rec := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	fetches := svc.fetches

	require.Error(t, c.RenameConversation(ctx, "a", "Foo"))
	assert.Equal(t, "request failed: not yours", rec.last().Text)
	assert.Equal(t, fetches, svc.fetches)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	svc := newFakeService()
	svc.addChat("only", "Only", chatapi.Message{Role: "user", Content: "q"})
	var prompt string
	confirm := false
	c, _ := newTestController(svc, WithConfirmer(ConfirmFunc(func(ctx context.Context, p string) (bool, error) {
		prompt = p
		return confirm, nil
	})))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.NoError(t, c.DeleteConversation(ctx, "only"))
	assert.Empty(t, svc.deleted)
	assert.Contains(t, prompt, "Only")

	confirm = true
	require.NoError(t, c.DeleteConversation(ctx, "only"))
	assert.Equal(t, []string{"only"}, svc.deleted)

	v := c.Snapshot()
	assert.Empty(t, v.Saved)
	assert.Equal(t, []string{"greeting"}, texts(v.Turns))
}

func TestDeleteWithoutConfirmerDoesNothing(t *testing.T) {
	svc := newFakeService()
	svc.addChat("only", "Only")
	c := NewController(svc, WithNotifier(&noticeRecorder{}))
	require.NoError(t, c.DeleteConversation(context.Background(), "only"))
	assert.Empty(t, svc.deleted)
}

func TestDeleteSelectsRemainingConversation(t *testing.T) {
	svc := newFakeService()
	svc.addChat("a", "A", chatapi.Message{Role: "user", Content: "from a"})
	svc.addChat("b", "B", chatapi.Message{Role: "user", Content: "from b"})
	c, _ := newTestController(svc, WithConfirmer(AlwaysConfirm))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.Equal(t, "b", c.Snapshot().Session.ChatID)

	require.NoError(t, c.DeleteConversation(ctx, "b"))
	v := c.Snapshot()
	assert.Equal(t, "a", v.Session.ChatID)
	assert.Equal(t, []string{"from a"}, texts(v.Turns))
}

func TestCopyTranscript(t *testing.T) {
	svc := newFakeService()
	svc.addChat("c1", "Chat", chatapi.Message{Role: "user", Content: "q"}, chatapi.Message{Role: "assistant", Content: "a"})
	cb := &memClipboard{}
	c, rec := newTestController(svc, WithClipboard(cb))

	require.NoError(t, c.CopyTranscript())
	assert.Empty(t, cb.text)
	assert.Empty(t, rec.notices)

	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.CopyTranscript())
	assert.Equal(t, "q\na", cb.text)
	assert.Equal(t, LevelSuccess, rec.last().Level)
}

func TestClearTranscriptAbandonsPendingTurn(t *testing.T) {
	svc := newFakeService()
	svc.addChat("c1", "Chat", chatapi.Message{Role: "user", Content: "q"})
	svc.gate = make(chan struct{})
	svc.started = make(chan struct{})
	c, _ := newTestController(svc)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	done := make(chan error, 1)
	go func() { done <- c.SubmitMessage(ctx, "hello") }()
	<-svc.started

	c.ClearTranscript()
	v := c.Snapshot()
	assert.Equal(t, []string{"greeting"}, texts(v.Turns))
	assert.False(t, v.Pending())
	assert.Equal(t, "c1", v.Session.ChatID)

	close(svc.gate)
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrStaleResponse)
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return")
	}
	assert.Equal(t, []string{"greeting"}, texts(c.Snapshot().Turns))
}
