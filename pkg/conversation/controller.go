// Package conversation implements the chat view controller: it turns user
// actions into backend calls and keeps the displayed transcript, the saved
// chat list and the active session consistent with the server's answers.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
	"github.com/go-go-golems/chatweb/pkg/session"
	"github.com/go-go-golems/chatweb/pkg/transcript"
)

const DefaultGreeting = "Hello, I am your AI assistant."

var (
	ErrBlankInput   = errors.New("message is blank")
	ErrTurnPending  = session.ErrTurnPending
	ErrBlankSubject = errors.New("subject is blank")
	// ErrStaleResponse is returned when a response arrives after the user
	// navigated away from the conversation it belongs to. The response is
	// dropped.
	ErrStaleResponse = errors.New("response belongs to a conversation that is no longer active")
)

// Controller owns the session, the transcript and the saved-chat list. All
// methods are safe for concurrent use; the state lock is never held while a
// request is in flight, so navigation stays possible while a turn is pending.
type Controller struct {
	svc       Service
	notifier  Notifier
	confirmer Confirmer
	clipboard Clipboard
	logger    zerolog.Logger

	mu         sync.Mutex
	session    *session.Session
	transcript *transcript.Transcript
	saved      []chatapi.ChatRecord
	userName   string
	isAdmin    bool
	// navSeq increases with every navigation; a history fetch only applies
	// if no newer navigation started meanwhile.
	navSeq uint64
}

type Option func(*Controller)

func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.notifier = n
		}
	}
}

func WithConfirmer(cf Confirmer) Option {
	return func(c *Controller) {
		if cf != nil {
			c.confirmer = cf
		}
	}
}

func WithClipboard(cb Clipboard) Option {
	return func(c *Controller) {
		if cb != nil {
			c.clipboard = cb
		}
	}
}

func WithGreeting(greeting string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(greeting) != "" {
			c.transcript = transcript.New(greeting)
		}
	}
}

func WithSession(s *session.Session) Option {
	return func(c *Controller) {
		if s != nil {
			c.session = s
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func NewController(svc Service, opts ...Option) *Controller {
	c := &Controller{
		svc:        svc,
		notifier:   LogNotifier{},
		confirmer:  NeverConfirm,
		clipboard:  SystemClipboard{},
		logger:     log.Logger.With().Str("component", "conversation").Logger(),
		session:    session.New(),
		transcript: transcript.New(DefaultGreeting),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// View is a consistent copy of everything a front end displays.
type View struct {
	Turns    []transcript.Turn
	Saved    []chatapi.ChatRecord
	Session  session.Snapshot
	UserName string
	IsAdmin  bool
}

func (v View) Pending() bool {
	return v.Session.HasPending
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Turns:    c.transcript.Turns(),
		Saved:    append([]chatapi.ChatRecord(nil), c.saved...),
		Session:  c.session.Snapshot(),
		UserName: c.userName,
		IsAdmin:  c.isAdmin,
	}
}

// Load performs the initial fetch of the saved list and selects the newest
// conversation, or starts a new one if there is none.
func (c *Controller) Load(ctx context.Context) error {
	return c.RefreshSavedList(ctx, "")
}

// SelectDefault picks the entry to display after a refresh: preferredChatID
// if it is in the list, otherwise the first entry. It reports false only for
// an empty list.
func SelectDefault(list []chatapi.ChatRecord, preferredChatID string) (chatapi.ChatRecord, bool) {
	if len(list) == 0 {
		return chatapi.ChatRecord{}, false
	}
	if preferredChatID != "" {
		if idx := indexOf(list, preferredChatID); idx >= 0 {
			return list[idx], true
		}
	}
	return list[0], true
}

func indexOf(list []chatapi.ChatRecord, chatID string) int {
	for i, rec := range list {
		if rec.ChatID == chatID {
			return i
		}
	}
	return -1
}

// SubmitMessage sends text as the next user turn. Blank text and sends while
// a turn is pending are rejected with a warning and no request is made.
func (c *Controller) SubmitMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.session.HasPending() {
		c.mu.Unlock()
		c.notify(LevelWarn, "Still waiting for the previous reply, please wait.")
		return ErrTurnPending
	}
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		c.notify(LevelWarn, "Please enter a message.")
		return ErrBlankInput
	}

	question := transcript.NormalizeQuestion(text)
	c.transcript.Append(transcript.RoleUser, text)
	turn, err := c.session.BeginTurn(question)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	logger := c.logger.With().Str("chat_id", turn.ChatID).Uint64("generation", turn.Generation).Logger()
	logger.Debug().Int("length", len(question)).Msg("sending turn")

	resp, err := c.svc.Completion(ctx, chatapi.CompletionRequest{
		UserID:   turn.UserID,
		ChatID:   turn.ChatID,
		Subject:  turn.Subject,
		Messages: []chatapi.Message{{Role: string(transcript.RoleUser), Content: question}},
	})

	c.mu.Lock()
	if !c.session.EndTurn(turn.Generation) {
		c.mu.Unlock()
		logger.Debug().Msg("dropping reply for abandoned turn")
		return ErrStaleResponse
	}
	if err != nil {
		c.mu.Unlock()
		c.notifyError(err)
		return errors.Wrap(err, "send turn")
	}

	returnedID := resp.ChatID()
	if len(c.saved) == 0 || indexOf(c.saved, returnedID) < 0 {
		nav := c.navSeq
		c.mu.Unlock()
		logger.Debug().Str("returned_chat_id", returnedID).Msg("conversation not in saved list, refreshing")
		return c.refresh(ctx, returnedID, &nav)
	}
	c.transcript.Append(transcript.RoleAssistant, resp.Reply)
	c.mu.Unlock()
	return nil
}

// SelectSavedConversation loads the history of chatID and makes it the
// active conversation. Leaving the active conversation abandons its pending
// turn immediately. On failure the current transcript is kept.
func (c *Controller) SelectSavedConversation(ctx context.Context, chatID, subject string) error {
	c.mu.Lock()
	ticket := c.beginNavigationLocked(chatID)
	c.mu.Unlock()
	return c.loadConversation(ctx, ticket, chatID, subject)
}

func (c *Controller) beginNavigationLocked(chatID string) uint64 {
	c.navSeq++
	if chatID != c.session.ChatID() {
		c.session.AbandonTurn()
	}
	return c.navSeq
}

func (c *Controller) loadConversation(ctx context.Context, ticket uint64, chatID, subject string) error {
	messages, err := c.svc.ChatMessages(ctx, chatID)

	c.mu.Lock()
	if ticket != c.navSeq {
		c.mu.Unlock()
		c.logger.Debug().Str("chat_id", chatID).Msg("dropping history of superseded selection")
		return ErrStaleResponse
	}
	if err != nil {
		c.mu.Unlock()
		c.notifyError(err)
		return errors.Wrapf(err, "select conversation %s", chatID)
	}
	if chatID == c.session.ChatID() && c.session.HasPending() {
		// the history predates the pending turn, keep the displayed turns
		c.session.SetSubject(subject)
	} else {
		c.transcript.Replace(c.historyTurns(messages))
		c.session.SelectConversation(chatID, subject)
	}
	c.mu.Unlock()

	c.logger.Debug().Str("chat_id", chatID).Int("messages", len(messages)).Msg("selected conversation")
	return nil
}

func (c *Controller) historyTurns(messages []chatapi.Message) []transcript.Turn {
	turns := make([]transcript.Turn, 0, len(messages))
	for _, m := range messages {
		switch transcript.Role(m.Role) {
		case transcript.RoleUser:
			turns = append(turns, transcript.Turn{Role: transcript.RoleUser, Text: m.Content})
		case transcript.RoleAssistant:
			turns = append(turns, transcript.Turn{Role: transcript.RoleAssistant, Text: m.Content})
		case transcript.RoleSystem:
			turns = append(turns, c.transcript.GreetingTurn())
		default:
			c.logger.Debug().Str("role", m.Role).Msg("skipping message with unknown role")
		}
	}
	return turns
}

// StartNewConversation resets the transcript to the greeting and switches the
// session to a fresh conversation id.
func (c *Controller) StartNewConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startNewLocked()
}

func (c *Controller) startNewLocked() {
	c.navSeq++
	c.transcript.Reset()
	c.session.StartNewConversation()
	c.logger.Debug().Str("chat_id", c.session.ChatID()).Msg("started new conversation")
}

// RefreshSavedList refetches the saved list and re-selects preferredChatID,
// falling back to the newest conversation or a new one if the list is empty.
func (c *Controller) RefreshSavedList(ctx context.Context, preferredChatID string) error {
	return c.refresh(ctx, preferredChatID, nil)
}

// refresh re-selects only if no navigation started after since, when given.
func (c *Controller) refresh(ctx context.Context, preferredChatID string, since *uint64) error {
	records, err := c.svc.ChatRecords(ctx)
	if err != nil {
		c.notifyError(err)
		return errors.Wrap(err, "fetch saved list")
	}

	c.mu.Lock()
	c.saved = append([]chatapi.ChatRecord(nil), records.ChatRecord...)
	c.userName = records.UserName
	c.isAdmin = records.IsAdmin
	c.session.SetUserID(records.UserID)

	if since != nil && *since != c.navSeq {
		c.mu.Unlock()
		c.logger.Debug().Str("chat_id", preferredChatID).Msg("navigation started meanwhile, not re-selecting")
		return nil
	}
	entry, ok := SelectDefault(c.saved, preferredChatID)
	if !ok {
		c.startNewLocked()
		c.mu.Unlock()
		return nil
	}
	ticket := c.beginNavigationLocked(entry.ChatID)
	c.mu.Unlock()
	return c.loadConversation(ctx, ticket, entry.ChatID, entry.Subject)
}

func (c *Controller) RenameConversation(ctx context.Context, chatID, subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		c.notify(LevelWarn, "The conversation subject cannot be empty.")
		return ErrBlankSubject
	}
	if err := c.svc.RenameSubject(ctx, chatID, subject); err != nil {
		c.notifyError(err)
		return errors.Wrapf(err, "rename conversation %s", chatID)
	}
	return c.RefreshSavedList(ctx, chatID)
}

// DeleteConversation asks the Confirmer first and does nothing unless it
// approves.
func (c *Controller) DeleteConversation(ctx context.Context, chatID string) error {
	c.mu.Lock()
	subject := chatID
	if idx := indexOf(c.saved, chatID); idx >= 0 {
		subject = c.saved[idx].Subject
	}
	c.mu.Unlock()

	ok, err := c.confirmer.Confirm(ctx, fmt.Sprintf("Delete conversation %q?", subject))
	if err != nil {
		return errors.Wrap(err, "confirm deletion")
	}
	if !ok {
		c.logger.Debug().Str("chat_id", chatID).Msg("deletion not confirmed")
		return nil
	}
	if err := c.svc.DeleteChat(ctx, chatID); err != nil {
		c.notifyError(err)
		return errors.Wrapf(err, "delete conversation %s", chatID)
	}
	return c.RefreshSavedList(ctx, "")
}

// CopyTranscript puts every turn except the greeting on the clipboard.
func (c *Controller) CopyTranscript() error {
	c.mu.Lock()
	text, ok := c.transcript.ClipboardText()
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := c.clipboard.WriteAll(text); err != nil {
		c.notify(LevelError, "Could not copy the conversation: "+err.Error())
		return errors.Wrap(err, "write clipboard")
	}
	c.notify(LevelSuccess, "Conversation copied.")
	return nil
}

// ClearTranscript resets the display to the greeting without contacting the
// server. A pending turn is abandoned.
func (c *Controller) ClearTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Reset()
	c.session.AbandonTurn()
}

func (c *Controller) notify(level Level, text string) {
	c.notifier.Notify(Notice{Level: level, Text: text})
}

func (c *Controller) notifyError(err error) {
	c.notify(LevelError, chatapi.UserMessage(err))
}
