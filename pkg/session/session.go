package session

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultSubject = "New conversation"

// ErrTurnPending is returned by BeginTurn while a user message is still
// waiting for its completion.
var ErrTurnPending = errors.New("a turn is already pending")

// Session is the client's record of the active conversation. It carries no
// lock of its own; the owner serializes access.
type Session struct {
	userID  uint64
	chatID  string
	subject string

	pending    string
	hasPending bool

	// generation changes whenever the active conversation changes or the
	// pending turn is abandoned. Responses carry the generation they were
	// issued under so late arrivals can be recognized.
	generation uint64

	placeholder string
	newID       func() string
}

type Option func(*Session)

// WithPlaceholder sets the subject used for freshly started conversations.
func WithPlaceholder(subject string) Option {
	return func(s *Session) {
		if strings.TrimSpace(subject) != "" {
			s.placeholder = subject
		}
	}
}

// WithIDGenerator replaces the uuid based chat id generator.
func WithIDGenerator(f func() string) Option {
	return func(s *Session) {
		if f != nil {
			s.newID = f
		}
	}
}

func WithUserID(id uint64) Option {
	return func(s *Session) {
		s.userID = id
	}
}

// New returns a session already positioned on a fresh conversation.
func New(opts ...Option) *Session {
	s := &Session{
		placeholder: DefaultSubject,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.StartNewConversation()
	return s
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	UserID     uint64
	ChatID     string
	Subject    string
	Pending    string
	HasPending bool
	Generation uint64
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		UserID:     s.userID,
		ChatID:     s.chatID,
		Subject:    s.subject,
		Pending:    s.pending,
		HasPending: s.hasPending,
		Generation: s.generation,
	}
}

func (s *Session) UserID() uint64     { return s.userID }
func (s *Session) ChatID() string     { return s.chatID }
func (s *Session) Subject() string    { return s.subject }
func (s *Session) Generation() uint64 { return s.generation }
func (s *Session) HasPending() bool   { return s.hasPending }

func (s *Session) SetUserID(id uint64) {
	s.userID = id
}

func (s *Session) SetSubject(subject string) {
	s.subject = subject
}

// StartNewConversation switches to a new conversation with a freshly
// generated id that differs from the current one.
func (s *Session) StartNewConversation() {
	prev := s.chatID
	id := s.newID()
	for i := 0; id == prev && i < 8; i++ {
		id = s.newID()
	}
	if id == prev {
		id = uuid.NewString()
	}
	s.chatID = id
	s.subject = s.placeholder
	s.abandon()
}

// SelectConversation makes an existing conversation the active one.
// Re-selecting the active conversation only updates the subject and keeps a
// pending turn valid.
func (s *Session) SelectConversation(chatID, subject string) {
	s.subject = subject
	if chatID == s.chatID {
		return
	}
	s.chatID = chatID
	s.abandon()
}

// BeginTurn records text as the single outstanding user message and returns
// the state the request must be issued with.
func (s *Session) BeginTurn(text string) (Snapshot, error) {
	if s.hasPending {
		return Snapshot{}, ErrTurnPending
	}
	s.pending = text
	s.hasPending = true
	return s.Snapshot(), nil
}

// EndTurn clears the pending turn issued under generation. It reports false
// when the session has moved on since, in which case nothing is changed.
func (s *Session) EndTurn(generation uint64) bool {
	if generation != s.generation {
		return false
	}
	s.pending = ""
	s.hasPending = false
	return true
}

// AbandonTurn drops the pending turn, if any. A response for it arriving
// later no longer matches the session generation.
func (s *Session) AbandonTurn() {
	s.abandon()
}

func (s *Session) abandon() {
	s.pending = ""
	s.hasPending = false
	s.generation++
}
