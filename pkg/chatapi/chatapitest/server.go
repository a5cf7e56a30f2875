// Package chatapitest provides an in-memory chat backend speaking the same
// envelope protocol as the real server, for use in tests.
package chatapitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
)

// CodeBusiness is the envelope code the backend uses for rejected requests.
const CodeBusiness = 280

const subjectMaxLength = 15

type User struct {
	ID       uint64
	Name     string
	Password string
	IsAdmin  bool
	Token    string
}

type record struct {
	ID        uint64
	UserID    uint64
	ChatID    string
	Subject   string
	Messages  []chatapi.Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReplyFunc produces the assistant reply for a conversation history ending
// with the new user message.
type ReplyFunc func(history []chatapi.Message) (string, error)

type Server struct {
	*httptest.Server

	mu      sync.Mutex
	users   map[string]*User
	records map[string]*record
	nextID  uint64
	clock   time.Time
	config  chatapi.ServerConfig
	calls   map[string]int
	failing map[string]string
	reply   ReplyFunc
}

// NewServer starts a backend with an admin user "admin" and a regular user
// "alice", both with password "Passw0rd!" and tokens "admin-token" and
// "alice-token".
func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		users:   map[string]*User{},
		records: map[string]*record{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		calls:   map[string]int{},
		failing: map[string]string{},
		config: chatapi.ServerConfig{
			Model:       "gpt-3.5-turbo",
			MaxTokens:   512,
			Temperature: 0.9,
			TopP:        1,
			Port:        8080,
			BotDesc:     "You are a helpful assistant.",
		},
		reply: func(history []chatapi.Message) (string, error) {
			return "echo: " + history[len(history)-1].Content, nil
		},
	}
	s.AddUser("admin", "Passw0rd!", true)
	s.AddUser("alice", "Passw0rd!", false)

	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.count())
	r.POST(chatapi.PathLogin, s.login)

	authed := r.Group("/", s.auth())
	authed.POST(chatapi.PathUserInfo, s.userInfo)
	authed.POST(chatapi.PathCompletion, s.completion)
	authed.POST(chatapi.PathChatRecords, s.chatRecords)
	authed.POST(chatapi.PathChatMessages, s.chatMessages)
	authed.POST(chatapi.PathRenameSubject, s.renameSubject)
	authed.POST(chatapi.PathDeleteChat, s.deleteChat)
	authed.POST(chatapi.PathGetConfig, s.getConfig)
	authed.POST(chatapi.PathSetConfig, s.setConfig)
	authed.POST(chatapi.PathCreateUser, s.createUser)
	authed.POST(chatapi.PathUpdatePassword, s.updatePassword)
	return r
}

func (s *Server) AddUser(name, password string, admin bool) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	u := &User{ID: s.nextID, Name: name, Password: password, IsAdmin: admin, Token: name + "-token"}
	s.users[name] = u
	return u
}

func (s *Server) User(name string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// SetReply replaces the reply generator.
func (s *Server) SetReply(f ReplyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = f
}

// FailNext makes the next request to path answer with a business error.
func (s *Server) FailNext(path, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[path] = message
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) Config() chatapi.ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// SeedChat stores a conversation for user directly.
func (s *Server) SeedChat(userName, chatID, subject string, messages ...chatapi.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userName]
	if u == nil {
		panic(fmt.Sprintf("unknown user %q", userName))
	}
	s.storeLocked(u.ID, chatID, subject, messages)
}

// Messages returns the stored history of chatID.
func (s *Server) Messages(chatID string) []chatapi.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[chatID]
	if !ok {
		return nil
	}
	return append([]chatapi.Message(nil), rec.Messages...)
}

func (s *Server) storeLocked(userID uint64, chatID, subject string, messages []chatapi.Message) *record {
	s.clock = s.clock.Add(time.Second)
	rec, ok := s.records[chatID]
	if !ok {
		s.nextID++
		rec = &record{ID: s.nextID, UserID: userID, ChatID: chatID, CreatedAt: s.clock}
		s.records[chatID] = rec
	}
	if subject != "" {
		rec.Subject = subject
	}
	if messages != nil {
		rec.Messages = append([]chatapi.Message(nil), messages...)
	}
	rec.UpdatedAt = s.clock
	return rec
}

func respond(c *gin.Context, code int, msg string, data any) {
	c.JSON(http.StatusOK, gin.H{"code": code, "errorMsg": msg, "data": data})
}

func summary(rec *record) gin.H {
	return gin.H{
		"ID":        rec.ID,
		"ChatID":    rec.ChatID,
		"Subject":   rec.Subject,
		"CreatedAt": rec.CreatedAt,
		"UpdatedAt": rec.UpdatedAt,
	}
}

func (s *Server) count() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls[c.Request.URL.Path]++
		msg, fail := s.failing[c.Request.URL.Path]
		delete(s.failing, c.Request.URL.Path)
		s.mu.Unlock()
		if fail {
			respond(c, CodeBusiness, msg, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		s.mu.Lock()
		var found *User
		for _, u := range s.users {
			if token != "" && u.Token == token {
				found = u
				break
			}
		}
		s.mu.Unlock()
		if found == nil {
			respond(c, http.StatusUnauthorized, "not logged in", nil)
			c.Abort()
			return
		}
		c.Set("authUser", found)
		c.Next()
	}
}

func loginUser(c *gin.Context) *User {
	v, _ := c.Get("authUser")
	u, _ := v.(*User)
	return u
}

type userRequest struct {
	Name        string `json:"username"`
	Password    string `json:"password"`
	NewPassword string `json:"newpassword"`
}

func (s *Server) login(c *gin.Context) {
	var req userRequest
	if err := c.BindJSON(&req); err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	s.mu.Lock()
	u, ok := s.users[req.Name]
	s.mu.Unlock()
	if !ok || u.Password != req.Password {
		respond(c, CodeBusiness, "invalid username or password", nil)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"token": u.Token})
}

func (s *Server) userInfo(c *gin.Context) {
	u := loginUser(c)
	respond(c, http.StatusOK, "", gin.H{"UserID": u.ID, "UserName": u.Name, "IsAdmin": u.IsAdmin})
}

func (s *Server) chatRecords(c *gin.Context) {
	u := loginUser(c)
	s.mu.Lock()
	var owned []*record
	for _, rec := range s.records {
		if rec.UserID == u.ID {
			owned = append(owned, rec)
		}
	}
	s.mu.Unlock()
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	var list []gin.H
	for _, rec := range owned {
		list = append(list, summary(rec))
	}
	respond(c, http.StatusOK, "", gin.H{
		"UserID":     u.ID,
		"UserName":   u.Name,
		"IsAdmin":    u.IsAdmin,
		"ChatRecord": list,
	})
}

type chatRequest struct {
	UserID   uint64            `json:"userid"`
	ChatID   string            `json:"chatid"`
	Subject  string            `json:"subject"`
	Messages []chatapi.Message `json:"messages"`
}

func (s *Server) chatMessages(c *gin.Context) {
	var req chatRequest
	if err := c.BindJSON(&req); err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	u := loginUser(c)
	s.mu.Lock()
	rec, ok := s.records[req.ChatID]
	var encoded []byte
	if ok {
		encoded, _ = json.Marshal(rec.Messages)
	}
	s.mu.Unlock()
	switch {
	case !ok:
		respond(c, CodeBusiness, "record not found", nil)
	case rec.UserID != u.ID:
		respond(c, CodeBusiness, "not a conversation of the current user", nil)
	default:
		respond(c, http.StatusOK, "", gin.H{"messages": string(encoded)})
	}
}

func (s *Server) completion(c *gin.Context) {
	var req chatRequest
	if err := c.BindJSON(&req); err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	if len(req.Messages) == 0 {
		respond(c, CodeBusiness, "a question is required", nil)
		return
	}
	u := loginUser(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	subject := req.Subject
	history := []chatapi.Message{}
	if rec, ok := s.records[req.ChatID]; ok {
		if rec.UserID != u.ID {
			respond(c, CodeBusiness, "the chat record does not belong to the current user", nil)
			return
		}
		history = append(history, rec.Messages...)
		subject = ""
	} else {
		subject = truncateRunes(req.Messages[0].Content, subjectMaxLength)
	}
	history = append(history, req.Messages[0])

	reply, err := s.reply(history)
	if err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	history = append(history, chatapi.Message{Role: "assistant", Content: reply})
	rec := s.storeLocked(u.ID, req.ChatID, subject, history)

	respond(c, http.StatusOK, "", gin.H{
		"Reply":      reply,
		"UserID":     u.ID,
		"UserName":   u.Name,
		"ChatRecord": []gin.H{summary(rec)},
	})
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (s *Server) renameSubject(c *gin.Context) {
	var req chatRequest
	if err := c.BindJSON(&req); err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	u := loginUser(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[req.ChatID]
	if ok && rec.UserID != u.ID {
		respond(c, CodeBusiness, "the chat record does not belong to the current user", nil)
		return
	}
	s.storeLocked(u.ID, req.ChatID, req.Subject, nil)
	respond(c, http.StatusOK, "", nil)
}

func (s *Server) deleteChat(c *gin.Context) {
	var req chatRequest
	if err := c.BindJSON(&req); err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	u := loginUser(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[req.ChatID]
	if !ok {
		respond(c, CodeBusiness, "record not found", nil)
		return
	}
	if rec.UserID != u.ID {
		respond(c, CodeBusiness, "the chat record does not belong to the current user", nil)
		return
	}
	delete(s.records, req.ChatID)
	respond(c, http.StatusOK, "", nil)
}

func (s *Server) getConfig(c *gin.Context) {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()
	respond(c, http.StatusOK, "", cfg)
}

type setConfigRequest struct {
	ApiKey           string  `json:"api_key"`
	ApiURL           string  `json:"api_url"`
	Port             int     `json:"port"`
	Listen           string  `json:"listen"`
	BotDesc          string  `json:"bot_desc"`
	Proxy            string  `json:"proxy"`
	MaxTokens        int     `json:"max_tokens"`
	Model            string  `json:"model"`
	Temperature      float32 `json:"temperature"`
	TopP             float32 `json:"top_p"`
	PresencePenalty  float32 `json:"presence_penalty"`
	FrequencyPenalty float32 `json:"frequency_penalty"`
}

func (s *Server) setConfig(c *gin.Context) {
	var req setConfigRequest
	if err := c.BindJSON(&req); err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	if !loginUser(c).IsAdmin {
		respond(c, CodeBusiness, "only administrators can change the configuration", nil)
		return
	}
	s.mu.Lock()
	s.config = chatapi.ServerConfig{
		ApiKey:           req.ApiKey,
		ApiURL:           req.ApiURL,
		Port:             req.Port,
		Listen:           req.Listen,
		BotDesc:          req.BotDesc,
		Proxy:            req.Proxy,
		MaxTokens:        req.MaxTokens,
		Model:            req.Model,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	}
	s.mu.Unlock()
	respond(c, http.StatusOK, "", nil)
}

func (s *Server) createUser(c *gin.Context) {
	var req userRequest
	if err := c.BindJSON(&req); err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	if req.Name == "" || req.Password == "" {
		respond(c, CodeBusiness, "username and password are required", nil)
		return
	}
	if !loginUser(c).IsAdmin {
		respond(c, CodeBusiness, "only administrators can create users", nil)
		return
	}
	if _, exists := s.User(req.Name); exists {
		respond(c, CodeBusiness, "user already exists", nil)
		return
	}
	s.AddUser(req.Name, req.Password, false)
	respond(c, http.StatusOK, "", nil)
}

func (s *Server) updatePassword(c *gin.Context) {
	var req userRequest
	if err := c.BindJSON(&req); err != nil {
		respond(c, CodeBusiness, err.Error(), nil)
		return
	}
	u := loginUser(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case req.Name == "":
		if u.Password != req.Password {
			respond(c, CodeBusiness, "the old password is wrong", nil)
			return
		}
		u.Password = req.NewPassword
	case u.IsAdmin:
		target, ok := s.users[req.Name]
		if !ok {
			respond(c, CodeBusiness, "user not found", nil)
			return
		}
		target.Password = req.NewPassword
	default:
		respond(c, CodeBusiness, "only administrators can reset other users' passwords", nil)
		return
	}
	respond(c, http.StatusOK, "", nil)
}
