// Package chatapi is a client for the chat backend's JSON API. Every endpoint
// answers with a {code, data, errorMsg} envelope; code 200 means success.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	PathLogin          = "/user/auth"
	PathUserInfo       = "/auth/info"
	PathChatRecords    = "/chat/userchatrecord"
	PathChatMessages   = "/chat/chatmessages"
	PathCompletion     = "/chat/completion"
	PathRenameSubject  = "/chat/renamesubject"
	PathDeleteChat     = "/chat/deletechat"
	PathGetConfig      = "/chat/getconfig"
	PathSetConfig      = "/chat/setconfig"
	PathCreateUser     = "/user/createuser"
	PathUpdatePassword = "/user/updatepassword"
)

const DefaultTimeout = 60 * time.Second

// RequestIDHeader carries a per-request uuid so client and server logs can be
// correlated.
const RequestIDHeader = "X-Request-Id"

type envelope struct {
	Code     int             `json:"code"`
	Data     json.RawMessage `json:"data"`
	ErrorMsg string          `json:"errorMsg"`
}

type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Option func(*Client) error

func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = strings.TrimSpace(token)
		return nil
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.httpClient = hc
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.Errorf("invalid timeout %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("server url is empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid server url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("server url %q must use http or https", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Logger.With().Str("component", "chatapi").Logger(),
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "failed to apply client option")
		}
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetToken replaces the bearer token, e.g. after Login.
func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

func (c *Client) Token() string {
	return c.token
}

// Login exchanges credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := c.post(ctx, "login", PathLogin, userRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", &TransportError{Op: "login", Err: errors.New("response carries no token")}
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	var info UserInfo
	if err := c.post(ctx, "user info", PathUserInfo, struct{}{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ChatRecords fetches the saved-chat list of the logged in user, newest first.
func (c *Client) ChatRecords(ctx context.Context) (*UserChatRecords, error) {
	var records UserChatRecords
	if err := c.post(ctx, "fetch saved list", PathChatRecords, struct{}{}, &records); err != nil {
		return nil, err
	}
	return &records, nil
}

// ChatMessages fetches the stored history of a conversation. The backend
// returns it as a JSON-encoded string which is decoded here.
func (c *Client) ChatMessages(ctx context.Context, chatID string) ([]Message, error) {
	const op = "fetch messages"
	var resp messagesResponse
	if err := c.post(ctx, op, PathChatMessages, chatIDRequest{ChatID: chatID}, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Messages) == "" {
		return []Message{}, nil
	}
	var messages []Message
	if err := json.Unmarshal([]byte(resp.Messages), &messages); err != nil {
		return nil, &TransportError{Op: op, Err: errors.Wrap(err, "decode stored messages")}
	}
	return messages, nil
}

func (c *Client) Completion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var resp CompletionResponse
	if err := c.post(ctx, "send turn", PathCompletion, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RenameSubject(ctx context.Context, chatID, subject string) error {
	return c.post(ctx, "rename", PathRenameSubject, renameRequest{ChatID: chatID, Subject: subject}, nil)
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.post(ctx, "delete", PathDeleteChat, chatIDRequest{ChatID: chatID}, nil)
}

func (c *Client) GetConfig(ctx context.Context) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := c.post(ctx, "get config", PathGetConfig, struct{}{}, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) SetConfig(ctx context.Context, cfg ServerConfig) error {
	return c.post(ctx, "set config", PathSetConfig, newSetConfigRequest(cfg), nil)
}

func (c *Client) CreateUser(ctx context.Context, username, password string) error {
	return c.post(ctx, "create user", PathCreateUser, userRequest{Username: username, Password: password}, nil)
}

// UpdatePassword changes a password. With an empty username the logged in
// user's own password is changed and password must be the current one; an
// admin may pass another username to reset that user's password.
func (c *Client) UpdatePassword(ctx context.Context, username, password, newPassword string) error {
	return c.post(ctx, "update password", PathUpdatePassword, userRequest{
		Username:    username,
		Password:    password,
		NewPassword: newPassword,
	}, nil)
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = u.Path + path
	return u.String()
}

func (c *Client) post(ctx context.Context, op, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "%s: encode request", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "%s: build request", op)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger := c.logger.With().Str("endpoint", path).Str("request_id", requestID).Logger()
	start := time.Now()
	logger.Debug().Msg("sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("request failed")
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read response body")}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.Errorf("unexpected status %s", resp.Status)}
		}
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode envelope")}
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Int("code", env.Code).
		Dur("elapsed", time.Since(start)).
		Msg("received response")

	if env.Code != CodeOK {
		return &APIError{Op: op, Code: env.Code, Message: env.ErrorMsg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode response data")}
	}
	return nil
}
