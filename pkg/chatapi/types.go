package chatapi

import "time"

// CodeOK is the envelope code the backend uses for success.
const CodeOK = 200

// ChatRecord is a saved conversation summary as listed in the sidebar.
type ChatRecord struct {
	ID        uint64    `json:"ID" yaml:"id"`
	ChatID    string    `json:"ChatID" yaml:"chat_id"`
	Subject   string    `json:"Subject" yaml:"subject"`
	CreatedAt time.Time `json:"CreatedAt" yaml:"created_at"`
	UpdatedAt time.Time `json:"UpdatedAt" yaml:"updated_at"`
}

// UserChatRecords is the payload of the saved-list endpoint.
type UserChatRecords struct {
	UserID     uint64       `json:"UserID"`
	UserName   string       `json:"UserName"`
	IsAdmin    bool         `json:"IsAdmin"`
	ChatRecord []ChatRecord `json:"ChatRecord"`
}

type UserInfo struct {
	UserID   uint64 `json:"UserID"`
	UserName string `json:"UserName"`
	IsAdmin  bool   `json:"IsAdmin"`
}

// Message is a stored or outbound chat message.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

type CompletionRequest struct {
	UserID   uint64    `json:"userid"`
	ChatID   string    `json:"chatid"`
	Subject  string    `json:"subject"`
	Messages []Message `json:"messages"`
}

type CompletionResponse struct {
	Reply      string       `json:"Reply"`
	UserID     uint64       `json:"UserID"`
	UserName   string       `json:"UserName"`
	ChatRecord []ChatRecord `json:"ChatRecord"`
}

// ChatID returns the id of the conversation the reply was stored under.
func (r *CompletionResponse) ChatID() string {
	if r == nil || len(r.ChatRecord) == 0 {
		return ""
	}
	return r.ChatRecord[0].ChatID
}

// ServerConfig is the backend configuration record. It is read with the
// backend's PascalCase keys and written back snake_cased.
type ServerConfig struct {
	ApiKey           string  `json:"ApiKey" yaml:"api_key"`
	ApiURL           string  `json:"ApiURL" yaml:"api_url"`
	Port             int     `json:"Port" yaml:"port"`
	Listen           string  `json:"Listen" yaml:"listen"`
	BotDesc          string  `json:"BotDesc" yaml:"bot_desc"`
	Proxy            string  `json:"Proxy" yaml:"proxy"`
	MaxTokens        int     `json:"MaxTokens" yaml:"max_tokens"`
	Model            string  `json:"Model" yaml:"model"`
	Temperature      float32 `json:"Temperature" yaml:"temperature"`
	TopP             float32 `json:"TopP" yaml:"top_p"`
	PresencePenalty  float32 `json:"PresencePenalty" yaml:"presence_penalty"`
	FrequencyPenalty float32 `json:"FrequencyPenalty" yaml:"frequency_penalty"`
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

func newSetConfigRequest(c ServerConfig) setConfigRequest {
	return setConfigRequest{
		ApiKey:           c.ApiKey,
		ApiURL:           c.ApiURL,
		Port:             c.Port,
		Listen:           c.Listen,
		BotDesc:          c.BotDesc,
		Proxy:            c.Proxy,
		MaxTokens:        c.MaxTokens,
		Model:            c.Model,
		Temperature:      c.Temperature,
		TopP:             c.TopP,
		PresencePenalty:  c.PresencePenalty,
		FrequencyPenalty: c.FrequencyPenalty,
	}
}

type chatIDRequest struct {
	ChatID string `json:"chatid"`
}

type renameRequest struct {
	ChatID  string `json:"chatid"`
	Subject string `json:"subject"`
}

type userRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	NewPassword string `json:"newpassword,omitempty"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type messagesResponse struct {
	Messages string `json:"messages"`
}
