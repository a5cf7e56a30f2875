// Package settings resolves the client configuration from viper and the
// credentials file written by the login command.
package settings

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
	"github.com/go-go-golems/chatweb/pkg/conversation"
	"github.com/go-go-golems/chatweb/pkg/session"
)

const (
	KeyServer       = "server"
	KeyToken        = "token"
	KeyTimeout      = "timeout"
	KeyGreeting     = "greeting"
	KeyNewSubject   = "new-subject"
	KeySidebarWidth = "sidebar-width"

	DefaultServer       = "http://localhost:8080"
	DefaultSidebarWidth = 32
)

type Settings struct {
	Server       string
	Token        string
	Timeout      time.Duration
	Greeting     string
	NewSubject   string
	SidebarWidth int
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServer, DefaultServer)
	v.SetDefault(KeyTimeout, chatapi.DefaultTimeout)
	v.SetDefault(KeyGreeting, conversation.DefaultGreeting)
	v.SetDefault(KeyNewSubject, session.DefaultSubject)
	v.SetDefault(KeySidebarWidth, DefaultSidebarWidth)
}

func FromViper(v *viper.Viper) Settings {
	s := Settings{
		Server:       strings.TrimSpace(v.GetString(KeyServer)),
		Token:        strings.TrimSpace(v.GetString(KeyToken)),
		Timeout:      v.GetDuration(KeyTimeout),
		Greeting:     v.GetString(KeyGreeting),
		NewSubject:   v.GetString(KeyNewSubject),
		SidebarWidth: v.GetInt(KeySidebarWidth),
	}
	if s.Timeout <= 0 {
		s.Timeout = chatapi.DefaultTimeout
	}
	if s.SidebarWidth <= 0 {
		s.SidebarWidth = DefaultSidebarWidth
	}
	return s
}

// WithCredentials fills in the token from creds when none is configured and
// the credentials were issued by the same server.
func (s Settings) WithCredentials(creds *Credentials) Settings {
	if creds == nil || s.Token != "" {
		return s
	}
	if creds.Server != "" && strings.TrimRight(creds.Server, "/") != strings.TrimRight(s.Server, "/") {
		log.Debug().Str("server", s.Server).Str("credentials_server", creds.Server).Msg("ignoring credentials of another server")
		return s
	}
	s.Token = creds.Token
	return s
}

// NewClient builds an API client for the configured server.
func (s Settings) NewClient(opts ...chatapi.Option) (*chatapi.Client, error) {
	base := []chatapi.Option{chatapi.WithTimeout(s.Timeout)}
	if s.Token != "" {
		base = append(base, chatapi.WithToken(s.Token))
	}
	return chatapi.NewClient(s.Server, append(base, opts...)...)
}

// Credentials is the content of the credentials file.
type Credentials struct {
	Server   string    `yaml:"server"`
	UserName string    `yaml:"username"`
	Token    string    `yaml:"token"`
	SavedAt  time.Time `yaml:"saved_at"`
}

// DefaultCredentialsPath is ~/.chatweb/credentials.yaml.
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".chatweb", "credentials.yaml"), nil
}

// LoadCredentials reads path. A missing file yields nil credentials and no
// error.
func LoadCredentials(path string) (*Credentials, error) {
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var creds Credentials
	if err := yaml.Unmarshal(buf, &creds); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &creds, nil
}

// SaveCredentials writes creds to path, readable by the owner only.
func SaveCredentials(path string, creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create credentials directory")
	}
	buf, err := yaml.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "encode credentials")
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// RemoveCredentials deletes path; a missing file is not an error.
func RemoveCredentials(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}
