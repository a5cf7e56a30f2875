// Package admin wraps the account and server configuration endpoints with
// the checks the backend expects callers to perform before sending.
package admin

import (
	"context"
	"io"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
)

// Client is the subset of the API the admin operations use.
type Client interface {
	GetConfig(ctx context.Context) (*chatapi.ServerConfig, error)
	SetConfig(ctx context.Context, cfg chatapi.ServerConfig) error
	CreateUser(ctx context.Context, username, password string) error
	UpdatePassword(ctx context.Context, username, password, newPassword string) error
}

var _ Client = (*chatapi.Client)(nil)

type Service struct {
	client Client
}

func NewService(client Client) *Service {
	return &Service{client: client}
}

func (s *Service) Config(ctx context.Context) (*chatapi.ServerConfig, error) {
	cfg, err := s.client.GetConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get server config")
	}
	return cfg, nil
}

// UpdateConfig validates cfg locally and stores it. Invalid configs never
// reach the server.
func (s *Service) UpdateConfig(ctx context.Context, cfg chatapi.ServerConfig) error {
	if err := ValidateServerConfig(cfg); err != nil {
		return err
	}
	if err := s.client.SetConfig(ctx, cfg); err != nil {
		return errors.Wrap(err, "set server config")
	}
	log.Info().Str("model", cfg.Model).Msg("server config updated")
	return nil
}

func (s *Service) CreateUser(ctx context.Context, username, password, confirm string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.Wrap(ErrBlankField, "username")
	}
	if err := CheckNewPassword(password, confirm); err != nil {
		return err
	}
	if err := s.client.CreateUser(ctx, username, password); err != nil {
		return errors.Wrapf(err, "create user %s", username)
	}
	log.Info().Str("username", username).Msg("user created")
	return nil
}

// ChangePassword updates the logged-in user's own password.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error {
	if oldPassword == "" {
		return errors.Wrap(ErrBlankField, "current password")
	}
	if err := CheckNewPassword(newPassword, confirm); err != nil {
		return err
	}
	if err := s.client.UpdatePassword(ctx, "", oldPassword, newPassword); err != nil {
		return errors.Wrap(err, "change password")
	}
	return nil
}

// ResetPassword sets another user's password. The server only accepts this
// from an administrator.
func (s *Service) ResetPassword(ctx context.Context, username, newPassword, confirm string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.Wrap(ErrBlankField, "username")
	}
	if err := CheckNewPassword(newPassword, confirm); err != nil {
		return err
	}
	if err := s.client.UpdatePassword(ctx, username, "", newPassword); err != nil {
		return errors.Wrapf(err, "reset password of %s", username)
	}
	log.Info().Str("username", username).Msg("password reset")
	return nil
}

// ReadConfigYAML decodes a ServerConfig using its snake_case yaml keys.
func ReadConfigYAML(r io.Reader) (chatapi.ServerConfig, error) {
	var cfg chatapi.ServerConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode server config")
	}
	return cfg, nil
}

func WriteConfigYAML(w io.Writer, cfg chatapi.ServerConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return errors.Wrap(err, "encode server config")
	}
	return enc.Close()
}

// SetField assigns a single config value by its yaml key, parsing value with
// the field's type.
func SetField(cfg *chatapi.ServerConfig, key, value string) error {
	if !slices.Contains(ConfigKeys(), key) {
		return errors.Errorf("unknown config key %q", key)
	}
	node := yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: key},
		{Kind: yaml.ScalarNode, Value: value},
	}}
	next := *cfg
	if err := node.Decode(&next); err != nil {
		return errors.Wrapf(err, "invalid value for %s", key)
	}
	*cfg = next
	return nil
}

// Field is one entry of a ServerConfig keyed by its yaml name.
type Field struct {
	Key   string
	Value string
}

// ConfigFields lists every field of cfg in declaration order with its value
// in the form SetField accepts.
func ConfigFields(cfg chatapi.ServerConfig) []Field {
	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return nil
	}
	fields := make([]Field, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		fields = append(fields, Field{Key: node.Content[i].Value, Value: node.Content[i+1].Value})
	}
	return fields
}

// ConfigKeys lists the yaml keys of ServerConfig in declaration order.
func ConfigKeys() []string {
	fields := ConfigFields(chatapi.ServerConfig{})
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	return keys
}
