package admin

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
	"github.com/go-go-golems/chatweb/pkg/chatapi/chatapitest"
)

func TestIsComplexPassword(t *testing.T) {
	cases := map[string]bool{
		"":           false,
		"Sh0rt":      false,
		"alllower1":  false,
		"ALLUPPER1":  false,
		"NoDigitsHr": false,
		"Passw0rd!":  true,
		"Abcdefg1":   true,
	}
	for pw, want := range cases {
		assert.Equal(t, want, IsComplexPassword(pw), pw)
	}
}

func TestCheckNewPassword(t *testing.T) {
	assert.ErrorIs(t, CheckNewPassword("", ""), ErrBlankField)
	assert.ErrorIs(t, CheckNewPassword("Passw0rd!", "Passw0rd?"), ErrPasswordMismatch)
	assert.ErrorIs(t, CheckNewPassword("weak", "weak"), ErrWeakPassword)
	assert.NoError(t, CheckNewPassword("Passw0rd!", "Passw0rd!"))
}

func TestValidateServerConfig(t *testing.T) {
	require.NoError(t, ValidateServerConfig(chatapi.ServerConfig{Temperature: 0.9, TopP: 1, Port: 8080, MaxTokens: 1024}))

	err := ValidateServerConfig(chatapi.ServerConfig{
		Temperature:      2.5,
		TopP:             -0.1,
		PresencePenalty:  3,
		FrequencyPenalty: -2,
		MaxTokens:        -1,
		Port:             70000,
	})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	var fields []string
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"temperature", "top_p", "presence_penalty", "max_tokens", "port"}, fields)
	assert.Contains(t, err.Error(), "temperature")
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := chatapi.ServerConfig{ApiKey: "sk-1", Model: "gpt-4", Port: 8080, Temperature: 0.5, BotDesc: "helpful: always"}
	var buf bytes.Buffer
	require.NoError(t, WriteConfigYAML(&buf, cfg))
	assert.Contains(t, buf.String(), "api_key: sk-1")

	got, err := ReadConfigYAML(&buf)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = ReadConfigYAML(strings.NewReader("unknown_key: 1\n"))
	require.Error(t, err)
}

func TestSetField(t *testing.T) {
	cfg := chatapi.ServerConfig{Model: "gpt-3.5-turbo", Port: 8080}

	require.NoError(t, SetField(&cfg, "temperature", "1.2"))
	assert.InDelta(t, 1.2, cfg.Temperature, 1e-6)
	require.NoError(t, SetField(&cfg, "model", "gpt-4"))
	assert.Equal(t, "gpt-4", cfg.Model)
	require.NoError(t, SetField(&cfg, "proxy", "http://user:pw@host:3128"))
	assert.Equal(t, "http://user:pw@host:3128", cfg.Proxy)

	require.Error(t, SetField(&cfg, "port", "abc"))
	assert.Equal(t, 8080, cfg.Port)
	require.Error(t, SetField(&cfg, "nope", "1"))
}

func TestConfigFieldsRoundTripThroughSetField(t *testing.T) {
	cfg := chatapi.ServerConfig{ApiKey: "sk-1", Port: 8080, Temperature: 0.7, BotDesc: "a: b"}
	var rebuilt chatapi.ServerConfig
	for _, f := range ConfigFields(cfg) {
		require.NoError(t, SetField(&rebuilt, f.Key, f.Value), f.Key)
	}
	assert.Equal(t, cfg, rebuilt)
}

func TestConfigKeys(t *testing.T) {
	keys := ConfigKeys()
	require.Len(t, keys, 12)
	assert.Equal(t, "api_key", keys[0])
	assert.Equal(t, "frequency_penalty", keys[11])
}

func newAdminService(t *testing.T, token string) (*Service, *chatapitest.Server) {
	t.Helper()
	srv := chatapitest.NewServer()
	t.Cleanup(srv.Close)
	c, err := chatapi.NewClient(srv.URL, chatapi.WithToken(token))
	require.NoError(t, err)
	return NewService(c), srv
}

func TestServiceUpdateConfig(t *testing.T) {
	svc, srv := newAdminService(t, "admin-token")
	ctx := context.Background()

	cfg, err := svc.Config(ctx)
	require.NoError(t, err)

	bad := *cfg
	bad.Temperature = 9
	require.Error(t, svc.UpdateConfig(ctx, bad))
	assert.Equal(t, 0, srv.Calls(chatapi.PathSetConfig))

	cfg.Model = "gpt-4"
	require.NoError(t, svc.UpdateConfig(ctx, *cfg))
	assert.Equal(t, "gpt-4", srv.Config().Model)
}

func TestServiceUsers(t *testing.T) {
	svc, srv := newAdminService(t, "admin-token")
	ctx := context.Background()

	require.ErrorIs(t, svc.CreateUser(ctx, " ", "Passw0rd!", "Passw0rd!"), ErrBlankField)
	require.ErrorIs(t, svc.CreateUser(ctx, "bob", "weakpass", "weakpass"), ErrWeakPassword)
	assert.Equal(t, 0, srv.Calls(chatapi.PathCreateUser))

	require.NoError(t, svc.CreateUser(ctx, "bob", "Secr3tPass", "Secr3tPass"))
	require.NoError(t, svc.ResetPassword(ctx, "bob", "N3wSecret", "N3wSecret"))
	bob, ok := srv.User("bob")
	require.True(t, ok)
	assert.Equal(t, "N3wSecret", bob.Password)

	err := svc.CreateUser(ctx, "bob", "Secr3tPass", "Secr3tPass")
	_, isAPI := chatapi.AsAPIError(err)
	assert.True(t, isAPI)
}

func TestServiceChangePassword(t *testing.T) {
	svc, srv := newAdminService(t, "alice-token")
	ctx := context.Background()

	require.ErrorIs(t, svc.ChangePassword(ctx, "", "N3wSecret", "N3wSecret"), ErrBlankField)
	require.ErrorIs(t, svc.ChangePassword(ctx, "Passw0rd!", "N3wSecret", "other"), ErrPasswordMismatch)
	require.NoError(t, svc.ChangePassword(ctx, "Passw0rd!", "N3wSecret", "N3wSecret"))
	alice, _ := srv.User("alice")
	assert.Equal(t, "N3wSecret", alice.Password)

	require.Error(t, svc.ResetPassword(ctx, "admin", "N3wSecret", "N3wSecret"))
}
