package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	s := FromViper(v)
	assert.Equal(t, DefaultServer, s.Server)
	assert.Equal(t, chatapi.DefaultTimeout, s.Timeout)
	assert.Equal(t, DefaultSidebarWidth, s.SidebarWidth)
	assert.NotEmpty(t, s.Greeting)
	assert.NotEmpty(t, s.NewSubject)
	assert.Empty(t, s.Token)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set(KeyServer, " https://chat.example.com ")
	v.Set(KeyTimeout, "5s")
	v.Set(KeySidebarWidth, -3)

	s := FromViper(v)
	assert.Equal(t, "https://chat.example.com", s.Server)
	assert.Equal(t, 5*time.Second, s.Timeout)
	assert.Equal(t, DefaultSidebarWidth, s.SidebarWidth)
}

func TestWithCredentials(t *testing.T) {
	s := Settings{Server: "http://a.example/"}

	assert.Equal(t, "tok", s.WithCredentials(&Credentials{Server: "http://a.example", Token: "tok"}).Token)
	assert.Empty(t, s.WithCredentials(&Credentials{Server: "http://b.example", Token: "tok"}).Token)
	assert.Empty(t, s.WithCredentials(nil).Token)

	s.Token = "explicit"
	assert.Equal(t, "explicit", s.WithCredentials(&Credentials{Server: "http://a.example", Token: "tok"}).Token)
}

func TestCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.yaml")

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Nil(t, creds)

	saved := Credentials{Server: "http://a.example", UserName: "alice", Token: "tok", SavedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, SaveCredentials(path, saved))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	creds, err = LoadCredentials(path)
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, saved, *creds)

	require.NoError(t, RemoveCredentials(path))
	require.NoError(t, RemoveCredentials(path))
}

func TestNewClient(t *testing.T) {
	c, err := Settings{Server: "http://localhost:9999", Token: "tok", Timeout: time.Second}.NewClient()
	require.NoError(t, err)
	assert.Equal(t, "tok", c.Token())

	_, err = Settings{Server: "localhost"}.NewClient()
	require.Error(t, err)
}
