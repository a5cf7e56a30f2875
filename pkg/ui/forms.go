package ui

import (
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatweb/pkg/admin"
	"github.com/go-go-golems/chatweb/pkg/chatapi"
)

var configTitles = map[string]string{
	"api_key":           "API key",
	"api_url":           "API URL (empty for the default endpoint)",
	"port":              "Listen port",
	"listen":            "Listen address",
	"bot_desc":          "Assistant persona",
	"proxy":             "Proxy URL",
	"max_tokens":        "Max tokens",
	"model":             "Model",
	"temperature":       "Temperature (0-2)",
	"top_p":             "Top P (0-1)",
	"presence_penalty":  "Presence penalty (-2 to 2)",
	"frequency_penalty": "Frequency penalty (-2 to 2)",
}

// ConfigForm edits a ServerConfig field by field. Apply writes the edited
// values back once the form completed.
type ConfigForm struct {
	Form   *huh.Form
	values []*admin.Field
	base   chatapi.ServerConfig
}

func NewConfigForm(cfg chatapi.ServerConfig) *ConfigForm {
	cf := &ConfigForm{base: cfg}
	var fields []huh.Field
	for _, f := range admin.ConfigFields(cfg) {
		v := &admin.Field{Key: f.Key, Value: f.Value}
		cf.values = append(cf.values, v)

		title := configTitles[f.Key]
		if title == "" {
			title = f.Key
		}
		key := f.Key
		input := huh.NewInput().
			Title(title).
			Value(&v.Value).
			Validate(func(s string) error {
				candidate := cfg
				return admin.SetField(&candidate, key, strings.TrimSpace(s))
			})
		if key == "api_key" {
			input = input.EchoMode(huh.EchoModePassword)
		}
		fields = append(fields, input)
	}
	// two groups keep the form within a normal terminal height
	half := len(fields) / 2
	cf.Form = huh.NewForm(
		huh.NewGroup(fields[:half]...).Title("Server configuration"),
		huh.NewGroup(fields[half:]...).Title("Model parameters"),
	).WithTheme(huh.ThemeCharm())
	return cf
}

// Apply returns the configuration holding the form's current values.
func (cf *ConfigForm) Apply() (chatapi.ServerConfig, error) {
	cfg := cf.base
	for _, v := range cf.values {
		if err := admin.SetField(&cfg, v.Key, strings.TrimSpace(v.Value)); err != nil {
			return cf.base, err
		}
	}
	return cfg, nil
}

// RunConfigForm shows the form on the terminal and returns the edited config.
func RunConfigForm(cfg chatapi.ServerConfig) (chatapi.ServerConfig, error) {
	cf := NewConfigForm(cfg)
	if err := cf.Form.Run(); err != nil {
		return cfg, errors.Wrap(err, "config form")
	}
	return cf.Apply()
}

// Credentials collects a username and password.
type Credentials struct {
	Username string
	Password string
}

func RunLoginForm(username string) (Credentials, error) {
	c := Credentials{Username: username}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Username").Value(&c.Username).Validate(notBlank("username")),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&c.Password).Validate(notBlank("password")),
	)).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		return c, errors.Wrap(err, "login form")
	}
	c.Username = strings.TrimSpace(c.Username)
	return c, nil
}

// PasswordInput holds the fields of the password dialogs. Username is empty
// when users change their own password.
type PasswordInput struct {
	Username string
	Current  string
	New      string
	Confirm  string
}

// RunPasswordForm asks for the current password, or for the target user when
// reset is set, followed by the new password twice.
func RunPasswordForm(reset bool) (PasswordInput, error) {
	var in PasswordInput
	var first huh.Field
	title := "Change password"
	if reset {
		title = "Reset another user's password"
		first = huh.NewInput().Title("User").Value(&in.Username).Validate(notBlank("user"))
	} else {
		first = huh.NewInput().Title("Current password").EchoMode(huh.EchoModePassword).Value(&in.Current).Validate(notBlank("current password"))
	}
	form := huh.NewForm(huh.NewGroup(
		first,
		huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).Value(&in.New).Validate(complexPassword),
		huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&in.Confirm).Validate(notBlank("confirmation")),
	).Title(title)).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		return in, errors.Wrap(err, "password form")
	}
	return in, nil
}

// NewUserInput holds the fields of the create user dialog.
type NewUserInput struct {
	Username string
	Password string
	Confirm  string
}

func RunCreateUserForm() (NewUserInput, error) {
	var in NewUserInput
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Username").Value(&in.Username).Validate(notBlank("username")),
		huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&in.Password).Validate(complexPassword),
		huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&in.Confirm).Validate(notBlank("confirmation")),
	).Title("New user")).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		return in, errors.Wrap(err, "create user form")
	}
	return in, nil
}

func notBlank(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.Errorf("%s cannot be empty", what)
		}
		return nil
	}
}

func complexPassword(s string) error {
	if !admin.IsComplexPassword(s) {
		return admin.ErrWeakPassword
	}
	return nil
}
