package admin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatweb/pkg/chatapi"
)

var (
	ErrWeakPassword     = errors.New("password must be at least 8 characters and contain upper case, lower case and a digit")
	ErrPasswordMismatch = errors.New("new password and confirmation do not match")
	ErrBlankField       = errors.New("value cannot be empty")
)

var (
	upperRe = regexp.MustCompile(`[A-Z]`)
	lowerRe = regexp.MustCompile(`[a-z]`)
	digitRe = regexp.MustCompile(`\d`)
)

// IsComplexPassword reports whether password satisfies the backend's
// complexity rule.
func IsComplexPassword(password string) bool {
	return len(password) >= 8 &&
		upperRe.MatchString(password) &&
		lowerRe.MatchString(password) &&
		digitRe.MatchString(password)
}

// CheckNewPassword validates a new password together with its confirmation.
func CheckNewPassword(password, confirm string) error {
	if password == "" || confirm == "" {
		return errors.Wrap(ErrBlankField, "password")
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	if !IsComplexPassword(password) {
		return ErrWeakPassword
	}
	return nil
}

// FieldError names a configuration field that is out of range.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError collects every invalid field of a ServerConfig.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "invalid server config: " + strings.Join(parts, "; ")
}

// ValidateServerConfig checks the numeric ranges the completion backend
// accepts. It returns a *ValidationError listing every offending field.
func ValidateServerConfig(cfg chatapi.ServerConfig) error {
	var fields []FieldError
	between := func(name string, v, lo, hi float32) {
		if v < lo || v > hi {
			fields = append(fields, FieldError{Field: name, Reason: fmt.Sprintf("%g is outside [%g, %g]", v, lo, hi)})
		}
	}

	between("temperature", cfg.Temperature, 0, 2)
	between("top_p", cfg.TopP, 0, 1)
	between("presence_penalty", cfg.PresencePenalty, -2, 2)
	between("frequency_penalty", cfg.FrequencyPenalty, -2, 2)
	if cfg.MaxTokens < 0 {
		fields = append(fields, FieldError{Field: "max_tokens", Reason: "must not be negative"})
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		fields = append(fields, FieldError{Field: "port", Reason: fmt.Sprintf("%d is not a valid port", cfg.Port)})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
