package chatapi

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// APIError is a business failure reported by the backend through a non-200
// envelope code. Message is the backend's errorMsg, verbatim.
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: server rejected request (code %d): %s", e.Op, e.Code, e.Message)
}

// TransportError covers everything that prevented a well-formed envelope from
// arriving: connection failures, timeouts, unexpected HTTP statuses and
// undecodable bodies.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport failure (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr, true
	}
	return nil, false
}

func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr) && tErr != nil
}

// IsUnauthorized reports whether err means the token is missing or expired.
func IsUnauthorized(err error) bool {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Code == http.StatusUnauthorized
	}
	var tErr *TransportError
	if errors.As(err, &tErr) && tErr != nil {
		return tErr.StatusCode == http.StatusUnauthorized
	}
	return false
}

// UserMessage returns the text to show a user for err: the server's message
// for business failures, a connectivity hint for transport failures.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if IsUnauthorized(err) {
		return "not logged in or the login expired, please log in again"
	}
	if apiErr, ok := AsAPIError(err); ok {
		return "request failed: " + apiErr.Message
	}
	var tErr *TransportError
	if errors.As(err, &tErr) && tErr != nil {
		if tErr.StatusCode != 0 {
			return fmt.Sprintf("server unavailable (HTTP %d)", tErr.StatusCode)
		}
		if tErr.Err == nil {
			return "cannot reach server"
		}
		return "cannot reach server: " + errors.Cause(tErr.Err).Error()
	}
	return err.Error()
}
