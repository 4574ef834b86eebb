package remote

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
)

// Error is a non-success response from the backend.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// Unauthorized reports whether the backend rejected the credential.
func (e *Error) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

func newError(status int, body []byte) *Error {
	var p errorPayload
	if err := sonic.Unmarshal(body, &p); err == nil {
		msg := p.Message
		if msg == "" {
			msg = p.Error
		}
		if msg != "" {
			if p.Details != "" {
				msg += ": " + p.Details
			}
			return &Error{StatusCode: status, Message: msg}
		}
	}
	return &Error{StatusCode: status, Message: fmt.Sprintf("request failed with status %d", status)}
}
