package msgraph

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrMissingCredentials = errors.New("mail provider credentials are not configured")
	ErrMessageNotFound    = errors.New("message not found")
)

// AuthError is returned when the token endpoint rejects the client
// credentials. The cache never stores a token after one of these.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// RemoteAPIError wraps a non-2xx response from the mail API.
type RemoteAPIError struct {
	StatusCode int
	Body       string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("mail api returned %d: %s", e.StatusCode, e.Body)
}
