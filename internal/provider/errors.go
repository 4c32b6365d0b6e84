package provider

import (
	"encoding/json"
	"fmt"
)

// AuthError reports a failed token acquisition for one tenant.  It
// carries the HTTP status and raw response body for operator diagnosis.
// A zero Status means the request never reached the token endpoint.
type AuthError struct {
	ClientID string
	Status   int
	Body     string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider auth failed for client %s: status %d: %s", e.ClientID, e.Status, e.Body)
	}
	return fmt.Sprintf("provider auth failed for client %s: %v", e.ClientID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx response from a provider data endpoint.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether the error is an HTTPError with a 404 or 400
// status.  The device-listing endpoint probe advances to its next
// candidate only on these.
func IsNotFound(err error) bool {
	he, ok := err.(*HTTPError)
	return ok && (he.Status == 404 || he.Status == 400)
}

// errorBody extracts a short human message from a provider error
// response, falling back to the raw body when it is not the usual
// {"message": ...} / {"error": ...} JSON shape.
func errorBody(raw []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	const max = 512
	if len(raw) > max {
		raw = raw[:max]
	}
	return string(raw)
}
