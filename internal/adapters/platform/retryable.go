package platform

import (
	"errors"
	"net/http"
	"strings"

	"botfleet/internal/core/circuitbreaker"
)

// DeployRetryable reports whether a failed deploy is worth another attempt
// after a short wait. The platform rejects launches against a device that is
// busy or mid-registration with a generic 400 or a 412; those clear on their
// own. A 400 naming an invalid argument or a disabled/deleted user never
// will, and an open circuit means stop trying this cycle entirely.
func DeployRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		body := strings.ToLower(httpErr.Body)
		if strings.Contains(body, "device is busy") || strings.Contains(body, "device not active") {
			return true
		}
		switch httpErr.Status {
		case http.StatusPreconditionFailed:
			return true
		case http.StatusBadRequest:
			return !strings.Contains(body, "invalid_argument") &&
				!strings.Contains(body, "user") &&
				!strings.Contains(body, "deleted") &&
				!strings.Contains(body, "disabled")
		}
		return false
	}

	// No HTTP response at all: timeout, refused connection, dropped socket.
	return true
}
