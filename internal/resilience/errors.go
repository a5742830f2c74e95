package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// TransientError marks an error as safe to retry (429, 5xx, network blips).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// StatusError reports a non-success HTTP response from an external service.
type StatusError struct {
	Service    string
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d", e.Service, e.URL, e.StatusCode)
}

// CheckStatus returns nil for 2xx codes. Other codes yield a StatusError,
// wrapped as transient when IsTransientHTTPStatus says so.
func CheckStatus(service, url string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &StatusError{Service: service, StatusCode: code, URL: url}
	if IsTransientHTTPStatus(code) {
		return NewTransientError(err, code)
	}
	return err
}

// transientPatterns catch transport errors that arrive only as strings.
var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"tls handshake timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err (or anything it wraps) is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
