package apperr

import "fmt"

// Error codes for the failure taxonomy. Provider-level codes are converted
// to source_error events by the fan-out coordinator and never escape a
// search. Probe failures are excluded from scoring. Proxy errors surface
// the upstream status to the HTTP caller.
const (
	CodeProviderTimeout    = "PROVIDER_TIMEOUT"
	CodeProviderHTTP       = "PROVIDER_HTTP_ERROR"
	CodeProviderParse      = "PROVIDER_PARSE_ERROR"
	CodeProbeFailure       = "PROBE_FAILURE"
	CodeUpstreamProxy      = "UPSTREAM_PROXY_ERROR"
	CodeStreamWrite        = "STREAM_WRITE_ERROR"
)

// Error is a coded error carrying the upstream URL it relates to and an
// optional HTTP status from the remote end.
type Error struct {
	Code    string
	URL     string
	Status  int // upstream HTTP status when meaningful, 0 otherwise
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code, url, message string, cause error) *Error {
	return &Error{Code: code, URL: url, Message: message, Cause: cause}
}

// ProviderTimeout marks a provider call that exceeded its deadline.
func ProviderTimeout(url string, cause error) *Error {
	return &Error{Code: CodeProviderTimeout, URL: url, Message: "provider timed out", Cause: cause}
}

// ProviderHTTP marks a non-2xx provider response.
func ProviderHTTP(url string, status int) *Error {
	return &Error{Code: CodeProviderHTTP, URL: url, Status: status,
		Message: fmt.Sprintf("provider returned HTTP %d", status)}
}

// ProviderParse marks a provider payload that could not be decoded.
func ProviderParse(url string, cause error) *Error {
	return &Error{Code: CodeProviderParse, URL: url, Message: "provider response malformed", Cause: cause}
}

// ProbeFailure marks a failed candidate probe.
func ProbeFailure(url string, cause error) *Error {
	return &Error{Code: CodeProbeFailure, URL: url, Message: "probe failed", Cause: cause}
}

// UpstreamProxy marks an error status returned by a proxied origin.
func UpstreamProxy(url string, status int) *Error {
	return &Error{Code: CodeUpstreamProxy, URL: url, Status: status,
		Message: fmt.Sprintf("upstream returned HTTP %d", status)}
}

// StreamWrite marks an attempted event write after consumer disconnect.
// It is swallowed by the event stream and logged at most for diagnostics.
func StreamWrite(cause error) *Error {
	return &Error{Code: CodeStreamWrite, Message: "write after stream close", Cause: cause}
}

// CodeOf extracts the taxonomy code from an error, or "" for foreign errors.
func CodeOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
