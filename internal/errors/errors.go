package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// TransportFailed indicates the call never produced a response (network, DNS, TLS)
	TransportFailed ErrorCode = "TRANSPORT_FAILED"
	// Cancelled indicates the call was aborted through its handle or context
	Cancelled ErrorCode = "CANCELLED"
	// StatusFailed indicates the backend answered with a non-success status
	StatusFailed ErrorCode = "STATUS_FAILED"
	// DecodeFailed indicates a successful response whose body could not be decoded
	DecodeFailed ErrorCode = "DECODE_FAILED"
	// StreamFailed indicates a read error on an open event stream
	StreamFailed ErrorCode = "STREAM_FAILED"
	// QueryEmpty indicates a search was resolved without query text
	QueryEmpty ErrorCode = "QUERY_EMPTY"
	// OpticUnavailable indicates an optic URL could not be dereferenced
	OpticUnavailable ErrorCode = "OPTIC_UNAVAILABLE"
	// CacheFailed indicates the local response cache could not be used
	CacheFailed ErrorCode = "CACHE_FAILED"
	// ConfigInvalid indicates invalid client configuration
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// ClientError represents a client error with code, message, and suggestions
type ClientError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new ClientError with the default fixes for its code.
func New(code ErrorCode, message string, cause error) *ClientError {
	return &ClientError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *ClientError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ClientError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *ClientError) WithDetails(details interface{}) *ClientError {
	e.Details = details
	return e
}

// StatusError is returned when the backend answers with a non-2xx status.
// Body holds the raw response text, undecoded.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound returns true if the error is a 404 not found error.
func (e *StatusError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsRateLimited returns true if the error is a 429 rate limit error.
func (e *StatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true for any 5xx status.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500
}

// DecodeError is returned when a successful response body cannot be decoded
// into the expected shape.
type DecodeError struct {
	Target string
	Body   []byte
	cause  error
}

// NewDecodeError wraps a decoding failure for the named target type.
func NewDecodeError(target string, body []byte, cause error) *DecodeError {
	return &DecodeError{Target: target, Body: body, cause: cause}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Target, e.cause)
}

func (e *DecodeError) Unwrap() error {
	return e.cause
}

// CodeOf classifies any error returned by the client packages.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ce *ClientError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	var se *StatusError
	if stderrors.As(err, &se) {
		return StatusFailed
	}
	var de *DecodeError
	if stderrors.As(err, &de) {
		return DecodeFailed
	}
	return InternalError
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	TransportFailed: {
		{
			Type:        RunCommand,
			Command:     "stract config show",
			Safe:        true,
			Description: "Check the configured backend URL",
		},
	},
	OpticUnavailable: {
		{
			Type:        OpenDocs,
			URL:         "https://docs.stract.com/optics",
			Description: "Check that the optic URL is reachable and returns plain text",
		},
	},
	CacheFailed: {
		{
			Type:        RunCommand,
			Command:     "stract search --no-cache <query>",
			Safe:        true,
			Description: "Retry without the local response cache",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "stract config init --force",
			Safe:        false,
			Description: "Rewrite the config file with defaults",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
