package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUnknownComponent  = "UNKNOWN_COMPONENT"
	ErrCodeInvalidPort       = "INVALID_PORT"
	ErrCodeUnknownNode       = "UNKNOWN_NODE"
	ErrCodeNetwork           = "NETWORK_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeBackendValidation = "BACKEND_VALIDATION_ERROR"
	ErrCodeRateLimit         = "RATE_LIMIT_ERROR"
	ErrCodeQuota             = "QUOTA_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeInterpolation     = "INTERPOLATION_ERROR"
)

// FlowError is the structured error type for all flowstack operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	switch {
	case e.Stage != "":
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Stage, e.Message)
	case e.NodeID != "":
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStage tags the error with the lifecycle stage it occurred in
// (e.g. "create", "update", "remote-validation").
func (e *FlowError) WithStage(stage string) *FlowError {
	e.Stage = stage
	return e
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// CodeOf extracts the flowstack error code from an error, or "" when the
// error is not a FlowError.
func CodeOf(err error) string {
	if fe, ok := err.(*FlowError); ok {
		return fe.Code
	}
	return ""
}
