// Package errors provides the closed error taxonomy every outward-facing
// USP failure is classified into. Every package in this module returns
// errors built on USPError rather than ad hoc strings so callers get a
// stable Code() to branch on, an operator-facing Suggestion(), and a
// Context() map for structured audit logging, instead of having to
// string-match error messages.
package errors

// USPError wraps an error with a taxonomy code and actionable guidance.
type USPError interface {
	error
	Unwrap() error              // Original error
	Code() string               // Taxonomy code (e.g., "VaultSealed")
	Suggestion() string         // Actionable fix suggestion
	Context() map[string]string // Additional context (key, table, provider, etc.)
}

// Codes is the closed taxonomy of spec §7. Every USPError built by this
// package carries exactly one of these; no package should invent a new
// code outside this set.
const (
	CodeVaultSealed         = "VaultSealed"
	CodeNotInitialized      = "NotInitialized"
	CodeAlreadyInitialized  = "AlreadyInitialized"
	CodeInvalidShares       = "InvalidShares"
	CodeNotFound            = "NotFound"
	CodeAlreadyExists       = "AlreadyExists"
	CodeCasMismatch         = "CasMismatch"
	CodeInvalidState        = "InvalidState"
	CodeUnauthorized        = "Unauthorized"
	CodeForbidden           = "Forbidden"
	CodeMfaRequired         = "MfaRequired"
	CodeStepUpRequired      = "StepUpRequired"
	CodeLockedOut           = "LockedOut"
	CodeRateLimited         = "RateLimited"
	CodeValidationError     = "ValidationError"
	CodeIntegrityError      = "IntegrityError"
	CodeExternalError       = "ExternalError"
	CodeNotSupported        = "NotSupported"
	CodeInternal            = "Internal"
)

// uspError implements the USPError interface.
type uspError struct {
	code       string
	message    string
	suggestion string
	context    map[string]string
	cause      error
	transient  bool
}

// Error implements the error interface.
func (e *uspError) Error() string {
	return e.message
}

// Unwrap returns the underlying cause error.
func (e *uspError) Unwrap() error {
	return e.cause
}

// Code returns the taxonomy code.
func (e *uspError) Code() string {
	return e.code
}

// Suggestion returns the actionable fix suggestion.
func (e *uspError) Suggestion() string {
	return e.suggestion
}

// Context returns additional context about the error.
func (e *uspError) Context() map[string]string {
	return e.context
}

// New creates a USPError with the given taxonomy code and message. The
// suggestion is looked up from Suggestions automatically; use NewWithSuggestion
// to override it.
func New(code, message string, cause error) USPError {
	return &uspError{
		code:       code,
		message:    message,
		suggestion: Suggestions[code],
		context:    make(map[string]string),
		cause:      cause,
	}
}

// NewWithSuggestion creates a USPError with an explicit suggestion,
// overriding the taxonomy default (used where the default is too
// generic, e.g. a policy denial naming the specific missing grant).
func NewWithSuggestion(code, message, suggestion string, cause error) USPError {
	return &uspError{
		code:       code,
		message:    message,
		suggestion: suggestion,
		context:    make(map[string]string),
		cause:      cause,
	}
}

// newTransient is like New but marks the error as a transient
// ExternalError, eligible for retry with backoff per spec §7's
// propagation policy.
func newTransient(code, message string, cause error) USPError {
	e := New(code, message, cause).(*uspError)
	e.transient = true
	return e
}

// WithContext adds context to an error and returns a new USPError.
// The original error is not modified.
func WithContext(err USPError, key, value string) USPError {
	existingCtx := err.Context()
	newCtx := make(map[string]string, len(existingCtx)+1)
	for k, v := range existingCtx {
		newCtx[k] = v
	}
	newCtx[key] = value

	transient := false
	if ue, ok := err.(*uspError); ok {
		transient = ue.transient
	}
	return &uspError{
		code:       err.Code(),
		message:    err.Error(),
		suggestion: err.Suggestion(),
		context:    newCtx,
		cause:      err.Unwrap(),
		transient:  transient,
	}
}

// IsUSPError checks if err is a USPError and returns it.
// If err is nil or not a USPError, returns (nil, false).
func IsUSPError(err error) (USPError, bool) {
	if err == nil {
		return nil, false
	}
	if ue, ok := err.(USPError); ok {
		return ue, true
	}
	return nil, false
}

// GetCode extracts the taxonomy code from an error.
// Returns empty string if err is not a USPError.
func GetCode(err error) string {
	if ue, ok := IsUSPError(err); ok {
		return ue.Code()
	}
	return ""
}

// IsTransient reports whether err is an ExternalError classified as
// transient (network, throttle, deadlock) and therefore eligible for
// retry with exponential backoff per spec §7's propagation policy.
func IsTransient(err error) bool {
	ue, ok := err.(*uspError)
	return ok && ue.transient
}
