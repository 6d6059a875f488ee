package schemas

import "fmt"

// ErrorKind classifies every failure the engine can report. The kinds are
// part of the wire contract with compiled bundles: page-side code throws
// objects carrying these exact strings.
type ErrorKind string

const (
	// ErrSelectorNotFound: the element stayed absent past its selector timeout.
	ErrSelectorNotFound ErrorKind = "SelectorNotFound"
	// ErrIframeNotFound / ErrShadowHostNotFound: an intermediate hop of a
	// nested selector path was missing or inaccessible.
	ErrIframeNotFound     ErrorKind = "IframeNotFound"
	ErrShadowHostNotFound ErrorKind = "ShadowHostNotFound"
	// ErrScriptExecutionError: an exception during fragment execution,
	// captured and stringified inside the bundle.
	ErrScriptExecutionError ErrorKind = "ScriptExecutionError"
	// ErrResultTimeout: no correlated result event arrived in time. Also the
	// page-side kind for an extract loop that ran out of budget.
	ErrResultTimeout ErrorKind = "ResultTimeout"
	// ErrContextNotReady: an operation was attempted against a context that
	// is not live (uninitialized, still creating, or destroyed).
	ErrContextNotReady ErrorKind = "ContextNotReady"
	// ErrInvalidResultFormat: the reported payload was not the expected shape.
	ErrInvalidResultFormat ErrorKind = "InvalidResultFormat"
	// ErrNotLoggedIn: a step detected an authentication wall. Callers should
	// prompt for login instead of retrying blindly.
	ErrNotLoggedIn ErrorKind = "NotLoggedIn"
)

// ExecutionError is the structured error carried inside ExecutionResult and
// returned from precondition violations. It implements error so call sites
// can use errors.As to recover the kind.
type ExecutionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message,omitempty"`
}

func (e *ExecutionError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an ExecutionError with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
