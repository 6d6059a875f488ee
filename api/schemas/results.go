package schemas

// OutputFormat selects which extraction payload fields an Extract action
// reports.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputHTML OutputFormat = "html"
	OutputBoth OutputFormat = "both"
)

// ExtractPayload carries what an Extract action pulled out of the page.
type ExtractPayload struct {
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

// ExecutionResult is the single JSON-serializable object a compiled bundle
// reports back across the context boundary. Exactly one is delivered per
// dispatched bundle: a success, a structured failure, or a host-side timeout
// synthesized by the bridge.
type ExecutionResult struct {
	Success bool `json:"success"`
	// Error is set iff Success is false.
	Error *ExecutionError `json:"error,omitempty"`
	// DurationMs is measured inside the bundle, page-side.
	DurationMs int64 `json:"durationMs,omitempty"`
	// ActionsExecuted counts fully completed actions; always <= the number
	// of actions in the sequence and equal iff no fragment failed.
	ActionsExecuted int `json:"actionsExecuted,omitempty"`
	// Payload is present when the final action was an Extract and succeeded.
	Payload *ExtractPayload `json:"payload,omitempty"`
}

// FailedResult builds the uniform failure shape used by bridge-synthesized
// outcomes (timeouts, malformed payloads).
func FailedResult(kind ErrorKind, message string) *ExecutionResult {
	return &ExecutionResult{Success: false, Error: &ExecutionError{Kind: kind, Message: message}}
}
