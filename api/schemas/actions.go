package schemas

import "fmt"

// ActionKind tags the variant of an Action. Compilation dispatches
// exhaustively over the kind; an unknown kind is rejected at validation
// time, never silently skipped.
type ActionKind string

const (
	ActionFill    ActionKind = "fill"
	ActionClick   ActionKind = "click"
	ActionWait    ActionKind = "wait"
	ActionCustom  ActionKind = "custom"
	ActionExtract ActionKind = "extract"
)

// Defaults applied when the optional action fields are absent.
const (
	// DefaultActionTimeoutMs bounds selector resolution and visibility waits.
	DefaultActionTimeoutMs = 5000
	// DefaultExtractTimeoutMs bounds the extract polling loop. Chat responses
	// stream slowly, so this is deliberately generous.
	DefaultExtractTimeoutMs = 120000
	// DefaultPollIntervalMs is the pause between extract attempts.
	DefaultPollIntervalMs = 500
)

// SelectorConfig is a path to one element, possibly nested through an iframe
// boundary and/or a shadow-tree boundary. Resolution traverses iframe first,
// then shadow host, then runs the final query.
type SelectorConfig struct {
	Selector           string `json:"selector" yaml:"selector"`
	IframeSelector     string `json:"iframeSelector,omitempty" yaml:"iframeSelector,omitempty"`
	ShadowHostSelector string `json:"shadowHostSelector,omitempty" yaml:"shadowHostSelector,omitempty"`
	// TimeoutMs bounds resolution of this selector; 0 means DefaultActionTimeoutMs.
	TimeoutMs int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// Action is a tagged union: Kind selects the variant and only that variant's
// fields are meaningful. A flat struct keeps the JSON wire shape simple
// (`{"kind":"fill","selector":{...},"content":"hi"}`) at the cost of a few
// dormant fields per record.
type Action struct {
	Kind ActionKind `json:"kind" yaml:"kind"`

	// Fill and Click.
	Selector SelectorConfig `json:"selector,omitempty" yaml:"selector,omitempty"`
	// DelayMs is an unconditional pause before the action body runs.
	DelayMs int `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`
	// TimeoutMs bounds the action body; 0 means DefaultActionTimeoutMs.
	TimeoutMs int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`

	// Fill only.
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	// TriggerEvents synthesizes input-then-change after setting the value so
	// reactive frameworks observe it. Nil means true.
	TriggerEvents *bool `json:"triggerEvents,omitempty" yaml:"triggerEvents,omitempty"`

	// Click only. Nil means true: wait for a non-zero bounding box before
	// clicking.
	WaitForVisible *bool `json:"waitForVisible,omitempty" yaml:"waitForVisible,omitempty"`

	// Wait only.
	DurationMs int `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`

	// Custom only. Embedded verbatim into the bundle; must follow the same
	// throw-on-failure contract as generated fragments.
	Code string `json:"code,omitempty" yaml:"code,omitempty"`

	// Extract only.
	ExtractCode    string       `json:"extractCode,omitempty" yaml:"extractCode,omitempty"`
	PollIntervalMs int          `json:"pollIntervalMs,omitempty" yaml:"pollIntervalMs,omitempty"`
	OutputFormat   OutputFormat `json:"outputFormat,omitempty" yaml:"outputFormat,omitempty"`
	// Placeholders are rendered-but-not-ready strings ("...", "Thinking")
	// the extract loop keeps polling through.
	Placeholders []string `json:"placeholders,omitempty" yaml:"placeholders,omitempty"`
}

// Validate checks the variant invariant: the kind is known and the fields it
// requires are present.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionFill:
		if a.Selector.Selector == "" {
			return fmt.Errorf("fill action requires selector.selector")
		}
	case ActionClick:
		if a.Selector.Selector == "" {
			return fmt.Errorf("click action requires selector.selector")
		}
	case ActionWait:
		if a.DurationMs < 0 {
			return fmt.Errorf("wait action durationMs must be >= 0, got %d", a.DurationMs)
		}
	case ActionCustom:
		if a.Code == "" {
			return fmt.Errorf("custom action requires code")
		}
	case ActionExtract:
		if a.ExtractCode == "" {
			return fmt.Errorf("extract action requires extractCode")
		}
		if of := a.OutputFormat; of != "" && of != OutputText && of != OutputHTML && of != OutputBoth {
			return fmt.Errorf("unknown outputFormat %q", of)
		}
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// EffectiveTimeoutMs returns TimeoutMs with the per-kind default applied.
func (a Action) EffectiveTimeoutMs() int {
	if a.TimeoutMs > 0 {
		return a.TimeoutMs
	}
	if a.Kind == ActionExtract {
		return DefaultExtractTimeoutMs
	}
	return DefaultActionTimeoutMs
}

// EffectivePollIntervalMs returns PollIntervalMs with its default applied.
func (a Action) EffectivePollIntervalMs() int {
	if a.PollIntervalMs > 0 {
		return a.PollIntervalMs
	}
	return DefaultPollIntervalMs
}

// TriggersEvents resolves the TriggerEvents pointer (default true).
func (a Action) TriggersEvents() bool {
	return a.TriggerEvents == nil || *a.TriggerEvents
}

// WaitsForVisible resolves the WaitForVisible pointer (default true).
func (a Action) WaitsForVisible() bool {
	return a.WaitForVisible == nil || *a.WaitForVisible
}

// EffectiveOutputFormat returns OutputFormat with its default applied.
func (a Action) EffectiveOutputFormat() OutputFormat {
	if a.OutputFormat == "" {
		return OutputText
	}
	return a.OutputFormat
}

// EffectiveTimeoutMs returns the selector resolution budget, falling back to
// the action timeout and then the shared default.
func (s SelectorConfig) EffectiveTimeoutMs(actionTimeoutMs int) int {
	if s.TimeoutMs > 0 {
		return s.TimeoutMs
	}
	if actionTimeoutMs > 0 {
		return actionTimeoutMs
	}
	return DefaultActionTimeoutMs
}
