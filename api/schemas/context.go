package schemas

import "time"

// ContextState is the lifecycle state of one embedded browsing context.
// Transitions: uninitialized -> creating -> ready; ready <-> visible/hidden;
// any state -> destroyed (terminal).
type ContextState string

const (
	StateUninitialized ContextState = "uninitialized"
	StateCreating      ContextState = "creating"
	StateReady         ContextState = "ready"
	StateVisible       ContextState = "visible"
	StateHidden        ContextState = "hidden"
	StateDestroyed     ContextState = "destroyed"
)

// Live reports whether scripts may be evaluated against a context in this
// state.
func (s ContextState) Live() bool {
	return s == StateReady || s == StateVisible || s == StateHidden
}

// Bounds is the position and size of an embedded context inside the host
// window, in device-independent pixels.
type Bounds struct {
	X      int64 `json:"x" yaml:"x" mapstructure:"x"`
	Y      int64 `json:"y" yaml:"y" mapstructure:"y"`
	Width  int64 `json:"width" yaml:"width" mapstructure:"width"`
	Height int64 `json:"height" yaml:"height" mapstructure:"height"`
}

// ContextInfo is a read-only snapshot of one managed context. The lifecycle
// manager exclusively owns the live record; callers only ever see copies.
type ContextInfo struct {
	ID            string       `json:"id"`
	URL           string       `json:"url"`
	State         ContextState `json:"state"`
	Bounds        Bounds       `json:"bounds"`
	LastFocusedAt time.Time    `json:"lastFocusedAt,omitempty"`
}
