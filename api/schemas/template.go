package schemas

import (
	"fmt"
	"regexp"
)

// Template is a named, ordered list of automation actions bound to a
// URL-matching pattern for one platform. Templates are immutable once
// registered; replacement is register-overwrite, never in-place mutation.
type Template struct {
	PlatformID  string   `json:"platformId" yaml:"platformId"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	// URLPattern is a regular expression source. Matching is case-sensitive
	// and unanchored; anchoring is the author's responsibility.
	URLPattern string   `json:"urlPattern" yaml:"urlPattern"`
	Actions    []Action `json:"actions" yaml:"actions"`
}

// Validate rejects templates the engine cannot register: missing identity,
// an uncompilable urlPattern, an empty action list or any invalid action.
func (t Template) Validate() error {
	if t.PlatformID == "" {
		return fmt.Errorf("template is missing platformId")
	}
	if t.Name == "" {
		return fmt.Errorf("template %s is missing a name", t.PlatformID)
	}
	if _, err := regexp.Compile(t.URLPattern); err != nil {
		return fmt.Errorf("template %s/%s has an invalid urlPattern: %w", t.PlatformID, t.Name, err)
	}
	if len(t.Actions) == 0 {
		return fmt.Errorf("template %s/%s has no actions", t.PlatformID, t.Name)
	}
	for i, a := range t.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("template %s/%s action %d: %w", t.PlatformID, t.Name, i, err)
		}
	}
	return nil
}
