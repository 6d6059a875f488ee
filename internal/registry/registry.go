// Package registry stores automation templates and resolves the template to
// run against a given target URL. It exclusively owns all Template records;
// callers only ever see copies.
package registry

import (
	"fmt"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/chatdock/chatdock/api/schemas"
)

// JSValidator checks embedded JavaScript (custom/extract code) at registration
// time. The script package provides the production implementation.
type JSValidator func(src string) error

// Registry is a constructible service, not a package-level singleton, so tests
// and multiple engines in one process stay isolated.
type Registry struct {
	mu         sync.RWMutex
	entries    []*entry
	byKey      map[string]*entry
	validateJS JSValidator
	logger     *zap.Logger
}

type entry struct {
	tmpl    schemas.Template
	pattern *regexp.Regexp
}

// New builds an empty registry. validateJS may be nil to skip syntax checking
// of embedded code.
func New(logger *zap.Logger, validateJS JSValidator) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byKey:      make(map[string]*entry),
		validateJS: validateJS,
		logger:     logger.Named("registry"),
	}
}

func key(platformID, name string) string {
	return platformID + "\x00" + name
}

// Register validates and stores a template. A template with the same
// (platformId, name) replaces the previous one but keeps its original
// position in registration order. The stored record is a private copy.
func (r *Registry) Register(tmpl schemas.Template) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	if r.validateJS != nil {
		for i, a := range tmpl.Actions {
			var code string
			switch a.Kind {
			case schemas.ActionCustom:
				code = a.Code
			case schemas.ActionExtract:
				code = a.ExtractCode
			default:
				continue
			}
			if err := r.validateJS(code); err != nil {
				return fmt.Errorf("template %s/%s action %d: %w", tmpl.PlatformID, tmpl.Name, i, err)
			}
		}
	}

	pattern, err := regexp.Compile(tmpl.URLPattern)
	if err != nil {
		// Template.Validate already compiled it once; this is unreachable
		// unless the schema changes, but the error path stays explicit.
		return fmt.Errorf("invalid urlPattern for %s/%s: %w", tmpl.PlatformID, tmpl.Name, err)
	}

	stored := cloneTemplate(tmpl)

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(tmpl.PlatformID, tmpl.Name)
	if existing, ok := r.byKey[k]; ok {
		existing.tmpl = stored
		existing.pattern = pattern
		r.logger.Debug("Template replaced.",
			zap.String("platform", tmpl.PlatformID), zap.String("template", tmpl.Name))
		return nil
	}
	e := &entry{tmpl: stored, pattern: pattern}
	r.entries = append(r.entries, e)
	r.byKey[k] = e
	r.logger.Debug("Template registered.",
		zap.String("platform", tmpl.PlatformID), zap.String("template", tmpl.Name),
		zap.Int("actions", len(tmpl.Actions)))
	return nil
}

// Templates returns all templates for a platform in registration order.
func (r *Registry) Templates(platformID string) []schemas.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []schemas.Template
	for _, e := range r.entries {
		if e.tmpl.PlatformID == platformID {
			out = append(out, cloneTemplate(e.tmpl))
		}
	}
	return out
}

// All returns every registered template in registration order.
func (r *Registry) All() []schemas.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.Template, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, cloneTemplate(e.tmpl))
	}
	return out
}

// FindTemplateForURL returns the first registered template whose urlPattern
// matches url, in registration order. A non-empty platformID restricts the
// candidates to that platform. Matching is case-sensitive and unanchored; a
// miss returns ok=false, never an error.
func (r *Registry) FindTemplateForURL(url, platformID string) (schemas.Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if platformID != "" && e.tmpl.PlatformID != platformID {
			continue
		}
		if e.pattern.MatchString(url) {
			return cloneTemplate(e.tmpl), true
		}
	}
	return schemas.Template{}, false
}

// Get returns the template with the exact (platformId, name) pair.
func (r *Registry) Get(platformID, name string) (schemas.Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byKey[key(platformID, name)]; ok {
		return cloneTemplate(e.tmpl), true
	}
	return schemas.Template{}, false
}

// cloneTemplate copies the template deeply enough that callers cannot reach
// the registry's stored slices.
func cloneTemplate(t schemas.Template) schemas.Template {
	out := t
	out.Actions = make([]schemas.Action, len(t.Actions))
	copy(out.Actions, t.Actions)
	for i := range out.Actions {
		if ph := out.Actions[i].Placeholders; ph != nil {
			out.Actions[i].Placeholders = append([]string(nil), ph...)
		}
		if te := out.Actions[i].TriggerEvents; te != nil {
			v := *te
			out.Actions[i].TriggerEvents = &v
		}
		if wv := out.Actions[i].WaitForVisible; wv != nil {
			v := *wv
			out.Actions[i].WaitForVisible = &v
		}
	}
	return out
}
