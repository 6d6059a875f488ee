// Package script turns automation templates into self-contained JavaScript
// bundles. A bundle is a single async function expression that executes its
// actions strictly in order, never throws past its own boundary and returns
// one JSON-serializable result object.
package script

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chatdock/chatdock/api/schemas"
)

// Compiler produces executable fragments and whole bundles from actions. It
// is stateless apart from its logger and safe for concurrent use.
type Compiler struct {
	logger *zap.Logger
}

// New builds a Compiler.
func New(logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{logger: logger.Named("script")}
}

// selectorCfg is the wire shape of a SelectorConfig inside a fragment, with
// the effective timeout already applied.
type selectorCfg struct {
	Selector           string `json:"selector"`
	IframeSelector     string `json:"iframeSelector,omitempty"`
	ShadowHostSelector string `json:"shadowHostSelector,omitempty"`
	TimeoutMs          int    `json:"timeoutMs"`
}

// jsString JSON-encodes a Go string into a JavaScript string literal. Quotes,
// backslashes and newlines can never terminate the literal, which is the
// whole injection-safety story of the compiler.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func (c *Compiler) selectorJSON(a schemas.Action) string {
	cfg := selectorCfg{
		Selector:           a.Selector.Selector,
		IframeSelector:     a.Selector.IframeSelector,
		ShadowHostSelector: a.Selector.ShadowHostSelector,
		TimeoutMs:          a.Selector.EffectiveTimeoutMs(a.TimeoutMs),
	}
	b, _ := json.Marshal(cfg)
	return string(b)
}

// ActionFragment compiles one action into the statements that execute it.
// The fragment assumes the bundle prelude is in scope and signals failure by
// throwing; the sequence wrapper owns the catch.
func (c *Compiler) ActionFragment(a schemas.Action, index int) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// action %d: %s\n", index, a.Kind)
	if a.DelayMs > 0 && (a.Kind == schemas.ActionFill || a.Kind == schemas.ActionClick) {
		fmt.Fprintf(&b, "await __cdPause(%d, __cdCancelled);\n", a.DelayMs)
	}

	switch a.Kind {
	case schemas.ActionFill:
		fmt.Fprintf(&b, "{\n  const el = await __cdResolve(%s, __cdCancelled);\n", c.selectorJSON(a))
		fmt.Fprintf(&b, "  __cdSetValue(el, %s);\n", jsString(a.Content))
		if a.TriggersEvents() {
			b.WriteString("  __cdFire(el);\n")
		}
		b.WriteString("}")

	case schemas.ActionClick:
		fmt.Fprintf(&b, "{\n  const el = await __cdResolve(%s, __cdCancelled);\n", c.selectorJSON(a))
		if a.WaitsForVisible() {
			timeout := a.EffectiveTimeoutMs()
			fmt.Fprintf(&b, "  const deadline = Date.now() + %d;\n", timeout)
			b.WriteString("  while (!__cdVisible(el)) {\n")
			b.WriteString("    if (__cdCancelled()) throw __cdErr('ScriptExecutionError', 'cancelled by host');\n")
			fmt.Fprintf(&b, "    if (Date.now() >= deadline) throw __cdErr('SelectorNotFound', %s + ' found but not visible within %dms');\n",
				jsString(a.Selector.Selector), timeout)
			b.WriteString("    await __cdSleep(100);\n  }\n")
		}
		b.WriteString("  el.click();\n}")

	case schemas.ActionWait:
		fmt.Fprintf(&b, "await __cdPause(%d, __cdCancelled);", a.DurationMs)

	case schemas.ActionCustom:
		// Embedded verbatim. The code shares the bundle scope and must throw
		// (ideally via __cdErr) to signal failure.
		b.WriteString(a.Code)

	case schemas.ActionExtract:
		timeout := a.EffectiveTimeoutMs()
		fmt.Fprintf(&b, "{\n  const extract = (%s);\n", a.ExtractCode)
		fmt.Fprintf(&b, "  const placeholders = %s;\n", jsStrings(a.Placeholders))
		fmt.Fprintf(&b, "  const deadline = Date.now() + %d;\n", timeout)
		b.WriteString("  for (;;) {\n")
		b.WriteString("    if (__cdCancelled()) throw __cdErr('ScriptExecutionError', 'cancelled by host');\n")
		b.WriteString("    const value = await extract();\n")
		b.WriteString("    let text = '';\n    let html = '';\n")
		b.WriteString("    if (typeof value === 'string') { text = value; }\n")
		b.WriteString("    else if (value) { text = value.text || ''; html = value.html || ''; }\n")
		b.WriteString("    const probe = text.trim();\n")
		b.WriteString("    if ((probe !== '' || html !== '') && placeholders.indexOf(probe) === -1) {\n")
		b.WriteString("      __cdPayload = {};\n")
		switch a.EffectiveOutputFormat() {
		case schemas.OutputText:
			b.WriteString("      __cdPayload.text = text;\n")
		case schemas.OutputHTML:
			b.WriteString("      __cdPayload.html = html;\n")
		case schemas.OutputBoth:
			b.WriteString("      __cdPayload.text = text;\n      __cdPayload.html = html;\n")
		}
		b.WriteString("      break;\n    }\n")
		fmt.Fprintf(&b, "    if (Date.now() >= deadline) throw __cdErr('ResultTimeout', 'no extraction result within %dms');\n", timeout)
		fmt.Fprintf(&b, "    await __cdSleep(%d);\n  }\n}", a.EffectivePollIntervalMs())
	}

	return b.String(), nil
}

// GenerateSequenceScript composes all fragments into one async function
// expression. The function takes a cancellation predicate, counts completed
// actions, and maps any fragment failure into the error field of its single
// returned object; it never throws past its own boundary. The result carries
// a payload only when the final action is an extract.
func (c *Compiler) GenerateSequenceScript(actions []schemas.Action) (string, error) {
	if len(actions) == 0 {
		return "", fmt.Errorf("cannot compile an empty action sequence")
	}

	var b strings.Builder
	b.WriteString("(async (__cdCancelled) => {\n")
	b.WriteString("__cdCancelled = __cdCancelled || (() => false);\n")
	b.WriteString(prelude)
	b.WriteString("const __cdStart = Date.now();\n")
	b.WriteString("let __cdActions = 0;\n")
	b.WriteString("let __cdPayload = null;\n")
	b.WriteString("try {\n")
	for i, a := range actions {
		fragment, err := c.ActionFragment(a, i)
		if err != nil {
			return "", fmt.Errorf("action %d: %w", i, err)
		}
		b.WriteString(fragment)
		b.WriteString("\n__cdActions++;\n")
	}
	b.WriteString("const __cdResult = { success: true, durationMs: Date.now() - __cdStart, actionsExecuted: __cdActions };\n")
	// Only a trailing extract contributes a payload. Mid-sequence extracts
	// still gate progress on page content but their value is discarded.
	if actions[len(actions)-1].Kind == schemas.ActionExtract {
		b.WriteString("if (__cdPayload !== null) { __cdResult.payload = __cdPayload; }\n")
	}
	b.WriteString("return __cdResult;\n")
	b.WriteString("} catch (e) {\n")
	b.WriteString("const kind = (e && e.__cdKind) ? e.__cdKind : 'ScriptExecutionError';\n")
	b.WriteString("const message = (e && e.message !== undefined) ? String(e.message) : String(e);\n")
	b.WriteString("return { success: false, error: { kind: kind, message: message }, durationMs: Date.now() - __cdStart, actionsExecuted: __cdActions };\n")
	b.WriteString("}\n})")

	c.logger.Debug("Compiled action sequence.",
		zap.Int("actions", len(actions)), zap.Int("bytes", b.Len()))
	return b.String(), nil
}

// GenerateTemplateScript substitutes {{key}} placeholders from params into
// the template's fill content, custom code and extract code, then compiles
// the sequence. Unknown placeholders stay untouched; substitution happens
// before escaping, so parameter values cannot break out of their literals.
func (c *Compiler) GenerateTemplateScript(tmpl schemas.Template, params map[string]string) (string, error) {
	if err := tmpl.Validate(); err != nil {
		return "", err
	}
	actions := make([]schemas.Action, len(tmpl.Actions))
	copy(actions, tmpl.Actions)
	for i := range actions {
		actions[i].Content = substitute(actions[i].Content, params)
		actions[i].Code = substitute(actions[i].Code, params)
		actions[i].ExtractCode = substitute(actions[i].ExtractCode, params)
	}
	return c.GenerateSequenceScript(actions)
}

func substitute(s string, params map[string]string) string {
	if s == "" || len(params) == 0 {
		return s
	}
	for k, v := range params {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}
