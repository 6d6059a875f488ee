package registry

import "github.com/chatdock/chatdock/api/schemas"

// Built-in templates for the supported chat platforms. Selectors track the
// upstream sites as of this writing; they are expected to rot and are fully
// overridable through the templates file.

const (
	chatgptInput = "#prompt-textarea"
	chatgptSend  = "button[data-testid=\"send-button\"]"
	claudeInput  = "div[contenteditable=\"true\"]"
	claudeSend   = "button[aria-label=\"Send Message\"]"
	geminiInput  = ".ql-editor"
	geminiSend   = "button[aria-label=\"Send message\"]"
)

const chatgptExtract = `() => {
  if (document.querySelector('button[data-testid="login-button"]')) {
    throw __cdErr('NotLoggedIn', 'login button present');
  }
  if (document.querySelector('button[data-testid="stop-button"]')) {
    return null;
  }
  const nodes = document.querySelectorAll('[data-message-author-role="assistant"]');
  if (!nodes.length) return null;
  const last = nodes[nodes.length - 1];
  return { text: last.innerText || '', html: last.innerHTML || '' };
}`

const claudeExtract = `() => {
  if (window.location.pathname.indexOf('/login') === 0) {
    throw __cdErr('NotLoggedIn', 'redirected to login');
  }
  const nodes = document.querySelectorAll('div.font-claude-message');
  if (!nodes.length) return null;
  const last = nodes[nodes.length - 1];
  return { text: last.innerText || '', html: last.innerHTML || '' };
}`

const geminiExtract = `() => {
  if (document.querySelector('a[aria-label="Sign in"]')) {
    throw __cdErr('NotLoggedIn', 'sign-in link present');
  }
  const nodes = document.querySelectorAll('.model-response-text');
  if (!nodes.length) return null;
  const last = nodes[nodes.length - 1];
  return { text: last.innerText || '', html: last.innerHTML || '' };
}`

var defaultPlaceholders = []string{"...", "…", "Thinking", "Generating"}

// Builtins returns the shipped templates in a stable order: a "send" template
// (fill, settle, click) and an "ask" template (send plus extract) per platform.
func Builtins() []schemas.Template {
	specs := []struct {
		platform   string
		urlPattern string
		input      string
		send       string
		extract    string
	}{
		{"chatgpt", `^https://(chat\.openai\.com|chatgpt\.com)/.*`, chatgptInput, chatgptSend, chatgptExtract},
		{"claude", `^https://claude\.ai/.*`, claudeInput, claudeSend, claudeExtract},
		{"gemini", `^https://gemini\.google\.com/.*`, geminiInput, geminiSend, geminiExtract},
	}

	var out []schemas.Template
	for _, s := range specs {
		sendActions := []schemas.Action{
			{Kind: schemas.ActionFill, Selector: schemas.SelectorConfig{Selector: s.input}, Content: "{{text}}"},
			{Kind: schemas.ActionWait, DurationMs: 150},
			{Kind: schemas.ActionClick, Selector: schemas.SelectorConfig{Selector: s.send}},
		}
		out = append(out, schemas.Template{
			PlatformID:  s.platform,
			Name:        "send",
			Description: "Fill the prompt input and trigger the send control.",
			URLPattern:  s.urlPattern,
			Actions:     sendActions,
		})

		askActions := append(append([]schemas.Action{}, sendActions...),
			schemas.Action{Kind: schemas.ActionWait, DurationMs: 500},
			schemas.Action{
				Kind:         schemas.ActionExtract,
				ExtractCode:  s.extract,
				OutputFormat: schemas.OutputBoth,
				Placeholders: defaultPlaceholders,
			},
		)
		out = append(out, schemas.Template{
			PlatformID:  s.platform,
			Name:        "ask",
			Description: "Send a prompt and poll for the rendered answer.",
			URLPattern:  s.urlPattern,
			Actions:     askActions,
		})
	}
	return out
}

// RegisterBuiltins loads every built-in template into the registry.
func RegisterBuiltins(r *Registry) error {
	for _, tmpl := range Builtins() {
		if err := r.Register(tmpl); err != nil {
			return err
		}
	}
	return nil
}
