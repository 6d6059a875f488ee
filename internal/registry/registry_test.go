package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/api/schemas"
)

func fillClickTemplate(platform, name, pattern string) schemas.Template {
	return schemas.Template{
		PlatformID: platform,
		Name:       name,
		URLPattern: pattern,
		Actions: []schemas.Action{
			{Kind: schemas.ActionFill, Selector: schemas.SelectorConfig{Selector: "#in"}, Content: "hello"},
			{Kind: schemas.ActionClick, Selector: schemas.SelectorConfig{Selector: "#go"}},
		},
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New(zap.NewNop(), nil)

	t.Run("rejects bad url pattern", func(t *testing.T) {
		tmpl := fillClickTemplate("chatgpt", "send", "https://(unclosed")
		err := r.Register(tmpl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "urlPattern")
	})

	t.Run("rejects empty action list", func(t *testing.T) {
		tmpl := schemas.Template{PlatformID: "chatgpt", Name: "empty", URLPattern: ".*"}
		require.Error(t, r.Register(tmpl))
	})

	t.Run("rejects unknown action kind", func(t *testing.T) {
		tmpl := schemas.Template{
			PlatformID: "chatgpt", Name: "weird", URLPattern: ".*",
			Actions: []schemas.Action{{Kind: "teleport"}},
		}
		err := r.Register(tmpl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown action kind")
	})

	t.Run("runs the JS validator over custom and extract code", func(t *testing.T) {
		var seen []string
		validating := New(zap.NewNop(), func(src string) error {
			seen = append(seen, src)
			return nil
		})
		tmpl := schemas.Template{
			PlatformID: "chatgpt", Name: "custom", URLPattern: ".*",
			Actions: []schemas.Action{
				{Kind: schemas.ActionCustom, Code: "void 0;"},
				{Kind: schemas.ActionExtract, ExtractCode: "() => null"},
			},
		}
		require.NoError(t, validating.Register(tmpl))
		assert.Equal(t, []string{"void 0;", "() => null"}, seen)

		rejecting := New(zap.NewNop(), func(string) error { return fmt.Errorf("syntax error") })
		err := rejecting.Register(tmpl)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syntax error")
	})
}

func TestFindTemplateForURL(t *testing.T) {
	r := New(zap.NewNop(), nil)
	require.NoError(t, r.Register(fillClickTemplate("chatgpt", "send", `https://chat\.example\.com.*`)))
	require.NoError(t, r.Register(fillClickTemplate("claude", "send", `https://claude\.example\.com.*`)))
	require.NoError(t, r.Register(fillClickTemplate("chatgpt", "broad", `.*`)))

	t.Run("matches only when the pattern matches", func(t *testing.T) {
		tmpl, ok := r.FindTemplateForURL("https://chat.example.com/c/1", "")
		require.True(t, ok)
		assert.Equal(t, "send", tmpl.Name)

		tmpl, ok = r.FindTemplateForURL("https://other.com", "")
		require.True(t, ok, "the catch-all pattern should match")
		assert.Equal(t, "broad", tmpl.Name)
	})

	t.Run("registration order wins", func(t *testing.T) {
		// Both chatgpt/send and chatgpt/broad match; send was registered first.
		tmpl, ok := r.FindTemplateForURL("https://chat.example.com/c/2", "chatgpt")
		require.True(t, ok)
		assert.Equal(t, "send", tmpl.Name)
	})

	t.Run("platform filter", func(t *testing.T) {
		tmpl, ok := r.FindTemplateForURL("https://claude.example.com/new", "claude")
		require.True(t, ok)
		assert.Equal(t, "claude", tmpl.PlatformID)

		_, ok = r.FindTemplateForURL("https://claude.example.com/new", "gemini")
		assert.False(t, ok, "no gemini template matches")
	})

	t.Run("no match returns ok=false without error", func(t *testing.T) {
		empty := New(zap.NewNop(), nil)
		_, ok := empty.FindTemplateForURL("https://anything", "")
		assert.False(t, ok)
	})

	t.Run("matching is case-sensitive and unanchored", func(t *testing.T) {
		cs := New(zap.NewNop(), nil)
		require.NoError(t, cs.Register(fillClickTemplate("p", "t", `example\.com`)))
		_, ok := cs.FindTemplateForURL("https://EXAMPLE.com", "")
		assert.False(t, ok)
		_, ok = cs.FindTemplateForURL("https://sub.example.com/path", "")
		assert.True(t, ok, "pattern is not implicitly anchored")
	})
}

func TestRegisterReplaceKeepsOrder(t *testing.T) {
	r := New(zap.NewNop(), nil)
	require.NoError(t, r.Register(fillClickTemplate("chatgpt", "a", "one")))
	require.NoError(t, r.Register(fillClickTemplate("chatgpt", "b", "two")))

	replacement := fillClickTemplate("chatgpt", "a", "replaced")
	replacement.Description = "v2"
	require.NoError(t, r.Register(replacement))

	templates := r.Templates("chatgpt")
	require.Len(t, templates, 2)
	assert.Equal(t, "a", templates[0].Name, "replacement keeps the original slot")
	assert.Equal(t, "v2", templates[0].Description)
	assert.Equal(t, "replaced", templates[0].URLPattern)
	assert.Equal(t, "b", templates[1].Name)
}

func TestReturnedTemplatesAreCopies(t *testing.T) {
	r := New(zap.NewNop(), nil)
	require.NoError(t, r.Register(fillClickTemplate("chatgpt", "send", ".*")))

	got, ok := r.Get("chatgpt", "send")
	require.True(t, ok)
	got.Actions[0].Content = "mutated"

	again, _ := r.Get("chatgpt", "send")
	assert.Equal(t, "hello", again.Actions[0].Content, "stored template must not observe caller mutation")
}

func TestBuiltins(t *testing.T) {
	r := New(zap.NewNop(), nil)
	require.NoError(t, RegisterBuiltins(r))

	for _, platform := range []string{"chatgpt", "claude", "gemini"} {
		templates := r.Templates(platform)
		require.Len(t, templates, 2, platform)
		assert.Equal(t, "send", templates[0].Name)
		assert.Equal(t, "ask", templates[1].Name)
	}

	tmpl, ok := r.FindTemplateForURL("https://chatgpt.com/c/123", "chatgpt")
	require.True(t, ok)
	assert.Equal(t, "send", tmpl.Name)

	tmpl, ok = r.FindTemplateForURL("https://claude.ai/new", "")
	require.True(t, ok)
	assert.Equal(t, "claude", tmpl.PlatformID)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("bare array", func(t *testing.T) {
		path := filepath.Join(dir, "templates.json")
		require.NoError(t, os.WriteFile(path, []byte(`[
			{"platformId":"chatgpt","name":"send","urlPattern":".*",
			 "actions":[{"kind":"fill","selector":{"selector":"#custom"},"content":"{{text}}"}]}
		]`), 0o644))

		r := New(zap.NewNop(), nil)
		require.NoError(t, RegisterBuiltins(r))
		n, err := LoadFile(r, path)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		tmpl, ok := r.Get("chatgpt", "send")
		require.True(t, ok)
		assert.Equal(t, "#custom", tmpl.Actions[0].Selector.Selector, "file template overrides the built-in")
	})

	t.Run("wrapped object", func(t *testing.T) {
		path := filepath.Join(dir, "wrapped.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"templates":[
			{"platformId":"p","name":"t","urlPattern":".*",
			 "actions":[{"kind":"wait","durationMs":10}]}
		]}`), 0o644))

		r := New(zap.NewNop(), nil)
		n, err := LoadFile(r, path)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("invalid template reports its index", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`[
			{"platformId":"p","name":"ok","urlPattern":".*","actions":[{"kind":"wait"}]},
			{"platformId":"p","name":"bad","urlPattern":"(","actions":[{"kind":"wait"}]}
		]`), 0o644))

		r := New(zap.NewNop(), nil)
		_, err := LoadFile(r, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "template 1")
	})
}
