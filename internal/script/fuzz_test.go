//go:build go1.18
// +build go1.18

package script

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/api/schemas"
)

// Fuzz_FillEscaping drives arbitrary byte content through the compiler and
// uses the tree-sitter parser as the oracle: no content may ever terminate
// its own string literal and corrupt the bundle syntax.
func Fuzz_FillEscaping(f *testing.F) {
	f.Add([]byte(`plain`))
	f.Add([]byte("quotes ' \" ` and\nnewlines"))
	f.Add([]byte(`\'); window.pwned = 1; ('`))
	f.Add([]byte("</script><script>"))

	compiler := New(zap.NewNop())

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		content, err := consumer.GetString()
		if err != nil {
			return
		}
		selector, err := consumer.GetString()
		if err != nil || selector == "" {
			selector = "#in"
		}

		bundle, err := compiler.GenerateSequenceScript([]schemas.Action{{
			Kind:     schemas.ActionFill,
			Selector: schemas.SelectorConfig{Selector: selector},
			Content:  content,
		}})
		if err != nil {
			t.Fatalf("compiling fill with content %q: %v", content, err)
		}
		if err := ValidateJS(bundle); err != nil {
			t.Fatalf("content %q broke the bundle syntax: %v", content, err)
		}
	})
}
