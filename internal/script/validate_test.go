package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJS(t *testing.T) {
	t.Run("accepts valid code", func(t *testing.T) {
		sources := []string{
			"void 0;",
			"() => null",
			"async () => { await new Promise((r) => setTimeout(r, 1)); }",
			"const x = { a: 1, b: [2, 3] };",
			prelude,
		}
		for _, src := range sources {
			assert.NoError(t, ValidateJS(src), src)
		}
	})

	t.Run("rejects broken code with an offset", func(t *testing.T) {
		err := ValidateJS("const x = {")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syntax error")

		err = ValidateJS("function ( { return 1 }")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "offset")
	})

	t.Run("rejects an unterminated string", func(t *testing.T) {
		assert.Error(t, ValidateJS(`const s = "unterminated`))
	})
}
