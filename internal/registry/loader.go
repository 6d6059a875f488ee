package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chatdock/chatdock/api/schemas"
)

// templateFile is the on-disk shape of a user template file: either a bare
// array of templates or an object with a "templates" key.
type templateFile struct {
	Templates []schemas.Template `json:"templates"`
}

// LoadFile registers every template found in a JSON file. User templates are
// registered after built-ins, so a same-named template overrides the shipped
// one while new names append.
func LoadFile(r *Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read template file: %w", err)
	}

	var templates []schemas.Template
	if err := json.Unmarshal(data, &templates); err != nil {
		var wrapped templateFile
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return 0, fmt.Errorf("failed to parse template file %s: %w", path, err)
		}
		templates = wrapped.Templates
	}

	for i, tmpl := range templates {
		if err := r.Register(tmpl); err != nil {
			return i, fmt.Errorf("template %d in %s: %w", i, path, err)
		}
	}
	return len(templates), nil
}
