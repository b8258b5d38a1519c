package schema

import (
	"embed"
	"fmt"
)

// Request body schemas for the mutating API endpoints. Compiled lazily and
// cached by ValidateRequest via the embedded filesystem.
const (
	RequestCreateNote  = "note_create"
	RequestUpdateNote  = "note_update"
	RequestAcquireLock = "lock_acquire"
)

//go:embed schemas/*.json
var requestSchemaFS embed.FS

// ValidateRequest validates a decoded JSON request body against one of the
// embedded request schemas.
func ValidateRequest(name string, value any) error {
	data, err := requestSchemaFS.ReadFile("schemas/" + name + ".schema.json")
	if err != nil {
		return fmt.Errorf("load %s schema: %w", name, err)
	}
	return ValidateSchema(name, data, value)
}
