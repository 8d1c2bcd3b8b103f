package agreement

import (
	"encoding/json"
	"fmt"
)

// ExportFilename names the downloadable terms artifact.
func ExportFilename(t Terms) string {
	return fmt.Sprintf("agreement-%s.json", t.ID)
}

// Export serializes the raw terms (not the receipt) as a self-contained
// document for offline audit. Available at any state.
func Export(t Terms) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}
