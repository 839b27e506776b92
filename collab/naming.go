package collab

import (
	"fmt"
	"strings"

	"pagespace/domain/core/valueobjects"
)

// documentPrefix is the naming contract with the connecting transport:
// clients open a session for document "page.<pageID>".
const documentPrefix = "page."

// DocumentName derives the session document name for a page
func DocumentName(id valueobjects.PageID) string {
	return documentPrefix + id.String()
}

// ParseDocumentName recovers the page id from a document name
func ParseDocumentName(name string) (valueobjects.PageID, error) {
	raw, ok := strings.CutPrefix(name, documentPrefix)
	if !ok || raw == "" {
		return valueobjects.PageID{}, fmt.Errorf("invalid document name %q", name)
	}
	return valueobjects.NewPageIDFromString(raw)
}
