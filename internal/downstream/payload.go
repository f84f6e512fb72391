// payload.go
//
// Sink-agnostic downstream payload construction. Building is a pure function
// of the edition snapshot, the version token and the dependency fallback
// order; the same inputs always yield byte-identical output.

package downstream

import (
	"encoding/json"
	"sort"

	"github.com/ThomasJones4/publishing-api/internal/models"
)

// LinkGroup is one link type with its ordered targets.
type LinkGroup struct {
	Type    string   `json:"link_type"`
	Targets []string `json:"target_content_ids"`
}

// Payload is the immutable value delivered to every sink. Version is the
// event id of the mutation that produced it and the sole conflict-resolution
// token downstream.
type Payload struct {
	ContentID     string          `json:"content_id"`
	Locale        string          `json:"locale"`
	Version       uint64          `json:"payload_version"`
	BasePath      string          `json:"base_path,omitempty"`
	State         string          `json:"state"`
	SchemaName    string          `json:"schema_name"`
	DocumentType  string          `json:"document_type,omitempty"`
	UpdateType    string          `json:"update_type,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	Links         []LinkGroup     `json:"links"`
	AccessLimited bool            `json:"access_limited"`
}

// BuildPayload assembles the payload for one edition at one version. Link
// groups are emitted fallback-order types first, remaining types
// alphabetically, targets in their stored order, so output is deterministic.
func BuildPayload(doc *models.Document, edition *models.Edition, links map[string][]string, accessLimited bool, version uint64, fallbackOrder []string) *Payload {
	var details json.RawMessage
	if raw := edition.Details.String(); raw != "" && raw != "null" {
		details = json.RawMessage(raw)
	}

	return &Payload{
		ContentID:     doc.ContentID,
		Locale:        doc.Locale,
		Version:       version,
		BasePath:      edition.BasePath,
		State:         edition.State,
		SchemaName:    edition.SchemaName,
		DocumentType:  edition.DocumentType,
		UpdateType:    edition.UpdateType,
		Details:       details,
		Links:         orderedLinkGroups(links, fallbackOrder),
		AccessLimited: accessLimited,
	}
}

func orderedLinkGroups(links map[string][]string, fallbackOrder []string) []LinkGroup {
	groups := make([]LinkGroup, 0, len(links))
	seen := make(map[string]bool, len(links))

	for _, linkType := range fallbackOrder {
		if targets, ok := links[linkType]; ok && !seen[linkType] {
			seen[linkType] = true
			groups = append(groups, LinkGroup{Type: linkType, Targets: targets})
		}
	}

	rest := make([]string, 0, len(links))
	for linkType := range links {
		if !seen[linkType] {
			rest = append(rest, linkType)
		}
	}
	sort.Strings(rest)
	for _, linkType := range rest {
		groups = append(groups, LinkGroup{Type: linkType, Targets: links[linkType]})
	}

	return groups
}
