// dependencies.go
//
// Dependency fan-out. When an item changes, items that link to it through
// one of the fallback-order link types embed some of its fields in their
// own rendered payloads, so each dependent is re-sent with the trigger's
// version. Fan-out jobs never resolve their own dependencies; the graph is
// walked one hop only.

package downstream

import (
	"fmt"

	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/queries"
)

// dependencyPageSize bounds one pagination round over the dependents
// relation.
const dependencyPageSize = 200

// enqueueDependencies walks every item linking to the job's content item and
// enqueues a low-class delivery per dependent, deduplicated by document.
func (d *Dispatcher) enqueueDependencies(job Job, doc *models.Document) error {
	seen := map[string]bool{
		// Self-links must not re-trigger the item that just changed.
		doc.ContentID + ":" + doc.Locale: true,
	}

	client := queries.DependentsClient{
		DB:              d.DB,
		TargetContentID: doc.ContentID,
		LinkTypes:       d.FallbackOrder,
	}

	var after []string
	for {
		page, err := queries.NewKeysetPagination(
			client, queries.DependentsKey, queries.Ascending, dependencyPageSize, nil, after)
		if err != nil {
			return err
		}
		rows, err := page.Call()
		if err != nil {
			return err
		}
		for _, row := range rows {
			d.enqueueDependent(job, row, seen)
		}
		if len(rows) < dependencyPageSize {
			return nil
		}
		after = page.NextAfterKey()
	}
}

func (d *Dispatcher) enqueueDependent(job Job, row map[string]interface{}, seen map[string]bool) {
	contentID := stringField(row, "content_id")
	locale := stringField(row, "locale")
	key := contentID + ":" + locale
	if contentID == "" || seen[key] {
		return
	}
	seen[key] = true

	editionID := uintField(row, "edition_id")
	state := stringField(row, "state")

	dep := Job{
		EditionID: editionID,
		ContentID: contentID,
		Locale:    locale,
		Version:   job.Version,
		// A dependent is refreshed in place; the routing key must say so.
		UpdateTypeOverride:  models.UpdateTypeLinks,
		ResolveDependencies: false,
		AlertOnInvalidState: false,
	}

	switch state {
	case models.StateDraft:
		dep.Sink = SinkDraft
	case models.StatePublished, models.StateUnpublished:
		dep.Sink = SinkLive
	default:
		return
	}
	d.Queue.Enqueue(dep, ClassLow)
}

func stringField(row map[string]interface{}, name string) string {
	switch v := row[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func uintField(row map[string]interface{}, name string) uint64 {
	switch v := row[name].(type) {
	case uint64:
		return v
	case int64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case int:
		if v < 0 {
			return 0
		}
		return uint64(v)
	case float64:
		if v < 0 {
			return 0
		}
		return uint64(v)
	default:
		return 0
	}
}
