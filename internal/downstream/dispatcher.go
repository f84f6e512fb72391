// dispatcher.go
//
// The dispatcher closes the gap between a committed mutation and the
// downstream stores. Enqueue methods run on the request path after commit;
// Process runs on the queue workers and performs the actual store and
// broker traffic.

package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/types"
)

// storeTimeout bounds a single content-store request on a worker.
const storeTimeout = 30 * time.Second

// Dispatcher enqueues and processes downstream deliveries. It satisfies the
// dispatcher interface expected by the mutation services.
type Dispatcher struct {
	DB            *gorm.DB
	Queue         Queue
	DraftStore    ContentStore
	LiveStore     ContentStore
	Broker        Broker
	Reporter      Reporter
	FallbackOrder []string
	Logger        zerolog.Logger
}

// SendDraft enqueues a draft-store delivery for a committed edition. Bulk
// traffic goes to the low class so interactive publishes are not starved.
func (d *Dispatcher) SendDraft(editionID uint64, contentID, locale string, version uint64, bulk, resolveDependencies bool) {
	d.Queue.Enqueue(Job{
		EditionID:           editionID,
		ContentID:           contentID,
		Locale:              locale,
		Version:             version,
		Sink:                SinkDraft,
		ResolveDependencies: resolveDependencies,
		AlertOnInvalidState: true,
	}, classFor(bulk))
}

// SendLive enqueues a live-store delivery. The update-type override, when
// set, replaces the edition's own update type in the broadcast routing key.
func (d *Dispatcher) SendLive(editionID uint64, contentID, locale string, version uint64, bulk bool, updateTypeOverride string, resolveDependencies bool) {
	d.Queue.Enqueue(Job{
		EditionID:           editionID,
		ContentID:           contentID,
		Locale:              locale,
		Version:             version,
		Sink:                SinkLive,
		UpdateTypeOverride:  updateTypeOverride,
		ResolveDependencies: resolveDependencies,
		AlertOnInvalidState: true,
	}, classFor(bulk))
}

func classFor(bulk bool) string {
	if bulk {
		return ClassLow
	}
	return ClassHigh
}

// Process is the worker body for one job. A job whose edition has vanished
// is reported and absorbed rather than failed: by the time a worker runs,
// the row it was enqueued for may legitimately be gone. Transport failures
// are returned to the queue.
func (d *Dispatcher) Process(job Job) error {
	edition, doc, err := d.loadEdition(job.EditionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d.Reporter.Report(
				types.NotFoundError(fmt.Sprintf("edition %d is gone, cannot send downstream", job.EditionID)),
				jobParams(job),
			)
			return nil
		}
		return err
	}

	switch job.Sink {
	case SinkLive:
		if err := d.processLive(job, doc, edition); err != nil {
			return err
		}
	default:
		if err := d.processDraft(job, doc, edition); err != nil {
			return err
		}
	}

	if job.ResolveDependencies {
		if err := d.enqueueDependencies(job, doc); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) processDraft(job Job, doc *models.Document, edition *models.Edition) error {
	// Editions without a base path have nothing to offer a path-addressed
	// store. Schemas exempt from base paths still flow through.
	if edition.BasePath == "" && models.BasePathRequired(edition.SchemaName) {
		d.Logger.Debug().
			Str("content_id", doc.ContentID).
			Str("locale", doc.Locale).
			Msg("skipping draft store, edition has no base path")
		return nil
	}
	payload, err := d.buildPayload(job, doc, edition)
	if err != nil {
		return err
	}
	return d.applyWithTimeout(d.DraftStore, payload)
}

func (d *Dispatcher) applyWithTimeout(store ContentStore, payload *Payload) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return store.Apply(ctx, payload)
}

func (d *Dispatcher) processLive(job Job, doc *models.Document, edition *models.Edition) error {
	if !edition.Live() {
		err := types.InvalidStateError(fmt.Sprintf(
			"edition %d in state %q cannot be sent to the live store", edition.ID, edition.State))
		if job.AlertOnInvalidState {
			d.Reporter.Report(err, jobParams(job))
		} else {
			d.Logger.Warn().Err(err).
				Str("content_id", doc.ContentID).
				Str("locale", doc.Locale).
				Msg("ignoring live delivery for non-live edition")
		}
		return nil
	}

	payload, err := d.buildPayload(job, doc, edition)
	if err != nil {
		return err
	}
	// The live store is path-addressed; an edition without a base path has
	// no slot there even when its schema tolerates the absence. Broadcasts
	// below are unaffected.
	if edition.BasePath != "" {
		if err := d.applyWithTimeout(d.LiveStore, payload); err != nil {
			return err
		}
	}

	// Only published editions are broadcast. Unpublished ones still reach
	// the live store (as withdrawals) but must not fan out to subscribers.
	if edition.State != models.StatePublished {
		return nil
	}
	return d.broadcast(job, edition, payload)
}

func (d *Dispatcher) broadcast(job Job, edition *models.Edition, payload *Payload) error {
	if d.Broker == nil {
		return nil
	}
	updateType := edition.UpdateType
	if job.UpdateTypeOverride != "" {
		updateType = job.UpdateTypeOverride
	}
	if updateType == "" {
		updateType = models.UpdateTypeMinor
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	// A failed publish is a transport error like any store failure; it goes
	// back to the queue so its retry policy owns it.
	routingKey := fmt.Sprintf("%s.%s", edition.SchemaName, updateType)
	return d.Broker.Publish(routingKey, body)
}

func (d *Dispatcher) buildPayload(job Job, doc *models.Document, edition *models.Edition) (*Payload, error) {
	links, err := d.linksByType(edition.ID)
	if err != nil {
		return nil, err
	}
	accessLimited, err := d.accessLimited(edition.ID)
	if err != nil {
		return nil, err
	}
	return BuildPayload(doc, edition, links, accessLimited, job.Version, d.FallbackOrder), nil
}

func (d *Dispatcher) loadEdition(editionID uint64) (*models.Edition, *models.Document, error) {
	var edition models.Edition
	if err := d.DB.First(&edition, editionID).Error; err != nil {
		return nil, nil, err
	}
	var doc models.Document
	if err := d.DB.First(&doc, edition.DocumentID).Error; err != nil {
		return nil, nil, err
	}
	return &edition, &doc, nil
}

func (d *Dispatcher) linksByType(editionID uint64) (map[string][]string, error) {
	var rows []models.Link
	err := d.DB.Where("edition_id = ?", editionID).
		Order("link_type, position, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	links := make(map[string][]string)
	for _, row := range rows {
		links[row.LinkType] = append(links[row.LinkType], row.TargetContentID)
	}
	return links, nil
}

func (d *Dispatcher) accessLimited(editionID uint64) (bool, error) {
	var count int64
	err := d.DB.Model(&models.AccessLimit{}).
		Where("edition_id = ?", editionID).
		Count(&count).Error
	return count > 0, err
}

func jobParams(job Job) map[string]interface{} {
	return map[string]interface{}{
		"edition_id": job.EditionID,
		"content_id": job.ContentID,
		"locale":     job.Locale,
		"version":    job.Version,
		"sink":       job.Sink,
	}
}
