package downstream_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/downstream"
	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/tests/helpers"
)

// captureQueue records enqueued jobs without running them.
type captureQueue struct {
	Jobs    []downstream.Job
	Classes []string
}

func (q *captureQueue) Enqueue(job downstream.Job, class string) {
	q.Jobs = append(q.Jobs, job)
	q.Classes = append(q.Classes, class)
}

type fixture struct {
	DB         *gorm.DB
	Dispatcher *downstream.Dispatcher
	Queue      *captureQueue
	DraftStore *downstream.MemoryStore
	LiveStore  *downstream.MemoryStore
	Broker     *downstream.MemoryBroker
	Reporter   *downstream.MemoryReporter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		DB:         helpers.NewTestDB(t),
		Queue:      &captureQueue{},
		DraftStore: downstream.NewMemoryStore("draft-content-store"),
		LiveStore:  downstream.NewMemoryStore("live-content-store"),
		Broker:     downstream.NewMemoryBroker(),
		Reporter:   &downstream.MemoryReporter{},
	}
	f.Dispatcher = &downstream.Dispatcher{
		DB:            f.DB,
		Queue:         f.Queue,
		DraftStore:    f.DraftStore,
		LiveStore:     f.LiveStore,
		Broker:        f.Broker,
		Reporter:      f.Reporter,
		FallbackOrder: []string{"parent"},
		Logger:        zerolog.Nop(),
	}
	return f
}

func liveJob(edition *models.Edition, doc *models.Document, version uint64) downstream.Job {
	return downstream.Job{
		EditionID:           edition.ID,
		ContentID:           doc.ContentID,
		Locale:              doc.Locale,
		Version:             version,
		Sink:                downstream.SinkLive,
		AlertOnInvalidState: true,
	}
}

func TestVersionGuardConvergesUnderEitherOrder(t *testing.T) {
	doc := &models.Document{ContentID: helpers.NewContentID(), Locale: "en"}
	edition := &models.Edition{State: models.StatePublished, BasePath: "/thing", SchemaName: "news_article"}

	older := downstream.BuildPayload(doc, edition, nil, false, 3, nil)
	newer := downstream.BuildPayload(doc, edition, nil, false, 4, nil)

	inOrder := downstream.NewMemoryStore("a")
	require.NoError(t, inOrder.Apply(nil, older))
	require.NoError(t, inOrder.Apply(nil, newer))

	reversed := downstream.NewMemoryStore("b")
	require.NoError(t, reversed.Apply(nil, newer))
	require.NoError(t, reversed.Apply(nil, older))

	assert.Equal(t, uint64(4), inOrder.RecordedVersion(doc.ContentID, "en"))
	assert.Equal(t, uint64(4), reversed.RecordedVersion(doc.ContentID, "en"))
}

func TestProcessDraftDelivery(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StateDraft, 1, "/thing")
	helpers.CreateLink(t, f.DB, edition, "parent", helpers.NewContentID(), 0)

	job := downstream.Job{
		EditionID: edition.ID,
		ContentID: doc.ContentID,
		Locale:    "en",
		Version:   7,
		Sink:      downstream.SinkDraft,
	}
	require.NoError(t, f.Dispatcher.Process(job))

	payload := f.DraftStore.RecordedPayload(doc.ContentID, "en")
	require.NotNil(t, payload)
	assert.Equal(t, uint64(7), payload.Version)
	assert.Equal(t, models.StateDraft, payload.State)
	require.Len(t, payload.Links, 1)
	assert.Equal(t, "parent", payload.Links[0].Type)

	// Drafts never reach the live pipeline.
	assert.Zero(t, f.LiveStore.RecordedVersion(doc.ContentID, "en"))
	assert.Empty(t, f.Broker.Messages())
}

func TestProcessDraftSkipsEditionWithoutBasePath(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StateDraft, 1, "")

	job := downstream.Job{
		EditionID: edition.ID,
		ContentID: doc.ContentID,
		Locale:    "en",
		Version:   1,
		Sink:      downstream.SinkDraft,
	}
	require.NoError(t, f.Dispatcher.Process(job))
	assert.Zero(t, f.DraftStore.RecordedVersion(doc.ContentID, "en"))
}

func TestProcessLivePublishedBroadcasts(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StatePublished, 1, "/thing")

	require.NoError(t, f.Dispatcher.Process(liveJob(edition, doc, 9)))

	assert.Equal(t, uint64(9), f.LiveStore.RecordedVersion(doc.ContentID, "en"))

	messages := f.Broker.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "news_article.major", messages[0].RoutingKey)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(messages[0].Body, &body))
	assert.Equal(t, doc.ContentID, body["content_id"])
	assert.Equal(t, float64(9), body["payload_version"])
}

func TestProcessLiveUpdateTypeOverride(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StatePublished, 1, "/thing")

	job := liveJob(edition, doc, 3)
	job.UpdateTypeOverride = models.UpdateTypeLinks
	require.NoError(t, f.Dispatcher.Process(job))

	messages := f.Broker.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "news_article.links", messages[0].RoutingKey)
}

func TestProcessLiveUnpublishedReachesStoreButNotBroker(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StateUnpublished, 1, "/thing")

	require.NoError(t, f.Dispatcher.Process(liveJob(edition, doc, 5)))

	assert.Equal(t, uint64(5), f.LiveStore.RecordedVersion(doc.ContentID, "en"))
	assert.Empty(t, f.Broker.Messages())
}

func TestProcessLiveSkipsStoreWithoutBasePath(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StatePublished, 1, "")
	require.NoError(t, f.DB.Model(edition).Update("schema_name", "contact").Error)

	require.NoError(t, f.Dispatcher.Process(liveJob(edition, doc, 2)))

	// A pathless edition has no slot in a path-addressed store, even when
	// its schema tolerates the missing path. It still broadcasts.
	assert.Zero(t, f.LiveStore.RecordedVersion(doc.ContentID, "en"))
	messages := f.Broker.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "contact.major", messages[0].RoutingKey)
}

func TestProcessLiveBulkReindexRoutingKey(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StatePublished, 1, "/thing")

	job := liveJob(edition, doc, 6)
	job.UpdateTypeOverride = models.UpdateTypeBulkReindex
	require.NoError(t, f.Dispatcher.Process(job))

	messages := f.Broker.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "news_article.bulk.reindex", messages[0].RoutingKey)
}

// brokenBroker fails every publish.
type brokenBroker struct{}

func (brokenBroker) Publish(string, []byte) error { return errors.New("connection reset by peer") }
func (brokenBroker) Close() error                 { return nil }

func TestProcessLiveBrokerFailureReturnsToQueue(t *testing.T) {
	f := newFixture(t)
	f.Dispatcher.Broker = brokenBroker{}
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StatePublished, 1, "/thing")

	err := f.Dispatcher.Process(liveJob(edition, doc, 2))
	require.Error(t, err)

	// The store write already landed; a retry re-applies it behind the
	// version guard. The failure belongs to the queue, not the reporter.
	assert.Equal(t, uint64(2), f.LiveStore.RecordedVersion(doc.ContentID, "en"))
	assert.Empty(t, f.Reporter.Reports)
}

func TestProcessLiveRejectsNonLiveStates(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	draft := helpers.CreateEdition(t, f.DB, doc, models.StateDraft, 2, "/thing")
	superseded := helpers.CreateEdition(t, f.DB, doc, models.StateSuperseded, 1, "/thing")

	require.NoError(t, f.Dispatcher.Process(liveJob(draft, doc, 2)))
	require.NoError(t, f.Dispatcher.Process(liveJob(superseded, doc, 3)))

	// Nothing was delivered; both were reported.
	assert.Zero(t, f.LiveStore.RecordedVersion(doc.ContentID, "en"))
	assert.Empty(t, f.Broker.Messages())
	assert.Len(t, f.Reporter.Reports, 2)
}

func TestProcessLiveInvalidStateLogOnly(t *testing.T) {
	f := newFixture(t)
	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	superseded := helpers.CreateEdition(t, f.DB, doc, models.StateSuperseded, 1, "/thing")

	job := liveJob(superseded, doc, 2)
	job.AlertOnInvalidState = false
	require.NoError(t, f.Dispatcher.Process(job))

	// Bulk fan-out routinely hits superseded rows; those are logged, not
	// reported.
	assert.Empty(t, f.Reporter.Reports)
}

func TestProcessMissingEditionReportedAndAbsorbed(t *testing.T) {
	f := newFixture(t)

	job := downstream.Job{
		EditionID: 12345,
		ContentID: helpers.NewContentID(),
		Locale:    "en",
		Version:   1,
		Sink:      downstream.SinkDraft,
	}
	require.NoError(t, f.Dispatcher.Process(job))
	assert.Len(t, f.Reporter.Reports, 1)
}

func TestDependencyFanOutCarriesTriggerVersion(t *testing.T) {
	f := newFixture(t)

	// target <- parent link from a published dependent and a draft dependent.
	target := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	targetEdition := helpers.CreateEdition(t, f.DB, target, models.StatePublished, 1, "/target")

	publishedDep := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	publishedDepEdition := helpers.CreateEdition(t, f.DB, publishedDep, models.StatePublished, 1, "/dep-live")
	helpers.CreateLink(t, f.DB, publishedDepEdition, "parent", target.ContentID, 0)

	draftDep := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	draftDepEdition := helpers.CreateEdition(t, f.DB, draftDep, models.StateDraft, 1, "/dep-draft")
	helpers.CreateLink(t, f.DB, draftDepEdition, "parent", target.ContentID, 0)

	// An unrelated link type must not trigger fan-out.
	ignoredDep := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	ignoredDepEdition := helpers.CreateEdition(t, f.DB, ignoredDep, models.StatePublished, 1, "/dep-ignored")
	helpers.CreateLink(t, f.DB, ignoredDepEdition, "organisations", target.ContentID, 0)

	job := liveJob(targetEdition, target, 42)
	job.ResolveDependencies = true
	require.NoError(t, f.Dispatcher.Process(job))

	require.Len(t, f.Queue.Jobs, 2)
	for i, dep := range f.Queue.Jobs {
		assert.Equal(t, uint64(42), dep.Version, "dependent %d must carry the trigger version", i)
		assert.Equal(t, models.UpdateTypeLinks, dep.UpdateTypeOverride)
		assert.False(t, dep.ResolveDependencies, "fan-out must not cascade")
		assert.Equal(t, downstream.ClassLow, f.Queue.Classes[i])
	}

	sinks := map[string]string{}
	for _, dep := range f.Queue.Jobs {
		sinks[dep.ContentID] = dep.Sink
	}
	assert.Equal(t, downstream.SinkLive, sinks[publishedDep.ContentID])
	assert.Equal(t, downstream.SinkDraft, sinks[draftDep.ContentID])
}

func TestDependencyFanOutSkipsSelf(t *testing.T) {
	f := newFixture(t)

	doc := helpers.CreateDocument(t, f.DB, helpers.NewContentID(), "en")
	edition := helpers.CreateEdition(t, f.DB, doc, models.StatePublished, 1, "/self")
	helpers.CreateLink(t, f.DB, edition, "parent", doc.ContentID, 0)

	job := liveJob(edition, doc, 1)
	job.ResolveDependencies = true
	require.NoError(t, f.Dispatcher.Process(job))
	assert.Empty(t, f.Queue.Jobs)
}
