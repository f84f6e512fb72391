// queue.go
//
// The downstream work queue. Two priority classes exist: high for
// interactive publishes, low for bulk and background fan-out. Delivery to
// workers is at-least-once, so processors must be idempotent; the version
// guard in the sinks is what makes that safe.

package downstream

import (
	"sync"

	"github.com/rs/zerolog"
)

// Queue classes.
const (
	ClassHigh = "high"
	ClassLow  = "low"
)

// Sink selectors for jobs.
const (
	SinkDraft = "draft"
	SinkLive  = "live"
)

// Job is one asynchronous unit of downstream work.
type Job struct {
	EditionID           uint64 `json:"edition_id"`
	ContentID           string `json:"content_id"`
	Locale              string `json:"locale"`
	Version             uint64 `json:"version"`
	Sink                string `json:"sink"`
	UpdateTypeOverride  string `json:"update_type_override,omitempty"`
	ResolveDependencies bool   `json:"resolve_dependencies"`
	AlertOnInvalidState bool   `json:"alert_on_invalid_state"`
}

// Processor consumes jobs pulled from the queue.
type Processor interface {
	Process(job Job) error
}

// Queue accepts jobs for one of the two priority classes.
type Queue interface {
	Enqueue(job Job, class string)
}

// MemoryQueue is the in-process queue implementation: two buffered channels
// drained by a worker pool that prefers the high class. It carries no retry
// policy; a failed job is logged and dropped.
type MemoryQueue struct {
	high   chan Job
	low    chan Job
	done   chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func NewMemoryQueue(depth int, logger zerolog.Logger) *MemoryQueue {
	if depth <= 0 {
		depth = 1024
	}
	return &MemoryQueue{
		high:   make(chan Job, depth),
		low:    make(chan Job, depth),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (q *MemoryQueue) Enqueue(job Job, class string) {
	switch class {
	case ClassLow:
		q.low <- job
	default:
		q.high <- job
	}
}

// Start launches the worker pool. Each worker drains the high class before
// taking low-class work.
func (q *MemoryQueue) Start(workers int, processor Processor) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work(processor)
	}
}

func (q *MemoryQueue) work(processor Processor) {
	defer q.wg.Done()
	for {
		// Prefer high-priority work when any is waiting.
		select {
		case job := <-q.high:
			q.run(processor, job)
			continue
		default:
		}

		select {
		case job := <-q.high:
			q.run(processor, job)
		case job := <-q.low:
			q.run(processor, job)
		case <-q.done:
			return
		}
	}
}

func (q *MemoryQueue) run(processor Processor, job Job) {
	if err := processor.Process(job); err != nil {
		// Transport failures land here; the in-process queue has no
		// retry policy, so the failure is surfaced and the job dropped.
		q.logger.Error().Err(err).
			Str("content_id", job.ContentID).
			Str("locale", job.Locale).
			Str("sink", job.Sink).
			Uint64("version", job.Version).
			Msg("downstream job failed")
	}
}

// Stop signals the workers and waits for in-flight jobs to finish. Queued
// but unstarted jobs may be dropped.
func (q *MemoryQueue) Stop() {
	close(q.done)
	q.wg.Wait()
}

// DirectQueue runs each job inline on the enqueuing goroutine. Used by the
// tests and by the one-shot requeue binary, where asynchrony only obscures
// ordering.
type DirectQueue struct {
	Processor Processor
	logger    zerolog.Logger
}

func NewDirectQueue(processor Processor, logger zerolog.Logger) *DirectQueue {
	return &DirectQueue{Processor: processor, logger: logger}
}

func (q *DirectQueue) Enqueue(job Job, _ string) {
	if err := q.Processor.Process(job); err != nil {
		q.logger.Error().Err(err).
			Str("content_id", job.ContentID).
			Str("sink", job.Sink).
			Msg("downstream job failed")
	}
}
