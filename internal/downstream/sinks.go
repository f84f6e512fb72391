// sinks.go
//
// Content store adapters for the draft and live read replicas. Every sink
// enforces the version guard on apply: a payload whose version is not newer
// than the last recorded version for its (content_id, locale) is a no-op.
// That guard, not arrival order, is what makes at-least-once delivery safe.

package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThomasJones4/publishing-api/internal/types"
)

// ContentStore is one downstream read replica.
type ContentStore interface {
	Name() string
	Apply(ctx context.Context, payload *Payload) error
}

// MemoryStore is an in-process content store. It is the default when no
// store URL is configured and the reference implementation of the version
// guard used by the tests.
type MemoryStore struct {
	name string

	mu       sync.Mutex
	versions map[string]uint64
	payloads map[string]*Payload
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:     name,
		versions: make(map[string]uint64),
		payloads: make(map[string]*Payload),
	}
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) Apply(_ context.Context, payload *Payload) error {
	key := payload.ContentID + ":" + payload.Locale

	s.mu.Lock()
	defer s.mu.Unlock()

	if payload.Version <= s.versions[key] {
		// Already applied, or superseded by a later concurrent job.
		return nil
	}
	s.versions[key] = payload.Version
	s.payloads[key] = payload
	return nil
}

// RecordedVersion returns the version last applied for the pair, 0 when the
// store has never seen it.
func (s *MemoryStore) RecordedVersion(contentID, locale string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[contentID+":"+locale]
}

// RecordedPayload returns the payload last applied for the pair, nil when
// absent.
func (s *MemoryStore) RecordedPayload(contentID, locale string) *Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[contentID+":"+locale]
}

// HTTPStore delivers payloads to a remote content store over HTTP PUT. The
// remote side owns the version guard; a 409 response means the store already
// holds something newer and is treated as a successful no-op.
type HTTPStore struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewHTTPStore(name, baseURL string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) Name() string { return s.name }

func (s *HTTPStore) Apply(ctx context.Context, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := s.baseURL + "/content" + payload.BasePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return types.SinkUnavailableError(s.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		// The store already recorded an equal or newer version.
		return nil
	default:
		return types.SinkUnavailableError(s.name, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}
