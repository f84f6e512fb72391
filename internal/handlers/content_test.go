package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/handlers"
	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/services"
	"github.com/ThomasJones4/publishing-api/tests/helpers"
)

// nullDispatcher drops every dispatch; the HTTP tests only exercise the
// request surface.
type nullDispatcher struct{}

func (nullDispatcher) SendDraft(uint64, string, string, uint64, bool, bool) {}

func (nullDispatcher) SendLive(uint64, string, string, uint64, bool, string, bool) {}

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := helpers.NewTestDB(t)

	service := &services.ContentService{
		DB:                 db,
		Downstream:         nullDispatcher{},
		ProtectedLinkTypes: []string{"taxons"},
		ProtectedApps:      []string{"specialist-publisher"},
	}

	app := fiber.New()
	contentHandler := &handlers.ContentHandler{Service: service}
	editionsHandler := &handlers.EditionsHandler{DB: db}

	v2 := app.Group("/v2")
	v2.Put("/content/:content_id", contentHandler.PutContent)
	v2.Post("/content/:content_id/publish", contentHandler.Publish)
	v2.Post("/content/:content_id/unpublish", contentHandler.Unpublish)
	v2.Patch("/links/:content_id", contentHandler.PatchLinks)
	v2.Get("/editions", editionsHandler.GetEditions)

	return app, db
}

func putContentBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"base_path":      "/government/news/thing",
		"schema_name":    "news_article",
		"document_type":  "press_release",
		"update_type":    "major",
		"publishing_app": "whitehall",
		"details":        map[string]string{"body": "text"},
	})
	return body
}

func doJSON(t *testing.T, app *fiber.App, method, url string, body []byte) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp.StatusCode, decoded
}

func TestPutContentEndpoint(t *testing.T) {
	app, _ := setupApp(t)
	contentID := helpers.NewContentID()

	status, body := doJSON(t, app, "PUT", "/v2/content/"+contentID, putContentBody())
	if status != 200 {
		t.Fatalf("Expected status 200, got %d: %v", status, body)
	}
	if body["state"] != "draft" {
		t.Errorf("Expected a draft snapshot, got %v", body["state"])
	}
	if body["content_id"] != contentID {
		t.Errorf("Expected content_id %s, got %v", contentID, body["content_id"])
	}
}

func TestPutContentEndpointValidation(t *testing.T) {
	app, _ := setupApp(t)

	status, body := doJSON(t, app, "PUT", "/v2/content/not-a-uuid", putContentBody())
	if status != 422 {
		t.Fatalf("Expected status 422, got %d", status)
	}
	errs, ok := body["errors"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected an errors envelope, got %v", body)
	}
	if errs["content_id"] == nil {
		t.Error("Expected a content_id error")
	}
}

func TestPutContentEndpointConflict(t *testing.T) {
	app, _ := setupApp(t)
	contentID := helpers.NewContentID()

	if status, _ := doJSON(t, app, "PUT", "/v2/content/"+contentID, putContentBody()); status != 200 {
		t.Fatalf("Seed request failed with status %d", status)
	}

	var withVersion map[string]interface{}
	_ = json.Unmarshal(putContentBody(), &withVersion)
	withVersion["previous_version"] = "99"
	body, _ := json.Marshal(withVersion)

	status, _ := doJSON(t, app, "PUT", "/v2/content/"+contentID, body)
	if status != 409 {
		t.Fatalf("Expected status 409 for a stale version, got %d", status)
	}
}

func TestPublishEndpointLifecycle(t *testing.T) {
	app, _ := setupApp(t)
	contentID := helpers.NewContentID()

	if status, _ := doJSON(t, app, "PUT", "/v2/content/"+contentID, putContentBody()); status != 200 {
		t.Fatal("Seed request failed")
	}

	status, body := doJSON(t, app, "POST", "/v2/content/"+contentID+"/publish", []byte(`{}`))
	if status != 200 {
		t.Fatalf("Expected status 200 on publish, got %d: %v", status, body)
	}
	if body["state"] != "published" {
		t.Errorf("Expected published state, got %v", body["state"])
	}

	status, body = doJSON(t, app, "POST", "/v2/content/"+contentID+"/unpublish", []byte(`{}`))
	if status != 200 {
		t.Fatalf("Expected status 200 on unpublish, got %d: %v", status, body)
	}
	if body["state"] != "unpublished" {
		t.Errorf("Expected unpublished state, got %v", body["state"])
	}
}

func TestPublishEndpointUnknownContent(t *testing.T) {
	app, _ := setupApp(t)

	status, _ := doJSON(t, app, "POST", "/v2/content/"+helpers.NewContentID()+"/publish", []byte(`{}`))
	if status != 404 {
		t.Fatalf("Expected status 404, got %d", status)
	}
}

func TestPatchLinksEndpoint(t *testing.T) {
	app, _ := setupApp(t)
	contentID := helpers.NewContentID()

	if status, _ := doJSON(t, app, "PUT", "/v2/content/"+contentID, putContentBody()); status != 200 {
		t.Fatal("Seed request failed")
	}

	target := helpers.NewContentID()
	payload := []byte(fmt.Sprintf(`{"links":{"organisations":["%s"]}}`, target))
	status, body := doJSON(t, app, "PATCH", "/v2/links/"+contentID, payload)
	if status != 200 {
		t.Fatalf("Expected status 200, got %d: %v", status, body)
	}

	links, ok := body["links"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected links in the snapshot, got %v", body)
	}
	if links["organisations"] == nil {
		t.Error("Expected the merged organisations group")
	}
}

func TestEditionsEndpointPagination(t *testing.T) {
	app, db := setupApp(t)

	for i := 0; i < 7; i++ {
		doc := helpers.CreateDocument(t, db, helpers.NewContentID(), "en")
		helpers.CreateEdition(t, db, doc, models.StatePublished, 1, fmt.Sprintf("/page-%d", i))
	}

	status, body := doJSON(t, app, "GET", "/v2/editions?per_page=5", nil)
	if status != 200 {
		t.Fatalf("Expected status 200, got %d", status)
	}
	results, ok := body["results"].([]interface{})
	if !ok {
		t.Fatalf("Expected a results array, got %v", body)
	}
	if len(results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(results))
	}

	links, ok := body["links"].([]interface{})
	if !ok {
		t.Fatalf("Expected pagination links, got %v", body)
	}
	var next string
	for _, raw := range links {
		link := raw.(map[string]interface{})
		if link["rel"] == "next" {
			next = link["href"].(string)
		}
	}
	if next == "" {
		t.Fatal("Expected a next cursor link")
	}

	status, body = doJSON(t, app, "GET", next, nil)
	if status != 200 {
		t.Fatalf("Expected status 200 following the cursor, got %d", status)
	}
	results, _ = body["results"].([]interface{})
	if len(results) != 2 {
		t.Fatalf("Expected the remaining 2 results, got %d", len(results))
	}
}

func TestEditionsEndpointRejectsBothCursors(t *testing.T) {
	app, _ := setupApp(t)

	status, _ := doJSON(t, app, "GET", "/v2/editions?before=1&after=2", nil)
	if status != 422 {
		t.Fatalf("Expected status 422, got %d", status)
	}
}
