package integration_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/ThomasJones4/publishing-api/internal/config"
	"github.com/ThomasJones4/publishing-api/internal/database"
	"github.com/ThomasJones4/publishing-api/internal/downstream"
	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/services"
	"github.com/ThomasJones4/publishing-api/internal/types"
	"github.com/ThomasJones4/publishing-api/tests/helpers"
)

// TestWithMariaDB runs the full publish pipeline against a real MariaDB
// container: mutation transaction, synchronous worker processing, both
// in-memory sinks and the broker recorder.
func TestWithMariaDB(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	image := os.Getenv("DB_IMAGE")
	if image == "" {
		image = "mariadb:11"
	}

	dbPort, err := nat.NewPort("tcp", "3306")
	if err != nil {
		t.Fatalf("Failed to create DB port: %v", err)
	}

	mariadbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{string(dbPort)},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "rootpass",
				"MYSQL_DATABASE":      "testdb",
				"MYSQL_USER":          "testuser",
				"MYSQL_PASSWORD":      "testpass",
			},
			WaitingFor: wait.ForListeningPort(dbPort).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start MariaDB container: %v", err)
	}
	defer func() {
		if err := mariadbContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MariaDB container: %v", err)
		}
	}()

	host, err := mariadbContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := mariadbContainer.MappedPort(ctx, dbPort)
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	waitForDatabase(t, host, port.Port())

	cfg := &config.Config{
		DBType:            "mysql",
		DBHost:            host,
		DBPort:            port.Port(),
		DBDatabase:        "testdb",
		DBUser:            "testuser",
		DBPassword:        "testpass",
		DBConnectionLimit: 5,
	}

	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Run("PublishPipeline", func(t *testing.T) {
		testPublishPipeline(t, db)
	})
}

// waitForDatabase polls until the server accepts connections. The listening
// port opens before MariaDB finishes initializing its system tables.
func waitForDatabase(t *testing.T, host, port string) {
	t.Helper()
	dsn := fmt.Sprintf("testuser:testpass@tcp(%s:%s)/testdb", host, port)
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := sql.Open("mysql", dsn)
		if err == nil {
			if err := conn.Ping(); err == nil {
				conn.Close()
				return
			}
			conn.Close()
		}
		time.Sleep(time.Second)
	}
	t.Fatal("Database never became ready")
}

func testPublishPipeline(t *testing.T, db *gorm.DB) {
	draftStore := downstream.NewMemoryStore("draft-content-store")
	liveStore := downstream.NewMemoryStore("live-content-store")
	broker := downstream.NewMemoryBroker()
	dispatcher := &downstream.Dispatcher{
		DB:            db,
		DraftStore:    draftStore,
		LiveStore:     liveStore,
		Broker:        broker,
		Reporter:      &downstream.MemoryReporter{},
		FallbackOrder: []string{"parent"},
		Logger:        zerolog.Nop(),
	}
	dispatcher.Queue = downstream.NewDirectQueue(dispatcher, zerolog.Nop())

	service := &services.ContentService{
		DB:                 db,
		Downstream:         dispatcher,
		DraftStore:         draftStore,
		ProtectedLinkTypes: []string{"taxons"},
		ProtectedApps:      []string{"specialist-publisher"},
	}

	parent := helpers.NewContentID()
	child := helpers.NewContentID()

	// Publish the parent first so the child's fan-out has a live target.
	put := func(contentID, basePath string, links map[string][]string) {
		req := &services.PutContentRequest{
			ContentID:     contentID,
			BasePath:      basePath,
			SchemaName:    "news_article",
			DocumentType:  "press_release",
			UpdateType:    models.UpdateTypeMajor,
			Details:       json.RawMessage(`{"body":"text"}`),
			PublishingApp: "whitehall",
		}
		if len(links) > 0 {
			req.Links = map[string]types.FlexList[string]{}
			for linkType, targets := range links {
				req.Links[linkType] = types.FlexList[string](targets)
			}
		}
		if _, err := service.PutContent(req); err != nil {
			t.Fatalf("PutContent %s failed: %v", contentID, err)
		}
	}

	put(child, "/integration/child", map[string][]string{"parent": {parent}})
	if _, err := service.Publish(child, &services.PublishRequest{}); err != nil {
		t.Fatalf("Publish child failed: %v", err)
	}

	put(parent, "/integration/parent", nil)
	snapshot, err := service.Publish(parent, &services.PublishRequest{})
	if err != nil {
		t.Fatalf("Publish parent failed: %v", err)
	}
	if snapshot.State != models.StatePublished {
		t.Fatalf("Expected published state, got %s", snapshot.State)
	}

	// The parent reached the live store and the broker.
	parentVersion := liveStore.RecordedVersion(parent, "en")
	if parentVersion == 0 {
		t.Fatal("Expected the parent in the live store")
	}
	found := false
	for _, msg := range broker.Messages() {
		if msg.RoutingKey == "news_article.major" {
			found = true
		}
	}
	if !found {
		t.Error("Expected a news_article.major broadcast")
	}

	// Fan-out re-sent the child carrying the parent's trigger version.
	childPayload := liveStore.RecordedPayload(child, "en")
	if childPayload == nil {
		t.Fatal("Expected the child to be refreshed by dependency fan-out")
	}
	if childPayload.Version != parentVersion {
		t.Errorf("Expected the child to carry the trigger version %d, got %d",
			parentVersion, childPayload.Version)
	}
}
