// main.go
//
// Bulk resynchronization CLI. Walks every live edition with the keyset
// paginator and replays each one to the live pipeline at the current maximum
// event version, so both stores and every subscriber converge on the state
// the database holds right now.

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ThomasJones4/publishing-api/internal/config"
	"github.com/ThomasJones4/publishing-api/internal/database"
	"github.com/ThomasJones4/publishing-api/internal/downstream"
	"github.com/ThomasJones4/publishing-api/internal/models"
	"github.com/ThomasJones4/publishing-api/internal/queries"
)

const pageSize = 500

func main() {
	dryRun := flag.Bool("dry-run", false, "list editions without sending anything downstream")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	version, err := models.LatestEventID(db)
	if err != nil {
		log.Fatalf("Failed to read latest event id: %v", err)
	}

	zl := zerolog.New(os.Stderr).With().Timestamp().Str("component", "requeue").Logger()

	liveStore := downstream.ContentStore(downstream.NewMemoryStore("live-content-store"))
	if cfg.LiveStoreURL != "" {
		liveStore = downstream.NewHTTPStore("live-content-store", cfg.LiveStoreURL, time.Duration(cfg.StoreTimeoutSec)*time.Second)
	}

	var broker downstream.Broker = downstream.NewMemoryBroker()
	if cfg.AMQPURL != "" {
		broker, err = downstream.NewAMQPBroker(cfg.AMQPURL, cfg.BrokerExchange)
		if err != nil {
			log.Fatalf("Failed to connect to broker: %v", err)
		}
	}
	defer broker.Close()

	dispatcher := &downstream.Dispatcher{
		DB:            db,
		DraftStore:    downstream.NewMemoryStore("draft-content-store"),
		LiveStore:     liveStore,
		Broker:        broker,
		Reporter:      downstream.LogReporter{Logger: zl},
		FallbackOrder: cfg.DependencyFallbackOrder,
		Logger:        zl,
	}
	// A one-shot tool wants deterministic, sequential delivery.
	dispatcher.Queue = downstream.NewDirectQueue(dispatcher, zl)

	client := queries.EditionsClient{
		DB:     db,
		States: []string{models.StatePublished, models.StateUnpublished},
	}

	total := 0
	var after []string
	for {
		page, err := queries.NewKeysetPagination(
			client, queries.EditionsKey, queries.Ascending, pageSize, nil, after)
		if err != nil {
			log.Fatalf("Failed to configure pagination: %v", err)
		}
		rows, err := page.Call()
		if err != nil {
			log.Fatalf("Failed to page editions: %v", err)
		}

		for _, row := range rows {
			contentID := asString(row["content_id"])
			locale := asString(row["locale"])
			if *dryRun {
				fmt.Printf("%s %s\n", contentID, locale)
				continue
			}
			dispatcher.Queue.Enqueue(downstream.Job{
				EditionID:           asUint64(row["id"]),
				ContentID:           contentID,
				Locale:              locale,
				Version:             version,
				Sink:                downstream.SinkLive,
				UpdateTypeOverride:  models.UpdateTypeBulkReindex,
				ResolveDependencies: false,
				AlertOnInvalidState: false,
			}, downstream.ClassLow)
		}
		total += len(rows)

		if len(rows) < pageSize {
			break
		}
		after = page.NextAfterKey()
	}

	log.Printf("Requeued %d live editions at version %d", total, version)
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asUint64(v interface{}) uint64 {
	switch t := v.(type) {
	case uint64:
		return t
	case int64:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case int:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case float64:
		if t < 0 {
			return 0
		}
		return uint64(t)
	default:
		return 0
	}
}
