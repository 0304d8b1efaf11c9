// Command seqexport writes a topic's assembled sequence and integrity report
// to an xlsx workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/p-n-ai/pai-content/internal/content"
	"github.com/p-n-ai/pai-content/internal/export"
	"github.com/p-n-ai/pai-content/internal/platform/config"
	"github.com/p-n-ai/pai-content/internal/platform/database"
	"github.com/p-n-ai/pai-content/internal/platform/docstore"
	"github.com/p-n-ai/pai-content/internal/platform/logging"
)

func main() {
	topicID := flag.String("topic", "", "topic id to export")
	out := flag.String("out", "", "output file (default <topic>.xlsx)")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	if *topicID == "" {
		fmt.Fprintln(os.Stderr, "usage: seqexport -topic <id> [-out file.xlsx]")
		os.Exit(2)
	}
	if *out == "" {
		*out = *topicID + ".xlsx"
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Log))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, *topicID, *out); err != nil {
		slog.Error("export failed", "topic_id", *topicID, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, topicID, path string) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := content.NewService(content.ServiceConfig{Store: store})
	views, err := svc.BuildSequence(ctx, topicID)
	if err != nil {
		return err
	}
	report, err := svc.ValidateSequenceIntegrity(ctx, topicID)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteSequence(f, views, report); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	slog.Info("sequence exported", "topic_id", topicID, "items", len(views), "ok", report.OK, "path", path)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (content.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := database.New(ctx, cfg.Database.URL, 2, 1)
		if err != nil {
			return nil, nil, err
		}
		store, err := content.NewPostgresStore(db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil
	case config.StoreMongo:
		ds, err := docstore.New(ctx, cfg.Mongo.URL, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { ds.Close(context.Background()) }
		store, err := content.NewMongoStore(ds.Client, ds.DB)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil
	}
	return nil, nil, fmt.Errorf("store driver %q has no persisted data to export", cfg.Store.Driver)
}
