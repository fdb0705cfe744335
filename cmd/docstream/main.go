// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/docstream"
	"github.com/poiesic/docstream/config"
	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/dispatch"
	"github.com/poiesic/docstream/extract"
	"github.com/poiesic/docstream/search"
	"github.com/poiesic/docstream/server"
)

func main() {
	app := &cli.App{
		Name:  "docstream",
		Usage: "Document ingestion and retrieval pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "local-extract",
				Usage: "Read file:// uploads directly instead of calling the extraction service",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "Run the HTTP query service and event intake",
				Action:    serveCommand,
				ArgsUsage: " ",
			},
			{
				Name:      "ingest",
				Usage:     "Ingest a single local file",
				Action:    ingestCommand,
				ArgsUsage: "<file>",
			},
			{
				Name:      "watch",
				Usage:     "Watch a directory and ingest new files",
				Action:    watchCommand,
				ArgsUsage: "<dir>",
			},
			{
				Name:      "search",
				Usage:     "Query ingested documents",
				Action:    searchCommand,
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Query mode (semantic, keyword, hybrid)",
						Value: "semantic",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results to return",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Backfill embeddings for chunks that missed them",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of chunks to process (0 = all)",
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a document and its index entries",
				Action:    deleteCommand,
				ArgsUsage: "<document-id>",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openSystem loads configuration once and builds the system handle shared by
// all commands.
func openSystem(c *cli.Context) (*docstream.System, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	opts := []docstream.SystemOption{docstream.WithSystemLogger(slog.Default())}
	if c.Bool("local-extract") {
		opts = append(opts, docstream.WithExtractProvider(localProvider{}))
	}

	sys, err := docstream.Open(cfg, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open system: %w", err)
	}
	return sys, cfg, nil
}

func serveCommand(c *cli.Context) error {
	sys, cfg, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	pipeline, err := sys.NewIngestionPipeline()
	if err != nil {
		return err
	}
	searcher, err := sys.NewSearcher()
	if err != nil {
		return err
	}
	dispatcher, err := sys.NewDispatcher(pipeline)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := dispatch.NewChannelSource(64)
	go func() {
		if err := dispatcher.Run(ctx, events); err != nil && ctx.Err() == nil {
			slog.Error("event intake stopped", "err", err)
		}
	}()

	if cfg.WatchDir != "" {
		watcher, err := dispatch.NewWatchSource(cfg.WatchDir, slog.Default())
		if err != nil {
			return err
		}
		go func() {
			if err := dispatcher.Run(ctx, watcher); err != nil && ctx.Err() == nil {
				slog.Error("directory watcher stopped", "err", err)
			}
		}()
		slog.Info("watching directory", "dir", cfg.WatchDir)
	}

	handler := server.NewHandler(searcher, sys.DocumentStore(), sys.VectorIndex(), events)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.SetupRouter(handler),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func ingestCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("file path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	sys, _, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	pipeline, err := sys.NewIngestionPipeline()
	if err != nil {
		return err
	}

	event := core.UploadEvent{
		Key:     path,
		Type:    core.EventTypeCreated,
		Version: strconv.FormatInt(info.ModTime().UnixNano(), 10),
	}

	report, err := pipeline.Ingest(c.Context, event)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if report.Duplicate {
		fmt.Printf("already ingested as document %d\n", report.DocumentID)
		return nil
	}
	fmt.Printf("document %d: %d chunks, %d indexed, %d pending\n",
		report.DocumentID, report.Chunks, report.Indexed, report.Pending)
	return nil
}

func watchCommand(c *cli.Context) error {
	dir := c.Args().First()
	if dir == "" {
		return fmt.Errorf("directory is required")
	}

	sys, _, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	pipeline, err := sys.NewIngestionPipeline()
	if err != nil {
		return err
	}
	dispatcher, err := sys.NewDispatcher(pipeline)
	if err != nil {
		return err
	}
	watcher, err := dispatch.NewWatchSource(dir, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("watching directory", "dir", dir)
	if err := dispatcher.Run(ctx, watcher); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}

	mode, err := search.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	sys, _, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	searcher, err := sys.NewSearcher()
	if err != nil {
		return err
	}

	results, err := searcher.Query(c.Context, query, mode, c.Int("top-k"))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}

	for i, result := range results {
		fmt.Printf("%d. [%.3f] doc %d chunk %d\n   %s\n",
			i+1, result.Score, result.DocumentId, result.ChunkIndex, snippet(result.Text))
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	sys, _, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	pipeline, err := sys.NewIngestionPipeline()
	if err != nil {
		return err
	}

	report, err := pipeline.Reindex(c.Context, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	fmt.Printf("scanned %d pending chunks: %d indexed, %d still pending\n",
		report.Scanned, report.Indexed, report.StillPending)
	return nil
}

func deleteCommand(c *cli.Context) error {
	raw := c.Args().First()
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q", raw)
	}

	sys, _, err := openSystem(c)
	if err != nil {
		return err
	}
	defer sys.Close()

	if err := sys.DocumentStore().DeleteDocument(c.Context, core.ID(id)); err != nil {
		return err
	}
	if err := sys.VectorIndex().DeleteByDocument(c.Context, core.ID(id)); err != nil {
		return fmt.Errorf("index cleanup failed: %w", err)
	}
	fmt.Printf("deleted document %d\n", id)
	return nil
}

// localProvider reads file:// uploads directly. It serves local runs with
// plain-text files where no extraction service is available.
type localProvider struct{}

func (localProvider) Submit(_ context.Context, sourceURI string) (string, error) {
	path := strings.TrimPrefix(sourceURI, "file://")
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

func (localProvider) Poll(_ context.Context, providerJobID string) (extract.Status, error) {
	data, err := os.ReadFile(providerJobID)
	if err != nil {
		return extract.Status{State: extract.StateFailed, Reason: err.Error()}, nil
	}
	return extract.Status{State: extract.StateSucceeded, Text: string(data)}, nil
}

func snippet(text string) string {
	const max = 120
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
