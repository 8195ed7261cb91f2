// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"golang.org/x/sync/errgroup"
)

const (
	ChunkSize    = 1000
	ChunkOverlap = ChunkSize / 10

	// DefaultIngestConcurrency bounds how many files are processed at once.
	DefaultIngestConcurrency = 4
)

var (
	defaultSeparators  = []string{"\n\n", "\n", " ", ""}
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ",
		"\n\n", "\n", " ", "",
	}
)

// splitterFor picks separators by file extension so markdown headings
// start new chunks.
func splitterFor(source string) textsplitter.TextSplitter {
	separators := defaultSeparators
	switch strings.ToLower(filepath.Ext(source)) {
	case ".md", ".markdown":
		separators = markdownSeparators
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ChunkSize),
		textsplitter.WithChunkOverlap(ChunkOverlap),
		textsplitter.WithSeparators(separators),
	)
}

// ChunkID derives a deterministic object ID from chunk text, so that
// re-ingesting the same material overwrites rather than duplicates.
func ChunkID(chunk string) strfmt.UUID {
	hash := sha256.Sum256([]byte(chunk))
	id, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(id.String())
}

// IngestReport summarizes an IngestFiles call.
type IngestReport struct {
	Files  map[string]int `json:"files"`
	Chunks int            `json:"chunks"`
	Failed []string       `json:"failed,omitempty"`
}

// Ingester splits, embeds, and stores reference documents.
type Ingester struct {
	client      *weaviate.Client
	embedder    Embedder
	Concurrency int

	now func() time.Time
}

// NewIngester creates an ingester writing to client.
func NewIngester(client *weaviate.Client, embedder Embedder) *Ingester {
	return &Ingester{
		client:      client,
		embedder:    embedder,
		Concurrency: DefaultIngestConcurrency,
		now:         time.Now,
	}
}

// IngestFiles ingests every path concurrently.
//
// # Description
//
// Each file is read, chunked, embedded, and batch-written on its own.
// A failing file is logged and listed in the report; the others still
// complete. The returned error is non-nil only when every file failed or
// ctx was cancelled.
func (in *Ingester) IngestFiles(ctx context.Context, paths []string) (IngestReport, error) {
	report := IngestReport{Files: make(map[string]int, len(paths))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	limit := in.Concurrency
	if limit <= 0 {
		limit = DefaultIngestConcurrency
	}
	g.SetLimit(limit)

	for _, path := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err == nil {
				var n int
				n, err = in.IngestText(gctx, filepath.Base(path), string(data))
				if err == nil {
					mu.Lock()
					report.Files[path] = n
					report.Chunks += n
					mu.Unlock()
					return nil
				}
			}
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Error("Failed to ingest file", "path", path, "error", err)
			mu.Lock()
			report.Failed = append(report.Failed, path)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("ingestion interrupted: %w", err)
	}
	if len(paths) > 0 && len(report.Failed) == len(paths) {
		return report, fmt.Errorf("all %d files failed to ingest", len(paths))
	}
	return report, nil
}

// IngestText chunks content and stores it under source. It returns the
// number of chunks Weaviate accepted.
func (in *Ingester) IngestText(ctx context.Context, source, content string) (int, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Ingester.IngestText")
	defer span.End()

	chunks, err := splitterFor(source).SplitText(content)
	if err != nil {
		return 0, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", source)
		return 0, nil
	}
	slog.Info("Split document into chunks", "source", source, "chunk_count", len(chunks))

	vectors, err := in.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding service returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	now := time.Now
	if in.now != nil {
		now = in.now
	}
	objects := buildObjects(source, chunks, vectors, now())

	resp, err := in.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		slog.Error("Failed to perform batch import to Weaviate", "error", err)
		return 0, fmt.Errorf("failed to save objects to Weaviate: %w", err)
	}

	created := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			created++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item", "source", source, "error", errItem.Message)
			}
		}
	}
	if created < len(objects) {
		slog.Warn("Errors encountered during Weaviate batch import", "source", source,
			"successful_chunks", created, "total_chunks", len(objects))
	}
	slog.Info("Successfully processed document", "source", source, "chunks_processed", created)
	return created, nil
}

// buildObjects pairs chunks with their vectors as DocumentClass objects.
func buildObjects(source string, chunks []string, vectors [][]float32, at time.Time) []*models.Object {
	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		objects[i] = &models.Object{
			Class:  DocumentClass,
			ID:     ChunkID(chunk),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"content":       chunk,
				"source":        fmt.Sprintf("%s_part_%d", source, i+1),
				"parent_source": source,
				"ingested_at":   at.UnixMilli(),
			},
		}
	}
	return objects
}
