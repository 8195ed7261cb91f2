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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pvagent.retrieval")

const (
	// DefaultCandidates is how many nearest chunks are fetched per query.
	DefaultCandidates = 40

	// DefaultTopK is how many of the candidates are returned.
	DefaultTopK = 10
)

// WeaviateRetriever finds reference passages by vector similarity.
//
// # Description
//
// The query is embedded with the same Embedder used at ingestion, then a
// nearVector search over DocumentClass fetches Candidates chunks. The
// candidates are re-ranked by distance and the closest TopK returned.
// Empty and duplicate chunks are dropped.
//
// # Thread Safety
//
// Safe for concurrent use.
type WeaviateRetriever struct {
	client     *weaviate.Client
	embedder   Embedder
	Candidates int
	TopK       int
}

// NewWeaviateRetriever creates a retriever with the default limits.
func NewWeaviateRetriever(client *weaviate.Client, embedder Embedder) *WeaviateRetriever {
	return &WeaviateRetriever{
		client:     client,
		embedder:   embedder,
		Candidates: DefaultCandidates,
		TopK:       DefaultTopK,
	}
}

// documentQueryResponse mirrors the GraphQL Get payload for DocumentClass.
type documentQueryResponse struct {
	Get struct {
		Docs []documentResult `json:"PowerSystemDoc"`
	} `json:"Get"`
}

type documentResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Additional struct {
		Distance *float64 `json:"distance"`
	} `json:"_additional"`
}

// Retrieve implements agent.Retriever.
func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "retrieval.WeaviateRetriever.Retrieve")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	nearVector := r.client.GraphQL().NearVectorArgBuilder().
		WithVector(vectors[0])

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(DocumentClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(r.candidates()).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to search reference documents", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	passages, err := parsePassages(result, r.topK())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.passages", len(passages)))
	slog.Debug("Retrieved reference passages", "count", len(passages))
	return passages, nil
}

func (r *WeaviateRetriever) candidates() int {
	if r.Candidates <= 0 {
		return DefaultCandidates
	}
	return r.Candidates
}

func (r *WeaviateRetriever) topK() int {
	if r.TopK <= 0 {
		return DefaultTopK
	}
	return r.TopK
}

// parsePassages extracts chunk texts from a Get response, sorted by
// ascending distance and cut to topK. Chunks without a distance sort last.
func parsePassages(resp *models.GraphQLResponse, topK int) ([]string, error) {
	if resp == nil {
		return nil, errors.New("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("weaviate query errors: %s", strings.Join(msgs, "; "))
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var parsed documentQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	docs := parsed.Get.Docs
	sort.SliceStable(docs, func(i, j int) bool {
		di, dj := docs[i].Additional.Distance, docs[j].Additional.Distance
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return *di < *dj
		}
	})

	seen := make(map[string]struct{}, len(docs))
	passages := make([]string, 0, topK)
	for _, d := range docs {
		text := strings.TrimSpace(d.Content)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		passages = append(passages, text)
		if len(passages) == topK {
			break
		}
	}
	return passages, nil
}
