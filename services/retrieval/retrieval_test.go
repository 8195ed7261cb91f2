// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Test fakes
// =============================================================================

type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, texts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

// fakeWeaviate serves the REST and GraphQL endpoints the client touches.
type fakeWeaviate struct {
	mu        sync.Mutex
	graphql   string
	batched   []map[string]any
	lastQuery string
}

func (f *fakeWeaviate) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.URL.Path == "/v1/graphql":
			f.mu.Lock()
			f.lastQuery = string(body)
			resp := f.graphql
			f.mu.Unlock()
			_, _ = w.Write([]byte(resp))
		case r.URL.Path == "/v1/batch/objects":
			var req struct {
				Objects []map[string]any `json:"objects"`
			}
			require.NoError(t, json.Unmarshal(body, &req))
			f.mu.Lock()
			f.batched = append(f.batched, req.Objects...)
			f.mu.Unlock()
			out := make([]map[string]any, len(req.Objects))
			for i, o := range req.Objects {
				out[i] = map[string]any{
					"id":     o["id"],
					"class":  o["class"],
					"result": map[string]any{"status": "SUCCESS"},
				}
			}
			_ = json.NewEncoder(w).Encode(out)
		case r.URL.Path == "/v1/meta":
			_, _ = w.Write([]byte(`{"version":"1.35.2"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	})
}

func distance(d float64) map[string]any {
	return map[string]any{"distance": d}
}

// =============================================================================
// Static retriever
// =============================================================================

func TestStaticRetriever_RanksByOverlap(t *testing.T) {
	r := NewStaticRetriever([]string{
		"generators and turbines",
		"the nose point of a pv curve",
		"pv curve basics",
	})

	got, err := r.Retrieve(context.Background(), "What is the nose point on a PV curve?")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "the nose point of a pv curve", got[0])
	assert.Equal(t, "pv curve basics", got[1])
}

func TestStaticRetriever_NoOverlapReturnsNothing(t *testing.T) {
	got, err := NewStaticRetriever(nil).Retrieve(context.Background(), "banana smoothie")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = NewStaticRetriever(nil).Retrieve(context.Background(), "what is the")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStaticRetriever_DefaultCorpusAndLimit(t *testing.T) {
	r := NewStaticRetriever(nil)
	got, err := r.Retrieve(context.Background(), "voltage stability load margin power factor")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStaticRetriever_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStaticRetriever(nil).Retrieve(ctx, "nose point")
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Weaviate parsing
// =============================================================================

func TestParsePassages_SortsDedupesAndCuts(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]any{
				"PowerSystemDoc": []any{
					map[string]any{"content": "far", "_additional": distance(0.9)},
					map[string]any{"content": "near", "_additional": distance(0.1)},
					map[string]any{"content": "  ", "_additional": distance(0.05)},
					map[string]any{"content": "near", "_additional": distance(0.2)},
					map[string]any{"content": "no distance", "_additional": map[string]any{}},
					map[string]any{"content": "middle", "_additional": distance(0.5)},
				},
			},
		},
	}

	got, err := parsePassages(resp, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "middle", "far"}, got)

	got, err = parsePassages(resp, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "middle", "far", "no distance"}, got)
}

func TestParsePassages_GraphQLErrors(t *testing.T) {
	_, err := parsePassages(&models.GraphQLResponse{
		Errors: []*models.GraphQLError{{Message: "class not found"}},
	}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class not found")

	_, err = parsePassages(nil, 10)
	assert.Error(t, err)
}

func TestWeaviateRetriever_Retrieve(t *testing.T) {
	fake := &fakeWeaviate{graphql: `{"data":{"Get":{"PowerSystemDoc":[
		{"content":"second","source":"a_part_2","_additional":{"distance":0.4}},
		{"content":"first","source":"a_part_1","_additional":{"distance":0.2}}
	]}}}`}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, err := NewWeaviateClient(server.URL)
	require.NoError(t, err)
	emb := &fakeEmbedder{}
	r := NewWeaviateRetriever(client, emb)
	r.TopK = 1

	got, err := r.Retrieve(context.Background(), "nose point")
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, got)
	assert.Equal(t, [][]string{{"nose point"}}, emb.calls)
	assert.Contains(t, fake.lastQuery, "PowerSystemDoc")
	assert.Contains(t, fake.lastQuery, "limit: 40")
}

func TestWeaviateRetriever_BlankQuerySkipsSearch(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewWeaviateRetriever(nil, emb)
	got, err := r.Retrieve(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, emb.calls)
}

func TestNewWeaviateClient_RejectsBadURL(t *testing.T) {
	_, err := NewWeaviateClient("weaviate:8080")
	assert.Error(t, err)
}

// =============================================================================
// Ingestion
// =============================================================================

func TestChunkID_Deterministic(t *testing.T) {
	assert.Equal(t, ChunkID("same text"), ChunkID("same text"))
	assert.NotEqual(t, ChunkID("same text"), ChunkID("other text"))
	assert.Len(t, string(ChunkID("x")), 36)
}

func TestBuildObjects(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	objs := buildObjects("guide.md", []string{"one", "two"}, [][]float32{{1}, {2}}, at)

	require.Len(t, objs, 2)
	assert.Equal(t, DocumentClass, objs[0].Class)
	assert.Equal(t, ChunkID("two"), objs[1].ID)
	props := objs[1].Properties.(map[string]interface{})
	assert.Equal(t, "guide.md_part_2", props["source"])
	assert.Equal(t, "guide.md", props["parent_source"])
	assert.Equal(t, at.UnixMilli(), props["ingested_at"])
}

func TestSplitterFor_ChunksLongText(t *testing.T) {
	text := strings.Repeat("voltage stability margin ", 200)
	chunks, err := splitterFor("notes.txt").SplitText(text)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), ChunkSize)
	}
}

func TestIngester_IngestFiles(t *testing.T) {
	fake := &fakeWeaviate{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client, err := NewWeaviateClient(server.URL)
	require.NoError(t, err)

	dir := t.TempDir()
	good := filepath.Join(dir, "primer.md")
	require.NoError(t, os.WriteFile(good, []byte("# PV curves\n\nThe nose point is the loadability limit."), 0o644))
	missing := filepath.Join(dir, "missing.md")

	in := NewIngester(client, &fakeEmbedder{})
	report, err := in.IngestFiles(context.Background(), []string{good, missing})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, map[string]int{good: 1}, report.Files)
	assert.Equal(t, []string{missing}, report.Failed)
	require.Len(t, fake.batched, 1)
	assert.Equal(t, DocumentClass, fake.batched[0]["class"])
}

func TestIngester_AllFilesFail(t *testing.T) {
	in := NewIngester(nil, &fakeEmbedder{})
	_, err := in.IngestFiles(context.Background(), []string{"/nonexistent/a.md"})
	assert.Error(t, err)
}

// =============================================================================
// HTTP embedder
// =============================================================================

func TestHTTPEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batch_embed", r.URL.Path)
		var req BatchEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := BatchEmbeddingResponse{Model: "test", Dim: 2}
		for range req.Texts {
			resp.Vectors = append(resp.Vectors, []float32{0.1, 0.2})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	vecs, err := NewHTTPEmbedder(server.URL+"/embed").Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestHTTPEmbedder_ErrorsOnMismatchAndStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "fail") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(BatchEmbeddingResponse{Vectors: [][]float32{{1}}})
	}))
	defer server.Close()

	_, err := NewHTTPEmbedder(server.URL).Embed(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "1 vectors for 2 texts")

	e := NewHTTPEmbedder(server.URL)
	e.url += "?fail=1"
	_, err = e.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "status 502")
}
