// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/pvagent/services/orchestrator/datatypes"
)

// DocumentIngester chunks, embeds and stores one document.
// *retrieval.Ingester satisfies it.
type DocumentIngester interface {
	IngestText(ctx context.Context, source, content string) (int, error)
}

// CreateDocument serves POST /v1/documents.
func CreateDocument(ingester DocumentIngester) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "CreateDocument")
		defer span.End()

		var req datatypes.IngestDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation failed",
				"details": datatypes.ValidationDetails(err),
			})
			return
		}
		span.SetAttributes(attribute.String("document.source", req.Source))

		chunks, err := ingester.IngestText(ctx, req.Source, req.Content)
		if err != nil {
			span.RecordError(err)
			slog.Error("Document ingestion failed", "source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest document"})
			return
		}
		slog.Info("Document ingested", "source", req.Source, "chunks", chunks)
		c.JSON(http.StatusCreated, gin.H{"source": req.Source, "chunks_processed": chunks})
	}
}
