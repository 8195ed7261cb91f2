// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pvagent/services/retrieval"
)

// fileIngester loads reference documents into the vector store.
type fileIngester interface {
	IngestFiles(ctx context.Context, paths []string) (retrieval.IngestReport, error)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if cfg.Retrieval.WeaviateURL == "" {
		return errors.New("retrieval.weaviate_url is not configured")
	}
	client, embedder, err := connectWeaviate(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("connect to Weaviate: %w", err)
	}
	return ingest(cmd.Context(), retrieval.NewIngester(client, embedder), args, cmd.OutOrStdout())
}

func ingest(ctx context.Context, in fileIngester, paths []string, out io.Writer) error {
	report, err := in.IngestFiles(ctx, paths)
	p := newPrinter(out)

	files := make([]string, 0, len(report.Files))
	for f := range report.Files {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		p.Success(fmt.Sprintf("%s: %d chunks", f, report.Files[f]))
	}
	for _, f := range report.Failed {
		p.Error(f + ": failed")
	}
	if err != nil {
		return err
	}
	p.Muted(fmt.Sprintf("%d chunks from %d files", report.Chunks, len(report.Files)))
	return nil
}
