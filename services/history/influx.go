// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/pvagent/services/agent"
)

// ResultSink receives each successful simulation in addition to the
// archive.
type ResultSink interface {
	WriteResult(ctx context.Context, sessionID string, entry agent.CachedResult) error
	Close()
}

// InfluxConfig locates the InfluxDB bucket for curve points.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// InfluxSink writes every curve point of a result to the pv_curve
// measurement, tagged by session, grid, bus, and load type.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink creates a sink. Missing org and bucket default to
// "pvagent" and "pv-curves".
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.Org == "" {
		cfg.Org = "pvagent"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "pv-curves"
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{client: client, writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}
}

// WriteResult implements ResultSink.
func (s *InfluxSink) WriteResult(ctx context.Context, sessionID string, entry agent.CachedResult) error {
	points := curvePoints(sessionID, entry)
	if len(points) == 0 {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d curve points to influxdb: %w", len(points), err)
	}
	return nil
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// curvePoints spaces the points of one run a millisecond apart from the
// result timestamp so they keep their order in the series.
func curvePoints(sessionID string, entry agent.CachedResult) []*write.Point {
	r := entry.Result
	if r == nil {
		return nil
	}
	loadType := "inductive"
	if r.CapacitiveLoad {
		loadType = "capacitive"
	}
	tags := map[string]string{
		"session_id": sessionID,
		"grid":       r.GridSystem,
		"bus":        strconv.Itoa(r.TargetBus),
		"load_type":  loadType,
	}
	points := make([]*write.Point, 0, len(r.CurvePoints))
	for _, cp := range r.CurvePoints {
		points = append(points, influxdb2.NewPoint(
			"pv_curve",
			tags,
			map[string]interface{}{
				"step":              cp.Step,
				"load_mw":           cp.LoadMW,
				"voltage_pu":        cp.VoltagePU,
				"load_scale_factor": cp.LoadScaleFactor,
				"power_factor":      r.PowerFactor,
				"is_nose_point":     cp.IsNosePoint,
			},
			entry.Timestamp.Add(time.Duration(cp.Step)*time.Millisecond),
		))
	}
	return points
}
