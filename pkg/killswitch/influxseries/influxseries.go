// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package influxseries is an optional InfluxDB-backed time-series store
// for AttributionOutcome rows, feeding the kill-switch controller's
// rolling 30-day window. It is not part of the core: pkg/killswitch
// consumes a WindowCounts and has no dependency on this package; wiring
// it in is the orchestrator's choice (mirrors
// services/orchestrator/handlers/timeseries.go's fetchHistoryForForecast
// client-per-call usage of the influxdb-client-go/v2 QueryAPI/WriteAPI).
package influxseries

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/attributeai/attribution-engine/pkg/killswitch"
)

const measurement = "attribution_outcome"

// Config holds connection settings, mirroring the env-var driven config
// fetchHistoryForForecast reads (URL/token/org/bucket).
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Store records AttributionOutcome events as InfluxDB points and derives
// killswitch.WindowCounts for a rolling window by Flux query.
type Store struct {
	client influxdb2.Client
	cfg    Config
}

// NewStore opens an InfluxDB client. The client is lightweight and kept
// for the Store's lifetime (unlike timeseries.go's per-call client,
// which is justified there by one-shot HTTP handler usage; here the
// store is long-lived, so a long-lived client avoids reconnecting on
// every outcome).
func NewStore(cfg Config) (*Store, error) {
	if cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influxseries: token, org, and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Store{client: client, cfg: cfg}, nil
}

// Close releases the underlying InfluxDB client.
func (s *Store) Close() {
	s.client.Close()
}

// RecordOutcome writes one AttributionOutcome as a point. quoteType is
// "verbatim"/"paraphrase"/"inferred" (drives inferredRatio/precision);
// recurred is nil until a later PR resolves whether the injected warning
// was adhered to (drives observedImprovementRate once known).
func (s *Store) RecordOutcome(ctx context.Context, workspace, project, quoteType string, recurred *bool, at time.Time) error {
	writeAPI := s.client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket)

	tags := map[string]string{
		"workspace":  workspace,
		"project":    project,
		"quote_type": quoteType,
	}
	fields := map[string]interface{}{
		"count": 1,
	}
	if recurred != nil {
		if *recurred {
			fields["recurred"] = 1
		} else {
			fields["recurred"] = 0
		}
	}

	p := write.NewPoint(measurement, tags, fields, at)
	return writeAPI.WritePoint(ctx, p)
}

// WindowCounts computes killswitch.WindowCounts for the 30-day rolling
// window ending at now, scoped to (workspace, project).
func (s *Store) WindowCounts(ctx context.Context, workspace, project string, now time.Time) (killswitch.WindowCounts, error) {
	queryAPI := s.client.QueryAPI(s.cfg.Org)

	query := fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == %q)
		  |> filter(fn: (r) => r.workspace == %q and r.project == %q)
	`,
		s.cfg.Bucket,
		now.Add(-killswitch.RollingWindow).Format(time.RFC3339),
		now.Format(time.RFC3339),
		measurement,
		workspace,
		project,
	)

	result, err := queryAPI.Query(ctx, query)
	if err != nil {
		return killswitch.WindowCounts{}, fmt.Errorf("influxseries: window query: %w", err)
	}

	var counts killswitch.WindowCounts
	for result.Next() {
		rec := result.Record()
		quoteType, _ := rec.ValueByKey("quote_type").(string)

		switch rec.Field() {
		case "count":
			counts.Total++
			switch quoteType {
			case "verbatim":
				counts.Verbatim++
			case "inferred":
				counts.Inferred++
			}
		case "recurred":
			if v, ok := rec.Value().(int64); ok {
				if v == 0 {
					counts.InjectionsWithoutRecurrence++
				} else {
					counts.InjectionsWithRecurrence++
				}
			}
		}
	}
	if result.Err() != nil {
		return killswitch.WindowCounts{}, fmt.Errorf("influxseries: window query result: %w", result.Err())
	}

	return counts, nil
}
