// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides the engine's tracing and trace-correlated
// logging helpers, grounded on services/trace/agent/mcts/crs/persistence.go's
// tracer-per-subsystem convention and services/code_buddy/telemetry's
// LoggerWithTrace. The core depends only on this small surface; wiring a
// concrete SDK (stdouttrace for local runs, OTLP for production) is left
// to cmd/.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a named tracer, mirroring the teacher's
// `var persistenceTracer = otel.Tracer("crs.persistence")` package-level
// pattern but exposed as a function so each package names its own tracer
// at construction time instead of via an import-time global.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// LoggerWithTrace returns logger enriched with trace_id/span_id fields
// pulled from ctx's active span, for log/trace correlation. Returns logger
// unchanged if ctx carries no valid span.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
