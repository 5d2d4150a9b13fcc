// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
)

func TestLoggerWithTrace_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	got := LoggerWithTrace(context.Background(), base)
	got.Info("hello")

	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("expected no trace_id field without an active span, got: %s", buf.String())
	}
}

func TestLoggerWithTrace_NilLogger(t *testing.T) {
	// Must not panic, and must return some usable logger.
	got := LoggerWithTrace(context.Background(), nil)
	if got == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestLoggerWithTrace_WithSpan(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	tp := trace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	tracer := tp.Tracer("test")

	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()

	got := LoggerWithTrace(ctx, base)
	got.Info("hello")

	out := buf.String()
	if !strings.Contains(out, "trace_id") || !strings.Contains(out, "span_id") {
		t.Fatalf("expected trace_id and span_id fields with an active span, got: %s", out)
	}
}

func TestTracerReturnsNamedTracer(t *testing.T) {
	tr := Tracer("attribution.test")
	if tr == nil {
		t.Fatal("expected a non-nil tracer")
	}
}
