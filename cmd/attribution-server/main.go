// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command attribution-server is a demo HTTP + websocket front end for the
// attribution engine core. It is explicitly not part of the core (spec.md
// §1: "no CLI, HTTP, or persistence format is part of the core spec") —
// the core is pkg/orchestrator and its collaborators; this binary is one
// way to drive them, grounded on services/orchestrator/main.go and
// services/orchestrator/routes/routes.go's gin+otelgin wiring.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/attributeai/attribution-engine/pkg/agent"
	"github.com/attributeai/attribution-engine/pkg/agent/openaiagent"
	"github.com/attributeai/attribution-engine/pkg/clock"
	"github.com/attributeai/attribution-engine/pkg/events"
	"github.com/attributeai/attribution-engine/pkg/evidence"
	"github.com/attributeai/attribution-engine/pkg/evolution"
	"github.com/attributeai/attribution-engine/pkg/idgen"
	"github.com/attributeai/attribution-engine/pkg/keywordtable"
	"github.com/attributeai/attribution-engine/pkg/logging"
	"github.com/attributeai/attribution-engine/pkg/orchestrator"
	"github.com/attributeai/attribution-engine/pkg/outcomestore"
	"github.com/attributeai/attribution-engine/pkg/scopedstore"
	"github.com/attributeai/attribution-engine/pkg/scopedstore/badgerstore"
)

func main() {
	port := flag.String("port", "8080", "HTTP listen port")
	badgerPath := flag.String("badger-path", "", "optional BadgerDB directory; defaults to an in-memory store")
	flag.Parse()

	logger := logging.New(logging.Config{Service: "attribution-server"})
	defer logger.Close()
	slogger := logger.Slog()

	store, closeStore := buildStore(*badgerPath, slogger)
	defer closeStore()

	keywords, err := keywordtable.LoadDefault()
	if err != nil {
		log.Fatalf("keywordtable.LoadDefault: %v", err)
	}
	classifier, err := outcomestore.NewDefaultDecisionClassifier()
	if err != nil {
		log.Fatalf("outcomestore.NewDefaultDecisionClassifier: %v", err)
	}

	bus := events.NewBus(slogger)
	hub := events.NewHub(bus, slogger)

	orch := orchestrator.New(store, buildAgent(slogger), keywords, classifier, clock.System{}, idgen.UUID{}, nil, slogger)
	evo := evolution.New(store, clock.System{}, idgen.UUID{}, bus, nil, slogger)

	router := gin.Default()
	router.Use(otelgin.Middleware("attribution-server"))
	SetupRoutes(router, store, orch, evo, hub)

	logger.Info("attribution-server starting", "port", *port)
	if err := router.Run(":" + *port); err != nil {
		log.Fatalf("router.Run: %v", err)
	}
}

// buildStore wires a persistent BadgerDB-backed store when badgerPath is
// set, otherwise an in-memory store — the same "optional durable
// implementation, wired at the composition root" boundary
// pkg/scopedstore/badgerstore documents.
func buildStore(badgerPath string, logger *slog.Logger) (scopedstore.Store, func()) {
	if badgerPath == "" {
		return scopedstore.NewInMemoryStore(), func() {}
	}

	cfg := badgerstore.DefaultConfig()
	cfg.Path = badgerPath
	db, err := badgerstore.OpenDB(cfg)
	if err != nil {
		log.Fatalf("badgerstore.OpenDB: %v", err)
	}
	logger.Info("using BadgerDB-backed store", "path", badgerPath)
	return badgerstore.New(db), func() { _ = db.Close() }
}

// buildAgent wires the OpenAI-backed Attribution Agent when
// OPENAI_API_KEY is set, falling back to a stub that declines every
// Finding so the demo server is runnable without external credentials.
func buildAgent(logger *slog.Logger) agent.AttributionAgent {
	if os.Getenv("OPENAI_API_KEY") == "" {
		logger.Warn("OPENAI_API_KEY not set; using a stub Attribution Agent that declines every Finding")
		return agent.Func(func(_ context.Context, req agent.Request) (evidence.EvidenceBundle, error) {
			return evidence.EvidenceBundle{}, errors.New("no Attribution Agent configured: set OPENAI_API_KEY")
		})
	}
	client, err := openaiagent.NewClient()
	if err != nil {
		log.Fatalf("openaiagent.NewClient: %v", err)
	}
	return client
}
