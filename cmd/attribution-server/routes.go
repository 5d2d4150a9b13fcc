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
	"github.com/gin-gonic/gin"

	"github.com/attributeai/attribution-engine/pkg/events"
	"github.com/attributeai/attribution-engine/pkg/evolution"
	"github.com/attributeai/attribution-engine/pkg/orchestrator"
	"github.com/attributeai/attribution-engine/pkg/scopedstore"
)

// SetupRoutes mirrors services/orchestrator/routes/routes.go's shape: a
// health check outside any group, and everything else under /v1.
func SetupRoutes(router *gin.Engine, store scopedstore.Store, orch *orchestrator.Orchestrator, evo *evolution.Processor, hub *events.Hub) {
	h := &handlers{store: store, orch: orch, evo: evo}

	router.GET("/health", h.health)
	router.GET("/ws", func(c *gin.Context) { hub.ServeHTTP(c.Writer, c.Request) })

	v1 := router.Group("/v1")
	{
		v1.POST("/projects", h.putProject)
		v1.POST("/attribute", h.attribute)
		v1.POST("/evolution/run", h.runEvolution)
	}
}
