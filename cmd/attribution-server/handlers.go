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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/attributeai/attribution-engine/pkg/evidence"
	"github.com/attributeai/attribution-engine/pkg/evolution"
	"github.com/attributeai/attribution-engine/pkg/orchestrator"
	"github.com/attributeai/attribution-engine/pkg/scopedstore"
)

// handlers bundles the collaborators the demo HTTP surface needs. It is
// not the core: it exists only to give callers something to curl while
// driving pkg/orchestrator and pkg/evolution.
type handlers struct {
	store scopedstore.Store
	orch  *orchestrator.Orchestrator
	evo   *evolution.Processor
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type putProjectRequest struct {
	Workspace string `json:"workspace" binding:"required"`
	Project   string `json:"project" binding:"required"`
}

func (h *handlers) putProject(c *gin.Context) {
	var req putProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.store.PutProject(c.Request.Context(), scopedstore.Project{
		Workspace: req.Workspace,
		Project:   req.Project,
		Status:    scopedstore.ProjectActive,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"workspace": req.Workspace, "project": req.Project})
}

type attributeRequest struct {
	Workspace          string           `json:"workspace" binding:"required"`
	Project            string           `json:"project" binding:"required"`
	Finding            evidence.Finding `json:"finding" binding:"required"`
	ContextPackContent string           `json:"context_pack_content"`
	SpecContent        string           `json:"spec_content"`
	GuidanceLocation   string           `json:"guidance_location"`
}

func (h *handlers) attribute(c *gin.Context) {
	var req attributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orch.Attribute(c.Request.Context(), orchestrator.Request{
		Workspace:          req.Workspace,
		Project:            req.Project,
		Finding:            req.Finding,
		ContextPackContent: req.ContextPackContent,
		SpecContent:        req.SpecContent,
		GuidanceLocation:   req.GuidanceLocation,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handlers) runEvolution(c *gin.Context) {
	report, err := h.evo.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
