// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package openaiagent is a reference implementation of
// pkg/agent.AttributionAgent backed by the OpenAI chat completions API.
// It is not core: the orchestrator depends only on the AttributionAgent
// interface, and any collaborator capable of the same contract (a
// different model provider, an in-process heuristic, a human-in-the-loop
// queue) can stand in for it.
package openaiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/attributeai/attribution-engine/pkg/agent"
	"github.com/attributeai/attribution-engine/pkg/ekind"
	"github.com/attributeai/attribution-engine/pkg/evidence"
)

// Client is an OpenAI-backed AttributionAgent.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient builds a Client from OPENAI_API_KEY / OPENAI_MODEL, mirroring
// the teacher's services/llm.NewOpenAIClient environment-driven
// construction, narrowed to the single model string this package needs.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("openaiagent: OPENAI_API_KEY environment variable not set")
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{client: openai.NewClient(apiKey), model: model}, nil
}

const systemPrompt = `You are an evidence-extraction assistant for an engineering guidance attribution system.
Given a finding and the two carrier documents it may have been guided by (a Context Pack and a Spec),
decide which carrier document is responsible, quote the relevant passage, and classify the quote's
fidelity. Respond with a single JSON object matching this shape exactly, no prose outside the JSON:
{
  "carrier_stage": "context-pack" | "spec",
  "carrier_quote": string,
  "carrier_quote_type": "verbatim" | "paraphrase" | "inferred",
  "carrier_instruction_kind": "explicitly_harmful" | "benign_but_missing_guardrails" | "descriptive" | "unknown",
  "has_citation": bool,
  "source_retrievable": bool,
  "source_agrees_with_carrier": bool | null,
  "mandatory_doc_missing": bool,
  "has_testable_acceptance_criteria": bool,
  "conflict_signals": [{"description": string}],
  "vagueness_signals": [{"description": string}]
}`

// Attribute sends the finding and carrier contents to the model and
// parses its response into an EvidenceBundle. A malformed or
// schema-invalid response is surfaced as ekind.ExternalAgentFailure, per
// spec.md §6 ("May fail; on failure the orchestrator aborts with a typed
// error").
func (c *Client) Attribute(ctx context.Context, req agent.Request) (evidence.EvidenceBundle, error) {
	userContent := fmt.Sprintf(
		"Finding:\n%s\n\nContext Pack:\n%s\n\nSpec:\n%s",
		findingSummary(req.Finding), req.ContextPackContent, req.SpecContent,
	)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	})
	if err != nil {
		return evidence.EvidenceBundle{}, ekind.Wrap(ekind.ExternalAgentFailure, "openai chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return evidence.EvidenceBundle{}, ekind.New(ekind.ExternalAgentFailure, "openai returned no choices")
	}

	var bundle evidence.EvidenceBundle
	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return evidence.EvidenceBundle{}, ekind.Wrap(ekind.ExternalAgentFailure, "failed to parse model response as EvidenceBundle", err)
	}
	if err := bundle.Validate(); err != nil {
		return evidence.EvidenceBundle{}, ekind.Wrap(ekind.ExternalAgentFailure, "model response failed EvidenceBundle validation", err)
	}
	return bundle, nil
}

func findingSummary(f evidence.Finding) string {
	return fmt.Sprintf("id=%s scoutType=%s severity=%s title=%q description=%q evidence=%q location=%s",
		f.ID, f.ScoutType, f.Severity, f.Title, f.Description, f.Evidence, f.Location.File)
}
