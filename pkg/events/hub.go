// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// upgrader mirrors services/orchestrator/handlers/websocket.go's
// package-level Upgrader: origin checking is left to whatever reverse
// proxy fronts the demo server (cmd/attribution-server is explicitly not
// core, spec.md §1), and the buffer sizes are generous for the small JSON
// events this surface actually carries.
var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// Hub broadcasts every Bus event to every connected websocket peer. It is
// the demo wiring cmd/attribution-server uses to push events to a
// browser; the core engine never imports this file.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *slog.Logger
}

// NewHub creates an empty Hub and subscribes it to bus.
func NewHub(bus *Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{conns: make(map[*websocket.Conn]struct{}), logger: logger}
	bus.Subscribe(SubscriberFunc(h.broadcast))
	return h
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection for broadcast. The connection is write-only from the Hub's
// perspective; it still reads (and discards) incoming frames so gorilla's
// ping/pong keepalive and close handshake work, the same loop shape as
// HandleChatWebSocket's ReadJSON loop.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) broadcast(e Event) {
	payload, err := Encode(e)
	if err != nil {
		h.logger.Error("failed to encode event", "kind", string(e.Kind), "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("failed to write event to websocket peer", "error", err)
		}
	}
}
