// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/objectlens/services/lens/observability"
	"github.com/AleutianAI/objectlens/services/lens/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// PanelHandler receives the interactions a panel sends.
type PanelHandler interface {
	HandlePanelMessage(ctx context.Context, msg session.PanelMessage) error
	Replay(ctx context.Context) error
}

// client is one connected panel.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans published messages out to every connected panel.
//
// # Description
//
// Hub implements session.Publisher. Each message is encoded once and
// queued on every client's buffered channel. A client whose buffer is
// full is disconnected rather than allowed to stall the session.
//
// # Thread Safety
//
// Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubMetrics records client counts and panel messages.
func WithHubMetrics(m *observability.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithHubLogger sets the logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[string]*client),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ session.Publisher = (*Hub)(nil)

// Publish implements session.Publisher.
func (h *Hub) Publish(_ context.Context, msg session.Message) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding panel message", slog.String("command", msg.Command), slog.String("error", err.Error()))
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow panel", slog.String("client_id", c.id))
		h.unregister(c)
	}
}

// Clients returns the number of connected panels.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every panel.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
		h.metrics.ClientDisconnected()
	}
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.ClientConnected()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if ok {
		c.close()
		h.metrics.ClientDisconnected()
	}
}

// Serve runs a panel connection until it closes.
//
// # Description
//
// Registers the connection, asks the handler to replay the current state,
// then reads panel messages until the peer disconnects or ctx ends.
// Messages that fail validation or handling are answered with an error
// notification sent to that panel only.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, handler PanelHandler) {
	c := h.register(conn)
	logger := h.logger.With(slog.String("client_id", c.id))
	logger.Info("panel connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()

	if err := handler.Replay(ctx); err != nil {
		logger.Warn("replaying state", slog.String("error", err.Error()))
	}
	h.readPump(ctx, c, handler, logger)

	h.unregister(c)
	<-done
	logger.Info("panel disconnected")
}

func (h *Hub) readPump(ctx context.Context, c *client, handler PanelHandler, logger *slog.Logger) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("panel read failed", slog.String("error", err.Error()))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		var msg session.PanelMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.metrics.RecordPanelMessage("invalid", false)
			h.reply(c, "invalid panel message: "+err.Error())
			continue
		}
		if err := handler.HandlePanelMessage(ctx, msg); err != nil {
			logger.Warn("panel message failed", slog.String("command", msg.Command), slog.String("error", err.Error()))
			h.reply(c, err.Error())
			continue
		}
	}
}

// reply queues an error notification for one client.
func (h *Hub) reply(c *client, text string) {
	data, err := sonic.Marshal(session.Message{
		Command:      session.CommandNotification,
		Notification: &session.Notification{Kind: "error", Message: text},
	})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
