/*-------------------------------------------------------------------------
 *
 * websocket.go
 *    WebSocket event stream for NeuronFlow API
 *
 * Streams workflow lifecycle events to connected clients, optionally
 * filtered by execution id.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/api/websocket.go
 *
 *-------------------------------------------------------------------------
 */

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/neurondb/NeuronFlow/internal/events"
	"github.com/neurondb/NeuronFlow/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true /* Allow all origins in development */
	},
	HandshakeTimeout: 10 * time.Second,
}

const (
	/* WebSocket connection timeouts */
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

/* streamClient is one connected event stream consumer */
type streamClient struct {
	conn        *websocket.Conn
	executionID string
	send        chan events.Event
	mu          sync.Mutex
	closed      bool
}

/* EventStream fans broker events out to websocket clients */
type EventStream struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

/* NewEventStream creates an event stream subscribed to the broker */
func NewEventStream(broker *events.Broker) *EventStream {
	stream := &EventStream{
		clients: make(map[*streamClient]struct{}),
	}
	broker.Subscribe(events.TopicAll, func(ctx context.Context, event events.Event) error {
		stream.broadcast(event)
		return nil
	})
	return stream
}

/* Handle upgrades the connection and streams events until the client
 * disconnects. An execution_id query parameter filters the stream. */
func (s *EventStream) Handle(w http.ResponseWriter, r *http.Request) {
	executionID := r.URL.Query().Get("execution_id")
	if executionID != "" {
		if _, err := uuid.Parse(executionID); err != nil {
			http.Error(w, "execution_id must be a valid UUID", http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WarnWithContext(r.Context(), "WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := &streamClient{
		conn:        conn,
		executionID: executionID,
		send:        make(chan events.Event, 64),
	}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(client)
	s.readLoop(client)
}

func (s *EventStream) broadcast(event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if client.executionID != "" {
			if id, ok := event.Data["execution_id"].(string); !ok || id != client.executionID {
				continue
			}
		}
		select {
		case client.send <- event:
		default:
			/* Slow consumer, drop the event */
		}
	}
}

func (s *EventStream) writeLoop(client *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.remove(client)
	}()

	for {
		select {
		case event, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *EventStream) readLoop(client *streamClient) {
	defer s.remove(client)

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *EventStream) remove(client *streamClient) {
	s.mu.Lock()
	delete(s.clients, client)
	s.mu.Unlock()

	client.mu.Lock()
	if !client.closed {
		client.closed = true
		client.conn.Close()
	}
	client.mu.Unlock()
}
