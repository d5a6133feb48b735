/*-------------------------------------------------------------------------
 *
 * broker.go
 *    Event broker for workflow lifecycle events
 *
 * Fans workflow, stage, review, and approval events out to local
 * subscribers and optional backends, with PostgreSQL NOTIFY as the
 * default cross-process backend and an events table for sourcing.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/events/broker.go
 *
 *-------------------------------------------------------------------------
 */

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* TopicAll subscribes to every event type */
const TopicAll = "*"

/* Event represents a lifecycle event */
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
}

/* EventBackend interface for cross-process event backends */
type EventBackend interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

/* EventSubscriber is a callback for locally delivered events */
type EventSubscriber func(ctx context.Context, event Event) error

/* EventHandler handles events from backends */
type EventHandler func(ctx context.Context, event Event) error

/* Broker fans events out to subscribers and backends */
type Broker struct {
	db          *sqlx.DB
	backends    []EventBackend
	subscribers map[string][]EventSubscriber
	mu          sync.RWMutex
	persist     bool
}

/* NewBroker creates an event broker. A nil db disables event sourcing
 * and the PostgreSQL backend. */
func NewBroker(db *sqlx.DB) *Broker {
	return &Broker{
		db:          db,
		backends:    make([]EventBackend, 0),
		subscribers: make(map[string][]EventSubscriber),
		persist:     db != nil,
	}
}

/* AddBackend registers a cross-process backend */
func (b *Broker) AddBackend(backend EventBackend) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backends = append(b.backends, backend)
}

/* Publish publishes an event to subscribers, backends, and the events
 * table. Implements the engine's publisher contract. */
func (b *Broker) Publish(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}

	b.mu.RLock()
	backends := b.backends
	b.mu.RUnlock()

	var lastErr error
	for _, backend := range backends {
		if err := backend.Publish(ctx, eventType, event); err != nil {
			lastErr = err
			metrics.WarnWithContext(ctx, "Failed to publish event", map[string]interface{}{
				"event_type": eventType,
				"error":      err.Error(),
			})
		}
	}

	if b.persist {
		if err := b.storeEvent(ctx, event); err != nil {
			metrics.WarnWithContext(ctx, "Failed to store event", map[string]interface{}{
				"event_type": eventType,
				"error":      err.Error(),
			})
		}
	}

	b.notifySubscribers(ctx, event)
	return lastErr
}

/* Subscribe subscribes to an event type, or all events via TopicAll */
func (b *Broker) Subscribe(eventType string, subscriber EventSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

/* Close closes all backends */
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, backend := range b.backends {
		_ = backend.Close()
	}
	b.backends = make([]EventBackend, 0)
}

/* notifySubscribers notifies local subscribers */
func (b *Broker) notifySubscribers(ctx context.Context, event Event) {
	b.mu.RLock()
	subscribers := append([]EventSubscriber(nil), b.subscribers[event.Type]...)
	subscribers = append(subscribers, b.subscribers[TopicAll]...)
	b.mu.RUnlock()

	for _, subscriber := range subscribers {
		if err := subscriber(ctx, event); err != nil {
			metrics.WarnWithContext(ctx, "Subscriber error", map[string]interface{}{
				"event_type": event.Type,
				"error":      err.Error(),
			})
		}
	}
}

/* storeEvent stores event in database for event sourcing */
func (b *Broker) storeEvent(ctx context.Context, event Event) error {
	query := `INSERT INTO neuronflow.events
		(id, type, timestamp, source, data, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, NOW())`

	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("event storage failed: json_marshal_error=true, error=%w", err)
	}

	_, err = b.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Timestamp,
		event.Source,
		dataJSON,
	)
	return err
}

/* PostgreSQLBackend implements EventBackend using LISTEN/NOTIFY */
type PostgreSQLBackend struct {
	db       *sqlx.DB
	connStr  string
	listener *pq.Listener
	mu       sync.RWMutex
	handlers map[string]EventHandler
	stopChan chan struct{}
}

/* NewPostgreSQLBackend creates a new PostgreSQL backend */
func NewPostgreSQLBackend(db *sqlx.DB, connStr string) *PostgreSQLBackend {
	return &PostgreSQLBackend{
		db:       db,
		connStr:  connStr,
		handlers: make(map[string]EventHandler),
		stopChan: make(chan struct{}),
	}
}

/* Publish publishes event via PostgreSQL NOTIFY */
func (pg *PostgreSQLBackend) Publish(ctx context.Context, topic string, event Event) error {
	query := `SELECT pg_notify($1, $2)`

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("postgresql publish failed: json_marshal_error=true, error=%w", err)
	}

	_, err = pg.db.ExecContext(ctx, query, topic, string(eventJSON))
	return err
}

/* Subscribe subscribes to events via PostgreSQL LISTEN */
func (pg *PostgreSQLBackend) Subscribe(ctx context.Context, topic string, handler EventHandler) error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	pg.handlers[topic] = handler

	if pg.listener == nil {
		if pg.connStr == "" {
			return fmt.Errorf("postgresql subscribe failed: connection string is not configured")
		}

		reportProblem := func(ev pq.ListenerEventType, err error) {
			if err != nil {
				metrics.WarnWithContext(ctx, "PostgreSQL LISTEN error", map[string]interface{}{
					"event": int(ev),
					"error": err.Error(),
				})
			}
		}

		listener := pq.NewListener(pg.connStr, 10*time.Second, time.Minute, reportProblem)
		if err := listener.Listen(topic); err != nil {
			return fmt.Errorf("postgresql subscribe failed: listen_error=true, topic='%s', error=%w", topic, err)
		}

		pg.listener = listener
		go pg.listenForNotifications(ctx)
	} else {
		if err := pg.listener.Listen(topic); err != nil {
			return fmt.Errorf("postgresql subscribe failed: listen_error=true, topic='%s', error=%w", topic, err)
		}
	}

	metrics.InfoWithContext(ctx, "PostgreSQL event subscription enabled", map[string]interface{}{
		"topic": topic,
	})
	return nil
}

/* listenForNotifications listens for PostgreSQL NOTIFY events */
func (pg *PostgreSQLBackend) listenForNotifications(ctx context.Context) {
	notificationChan := pg.listener.Notify
	for {
		select {
		case <-ctx.Done():
			return
		case <-pg.stopChan:
			return
		case notification := <-notificationChan:
			if notification == nil {
				continue
			}

			var event Event
			if err := json.Unmarshal([]byte(notification.Extra), &event); err != nil {
				metrics.WarnWithContext(ctx, "Failed to parse event from notification", map[string]interface{}{
					"channel": notification.Channel,
					"error":   err.Error(),
				})
				continue
			}

			pg.mu.RLock()
			handler, ok := pg.handlers[notification.Channel]
			pg.mu.RUnlock()

			if ok && handler != nil {
				if err := handler(ctx, event); err != nil {
					metrics.WarnWithContext(ctx, "Event handler error", map[string]interface{}{
						"event_type": event.Type,
						"channel":    notification.Channel,
						"error":      err.Error(),
					})
				}
			}
		}
	}
}

/* Close closes the backend */
func (pg *PostgreSQLBackend) Close() error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if pg.listener != nil {
		close(pg.stopChan)
		pg.listener.Close()
		pg.listener = nil
	}

	pg.handlers = make(map[string]EventHandler)
	return nil
}
