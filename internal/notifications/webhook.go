/*-------------------------------------------------------------------------
 *
 * webhook.go
 *    Webhook notification service
 *
 * Provides HTTP webhook delivery for deployment targets and lifecycle
 * notifications, with a channel router that maps named channels to
 * configured endpoints.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/notifications/webhook.go
 *
 *-------------------------------------------------------------------------
 */

package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* WebhookService provides webhook notification capabilities */
type WebhookService struct {
	httpClient *http.Client
	timeout    time.Duration
}

/* NewWebhookService creates a new webhook service */
func NewWebhookService(timeout time.Duration) *WebhookService {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookService{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

/* SendWebhook sends a webhook notification */
func (w *WebhookService) SendWebhook(ctx context.Context, url string, payload map[string]interface{}) error {
	return w.SendWebhookWithHeaders(ctx, url, payload, nil)
}

/* SendWebhookWithHeaders sends a webhook with custom headers */
func (w *WebhookService) SendWebhookWithHeaders(ctx context.Context, url string, payload map[string]interface{}, headers map[string]string) error {
	/* Validate URL */
	if url == "" {
		return fmt.Errorf("webhook URL is required")
	}

	/* Serialize payload */
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook payload serialization failed: error=%w", err)
	}

	/* Create request */
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payloadJSON))
	if err != nil {
		return fmt.Errorf("webhook request creation failed: url='%s', error=%w", url, err)
	}

	/* Set default headers */
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "NeuronFlow/1.0")

	/* Add custom headers */
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	/* Send request */
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: url='%s', error=%w", url, err)
	}
	defer resp.Body.Close()

	/* Check response status */
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed: url='%s', status_code=%d", url, resp.StatusCode)
	}

	return nil
}

/* ChannelConfig binds a named channel to a webhook endpoint */
type ChannelConfig struct {
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

/* ChannelRouter routes named notification channels to webhook endpoints */
type ChannelRouter struct {
	service  *WebhookService
	mu       sync.RWMutex
	channels map[string]ChannelConfig
}

/* NewChannelRouter creates a channel router */
func NewChannelRouter(service *WebhookService, channels map[string]ChannelConfig) *ChannelRouter {
	if channels == nil {
		channels = make(map[string]ChannelConfig)
	}
	return &ChannelRouter{
		service:  service,
		channels: channels,
	}
}

/* RegisterChannel binds a channel name to an endpoint */
func (r *ChannelRouter) RegisterChannel(name string, config ChannelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[name] = config
}

/* Send delivers a payload to the named channel. Unconfigured channels
 * are dropped with a warning rather than failing the caller. */
func (r *ChannelRouter) Send(ctx context.Context, channel string, payload map[string]interface{}) error {
	r.mu.RLock()
	config, ok := r.channels[channel]
	r.mu.RUnlock()

	if !ok {
		metrics.WarnWithContext(ctx, "Notification channel not configured, dropping", map[string]interface{}{
			"channel": channel,
		})
		metrics.RecordNotificationDelivery(channel, "dropped")
		return nil
	}

	if err := r.service.SendWebhookWithHeaders(ctx, config.URL, payload, config.Headers); err != nil {
		metrics.RecordNotificationDelivery(channel, "failed")
		return fmt.Errorf("notification delivery failed: channel='%s', error=%w", channel, err)
	}

	metrics.RecordNotificationDelivery(channel, "delivered")
	return nil
}
