/*-------------------------------------------------------------------------
 *
 * provider.go
 *    Content generation providers
 *
 * HTTPProvider calls an external generation endpoint; StaticProvider
 * renders templated content locally for offline and fallback use.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/generation/provider.go
 *
 *-------------------------------------------------------------------------
 */

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/neurondb/NeuronFlow/internal/workflow"
)

/* HTTPProvider calls an HTTP generation endpoint */
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

/* NewHTTPProvider creates an HTTP generation provider */
func NewHTTPProvider(name, endpoint, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

/* Name returns the provider name */
func (p *HTTPProvider) Name() string { return p.name }

/* Generate calls the generation endpoint */
func (p *HTTPProvider) Generate(ctx context.Context, request *workflow.GenerationRequest) (*workflow.GenerationResult, error) {
	if p.endpoint == "" {
		return nil, fmt.Errorf("generation endpoint is not configured")
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("generation request serialization failed: error=%w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generation request creation failed: endpoint='%s', error=%w", p.endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "NeuronFlow/1.0")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: endpoint='%s', error=%w", p.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("generation request failed: endpoint='%s', status_code=%d, body='%s'", p.endpoint, resp.StatusCode, string(payload))
	}

	var result workflow.GenerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("generation response decode failed: endpoint='%s', error=%w", p.endpoint, err)
	}
	return &result, nil
}

/* StaticProvider renders prompt templates against request metadata */
type StaticProvider struct {
	name      string
	templates map[string]string
}

/* NewStaticProvider creates a static template provider */
func NewStaticProvider(name string, templates map[string]string) *StaticProvider {
	if templates == nil {
		templates = make(map[string]string)
	}
	return &StaticProvider{name: name, templates: templates}
}

/* Name returns the provider name */
func (p *StaticProvider) Name() string { return p.name }

/* Generate renders a template or echoes the prompt. Placeholders of
 * the form {{key}} are substituted from request metadata. */
func (p *StaticProvider) Generate(_ context.Context, request *workflow.GenerationRequest) (*workflow.GenerationResult, error) {
	content := request.Prompt
	if template, ok := p.templates[request.Model]; ok {
		content = template
	}
	for key, value := range request.Metadata {
		placeholder := "{{" + key + "}}"
		if s, ok := value.(string); ok {
			content = strings.ReplaceAll(content, placeholder, s)
		}
	}

	return &workflow.GenerationResult{
		Content: content,
		Model:   p.name,
	}, nil
}
