/*-------------------------------------------------------------------------
 *
 * provider_test.go
 *    Tests for content generation providers
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/generation/provider_test.go
 *
 *-------------------------------------------------------------------------
 */

package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/neurondb/NeuronFlow/internal/workflow"
)

func TestHTTPProviderGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %s, want Bearer secret", got)
		}

		var request workflow.GenerationRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("request decode error = %v", err)
		}
		if request.Prompt != "write about indexes" {
			t.Errorf("prompt = %s", request.Prompt)
		}

		json.NewEncoder(w).Encode(workflow.GenerationResult{
			Content:    "Indexes speed up lookups.",
			Model:      "standard",
			TokensUsed: 42,
			Cost:       0.002,
		})
	}))
	defer server.Close()

	provider := NewHTTPProvider("http", server.URL, "secret", time.Second)
	result, err := provider.Generate(context.Background(), &workflow.GenerationRequest{Prompt: "write about indexes"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Content != "Indexes speed up lookups." || result.TokensUsed != 42 {
		t.Errorf("Generate() = %+v", result)
	}
}

func TestHTTPProviderStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewHTTPProvider("http", server.URL, "", time.Second)
	if _, err := provider.Generate(context.Background(), &workflow.GenerationRequest{Prompt: "x"}); err == nil {
		t.Fatal("Generate() succeeded on a 503 response")
	}
}

func TestHTTPProviderRequiresEndpoint(t *testing.T) {
	provider := NewHTTPProvider("http", "", "", time.Second)
	if _, err := provider.Generate(context.Background(), &workflow.GenerationRequest{Prompt: "x"}); err == nil {
		t.Fatal("Generate() succeeded without an endpoint")
	}
}

func TestStaticProviderEchoesPrompt(t *testing.T) {
	provider := NewStaticProvider("static", nil)
	result, err := provider.Generate(context.Background(), &workflow.GenerationRequest{Prompt: "hello world"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.Content != "hello world" {
		t.Errorf("Content = %s, want the prompt echoed", result.Content)
	}
}

func TestStaticProviderRendersTemplate(t *testing.T) {
	provider := NewStaticProvider("static", map[string]string{
		"announcement": "Release {{version}} is now available for {{product}}.",
	})

	result, err := provider.Generate(context.Background(), &workflow.GenerationRequest{
		Prompt: "ignored",
		Model:  "announcement",
		Metadata: map[string]interface{}{
			"version": "2.1",
			"product": "NeuronFlow",
		},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := "Release 2.1 is now available for NeuronFlow."
	if result.Content != want {
		t.Errorf("Content = %s, want %s", result.Content, want)
	}
}
