/*-------------------------------------------------------------------------
 *
 * client.go
 *    HTTP client for NeuronFlow API
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/pkg/client/client.go
 *
 *-------------------------------------------------------------------------
 */

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

/* RegisterWorkflow registers a workflow definition */
func (c *Client) RegisterWorkflow(ctx context.Context, definition map[string]interface{}) (map[string]interface{}, error) {
	return c.do(ctx, "POST", "/v1/workflows", definition)
}

/* ListWorkflows lists registered workflow ids */
func (c *Client) ListWorkflows(ctx context.Context) (map[string]interface{}, error) {
	return c.do(ctx, "GET", "/v1/workflows", nil)
}

/* GetWorkflow fetches a workflow definition */
func (c *Client) GetWorkflow(ctx context.Context, workflowID string) (map[string]interface{}, error) {
	return c.do(ctx, "GET", "/v1/workflows/"+workflowID, nil)
}

/* ExecuteWorkflow starts an execution */
func (c *Client) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]interface{}, async bool) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"input": input,
		"async": async,
	}
	return c.do(ctx, "POST", "/v1/workflows/"+workflowID+"/execute", body)
}

/* GetExecution fetches an execution snapshot */
func (c *Client) GetExecution(ctx context.Context, executionID string) (map[string]interface{}, error) {
	return c.do(ctx, "GET", "/v1/executions/"+executionID, nil)
}

/* ListExecutions fetches recent executions for a workflow */
func (c *Client) ListExecutions(ctx context.Context, workflowID string) (map[string]interface{}, error) {
	return c.do(ctx, "GET", "/v1/workflows/"+workflowID+"/executions", nil)
}

/* CancelExecution cancels a running execution */
func (c *Client) CancelExecution(ctx context.Context, executionID, reason string) (map[string]interface{}, error) {
	return c.do(ctx, "POST", "/v1/executions/"+executionID+"/cancel", map[string]interface{}{
		"reason": reason,
	})
}

/* CompleteReview resolves a pending human review */
func (c *Client) CompleteReview(ctx context.Context, executionID, stageID string, review map[string]interface{}) (map[string]interface{}, error) {
	return c.do(ctx, "POST", "/v1/executions/"+executionID+"/stages/"+stageID+"/review", review)
}

/* SubmitApproval records an approval decision */
func (c *Client) SubmitApproval(ctx context.Context, executionID, stageID string, decision map[string]interface{}) (map[string]interface{}, error) {
	return c.do(ctx, "POST", "/v1/executions/"+executionID+"/stages/"+stageID+"/approval", decision)
}

/* GetWorkflowMetrics fetches aggregated workflow metrics */
func (c *Client) GetWorkflowMetrics(ctx context.Context, workflowID string) (map[string]interface{}, error) {
	return c.do(ctx, "GET", "/v1/workflows/"+workflowID+"/metrics", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("request serialization failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("response read failed: %w", err)
	}

	var result map[string]interface{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("response parse failed: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := string(payload)
		if errMsg, ok := result["error"].(string); ok {
			message = errMsg
		}
		return result, fmt.Errorf("API error: status=%d, message=%s", resp.StatusCode, message)
	}
	return result, nil
}
