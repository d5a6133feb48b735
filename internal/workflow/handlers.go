/*-------------------------------------------------------------------------
 *
 * handlers.go
 *    Stage handler registry and built-in stage handlers
 *
 * Each stage type resolves to a handler at validation time. Built-in
 * handlers cover content generation, quality checks, human review,
 * compliance checks, approvals, and deployment notification.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/handlers.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* StageHandlerRegistry resolves stage types to handlers */
type StageHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[StageType]StageHandler
}

/* NewStageHandlerRegistry creates an empty handler registry */
func NewStageHandlerRegistry() *StageHandlerRegistry {
	return &StageHandlerRegistry{
		handlers: make(map[StageType]StageHandler),
	}
}

/* Register binds a handler to its stage type */
func (r *StageHandlerRegistry) Register(handler StageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.Type()] = handler
}

/* Supports reports whether a handler is registered for the type */
func (r *StageHandlerRegistry) Supports(stageType StageType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[stageType]
	return ok
}

/* Resolve returns the handler for a stage type */
func (r *StageHandlerRegistry) Resolve(stageType StageType) (StageHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[stageType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for stage type '%s'", stageType)
	}
	return handler, nil
}

/* CircuitBreaker guards calls to an external dependency */
type CircuitBreaker interface {
	Execute(fn func() error) error
}

/* GenerationHandler runs ai_generation stages through a provider,
 * fronted by a cache and an optional circuit breaker */
type GenerationHandler struct {
	provider ContentGenerationProvider
	cache    CacheProvider
	breaker  CircuitBreaker
	cacheTTL time.Duration
}

/* NewGenerationHandler creates a generation stage handler */
func NewGenerationHandler(provider ContentGenerationProvider, cache CacheProvider, breaker CircuitBreaker, cacheTTL time.Duration) *GenerationHandler {
	if cacheTTL <= 0 {
		cacheTTL = 15 * time.Minute
	}
	return &GenerationHandler{
		provider: provider,
		cache:    cache,
		breaker:  breaker,
		cacheTTL: cacheTTL,
	}
}

func (h *GenerationHandler) Type() StageType { return StageTypeGeneration }

func (h *GenerationHandler) Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
	request := h.buildRequest(sc)
	if request.Prompt == "" {
		return nil, NewPermanentStageError("generation_config_invalid", "generation stage requires a prompt", nil)
	}

	cacheKey := generationCacheKey(request)
	if h.cache != nil {
		if cached, ok := h.cache.Get(cacheKey); ok {
			if result, ok := cached.(*GenerationResult); ok {
				metrics.DebugWithContext(ctx, "generation cache hit", map[string]interface{}{
					"stage_id": sc.Stage.ID,
				})
				return generationOutput(result, true), nil
			}
		}
	}

	var result *GenerationResult
	call := func() error {
		var err error
		result, err = h.provider.Generate(ctx, request)
		return err
	}

	var err error
	if h.breaker != nil {
		err = h.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, NewStageError("generation_failed", fmt.Sprintf("provider '%s' failed", h.provider.Name()), err)
	}

	if h.cache != nil {
		h.cache.Set(cacheKey, result, h.cacheTTL)
	}
	return generationOutput(result, false), nil
}

func (h *GenerationHandler) buildRequest(sc *StageContext) *GenerationRequest {
	request := &GenerationRequest{}
	if prompt, ok := sc.Stage.Config["prompt"].(string); ok {
		request.Prompt = prompt
	}
	if prompt, ok := sc.Input["prompt"].(string); ok && request.Prompt == "" {
		request.Prompt = prompt
	}
	if model, ok := sc.Stage.Config["model"].(string); ok {
		request.Model = model
	}
	if maxTokens, ok := toNumber(sc.Stage.Config["max_tokens"]); ok {
		request.MaxTokens = int(maxTokens)
	}
	if temperature, ok := toNumber(sc.Stage.Config["temperature"]); ok {
		request.Temperature = temperature
	}
	return request
}

func generationCacheKey(request *GenerationRequest) string {
	payload, _ := json.Marshal(request)
	sum := sha256.Sum256(payload)
	return "generation:" + hex.EncodeToString(sum[:])
}

func generationOutput(result *GenerationResult, cached bool) map[string]interface{} {
	output := map[string]interface{}{
		"content": result.Content,
		"cached":  cached,
	}
	if result.Model != "" {
		output["model"] = result.Model
	}
	if result.TokensUsed > 0 {
		output["tokens_used"] = result.TokensUsed
	}
	if result.Cost > 0 {
		output["cost"] = result.Cost
	}
	return output
}

/* QualityCheckHandler runs quality_check stages through the evaluator.
 * A mandatory gate below threshold fails the stage permanently; a
 * non-mandatory miss passes with requires_human_review set. */
type QualityCheckHandler struct {
	evaluator *QualityGateEvaluator
	events    EventPublisher
}

/* NewQualityCheckHandler creates a quality check stage handler */
func NewQualityCheckHandler(evaluator *QualityGateEvaluator, events EventPublisher) *QualityCheckHandler {
	return &QualityCheckHandler{evaluator: evaluator, events: events}
}

func (h *QualityCheckHandler) Type() StageType { return StageTypeQualityCheck }

func (h *QualityCheckHandler) Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
	gate, err := QualityGateFromConfig(sc.Stage.Config)
	if err != nil {
		return nil, NewPermanentStageError("quality_config_invalid", "quality gate configuration is invalid", err)
	}
	if gate.ID == "" {
		gate.ID = sc.Stage.ID
	}

	result, err := h.evaluator.Evaluate(ctx, *gate, sc.Input)
	if err != nil {
		return nil, NewStageError("quality_evaluation_failed", "quality gate evaluation failed", err)
	}

	metrics.RecordQualityGate(gate.ID, result.OverallScore, result.Passed)
	if h.events != nil {
		_ = h.events.Publish(ctx, EventQualityGateEvaluated, "quality_check", map[string]interface{}{
			"execution_id": sc.Execution.ID.String(),
			"stage_id":     sc.Stage.ID,
			"gate_id":      gate.ID,
			"score":        result.OverallScore,
			"passed":       result.Passed,
		})
	}

	if !result.Passed && gate.Mandatory {
		return nil, &QualityGateFailure{
			GateID:    gate.ID,
			Score:     result.OverallScore,
			Threshold: gate.Threshold,
			Result:    result,
		}
	}

	output := map[string]interface{}{
		"gate_id":               result.GateID,
		"overall_score":         result.OverallScore,
		"passed":                result.Passed,
		"requires_human_review": result.RequiresHumanReview,
		"criteria":              result.Criteria,
	}
	if len(result.Recommendations) > 0 {
		output["recommendations"] = result.Recommendations
	}
	if content, ok := sc.Input["content"]; ok {
		output["content"] = content
	}
	return output, nil
}

/* HumanReviewHandler suspends human_review stages on the review gateway */
type HumanReviewHandler struct {
	gateway        *HumanReviewGateway
	events         EventPublisher
	defaultTimeout time.Duration
}

/* NewHumanReviewHandler creates a human review stage handler */
func NewHumanReviewHandler(gateway *HumanReviewGateway, events EventPublisher, defaultTimeout time.Duration) *HumanReviewHandler {
	if defaultTimeout <= 0 {
		defaultTimeout = 24 * time.Hour
	}
	return &HumanReviewHandler{gateway: gateway, events: events, defaultTimeout: defaultTimeout}
}

func (h *HumanReviewHandler) Type() StageType { return StageTypeHumanReview }

func (h *HumanReviewHandler) Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
	timeout := h.defaultTimeout
	if sc.Stage.Timeout > 0 {
		timeout = sc.Stage.Timeout
	}

	if h.events != nil {
		_ = h.events.Publish(ctx, EventHumanReviewRequested, "human_review", map[string]interface{}{
			"execution_id": sc.Execution.ID.String(),
			"stage_id":     sc.Stage.ID,
			"timeout":      timeout.String(),
		})
	}

	record, err := h.gateway.Await(ctx, sc.Execution.ID, sc.Stage.ID, timeout)
	if err != nil {
		if err == ErrReviewTimeout {
			return h.applyTimeoutAction(sc)
		}
		return nil, err
	}

	if h.events != nil {
		_ = h.events.Publish(ctx, EventHumanReviewCompleted, "human_review", map[string]interface{}{
			"execution_id": sc.Execution.ID.String(),
			"stage_id":     sc.Stage.ID,
			"decision":     record.Decision,
			"reviewer":     record.Reviewer,
		})
	}

	switch record.Decision {
	case ReviewApproved:
		return reviewOutput(record, sc), nil
	case ReviewChangesRequested:
		return nil, NewStageError("review_changes_requested",
			fmt.Sprintf("reviewer '%s' requested changes", record.Reviewer), nil)
	default:
		return nil, NewPermanentStageError("review_rejected",
			fmt.Sprintf("reviewer '%s' rejected the content", record.Reviewer), nil)
	}
}

func (h *HumanReviewHandler) applyTimeoutAction(sc *StageContext) (map[string]interface{}, error) {
	action, _ := sc.Stage.Config["on_timeout"].(string)
	switch TimeoutAction(action) {
	case TimeoutAutoApprove:
		record := &HumanReviewRecord{
			Reviewer:    "system",
			Decision:    ReviewApproved,
			Comments:    "auto-approved after review timeout",
			SubmittedAt: time.Now(),
		}
		return reviewOutput(record, sc), nil
	default:
		return nil, &TimeoutError{StageID: sc.Stage.ID, Timeout: sc.Stage.Timeout}
	}
}

func reviewOutput(record *HumanReviewRecord, sc *StageContext) map[string]interface{} {
	output := map[string]interface{}{
		"decision": record.Decision,
		"reviewer": record.Reviewer,
	}
	if record.Comments != "" {
		output["comments"] = record.Comments
	}
	if content, ok := sc.Input["content"]; ok {
		output["content"] = content
	}
	return output
}

/* ComplianceRule checks an artifact against one policy */
type ComplianceRule func(ctx context.Context, artifact map[string]interface{}) (bool, string)

/* ComplianceHandler runs compliance_check stages against registered rules */
type ComplianceHandler struct {
	mu    sync.RWMutex
	rules map[string]ComplianceRule
}

/* NewComplianceHandler creates a compliance handler with built-in rules */
func NewComplianceHandler() *ComplianceHandler {
	h := &ComplianceHandler{rules: make(map[string]ComplianceRule)}
	h.RegisterRule("no_blocked_terms", blockedTermsRule)
	h.RegisterRule("max_length", maxLengthRule)
	return h
}

/* RegisterRule registers a compliance rule by name */
func (h *ComplianceHandler) RegisterRule(name string, rule ComplianceRule) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rules[name] = rule
}

func (h *ComplianceHandler) Type() StageType { return StageTypeCompliance }

func (h *ComplianceHandler) Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
	names := toStringSlice(sc.Stage.Config["rules"])
	if len(names) == 0 {
		return nil, NewPermanentStageError("compliance_config_invalid", "compliance stage requires a rules list", nil)
	}

	artifact := cloneMap(sc.Input)
	if artifact == nil {
		artifact = make(map[string]interface{})
	}
	for k, v := range sc.Stage.Config {
		if _, exists := artifact[k]; !exists {
			artifact[k] = v
		}
	}

	violations := make([]string, 0)
	for _, name := range names {
		h.mu.RLock()
		rule, ok := h.rules[name]
		h.mu.RUnlock()
		if !ok {
			return nil, NewPermanentStageError("compliance_config_invalid",
				fmt.Sprintf("unknown compliance rule '%s'", name), nil)
		}
		passed, reason := rule(ctx, artifact)
		if !passed {
			violations = append(violations, fmt.Sprintf("%s: %s", name, reason))
		}
	}

	if len(violations) > 0 {
		return nil, NewPermanentStageError("compliance_violation",
			fmt.Sprintf("compliance check failed: violations=%v", violations), nil)
	}

	output := map[string]interface{}{
		"compliant":     true,
		"rules_checked": names,
	}
	if content, ok := sc.Input["content"]; ok {
		output["content"] = content
	}
	return output, nil
}

func blockedTermsRule(_ context.Context, artifact map[string]interface{}) (bool, string) {
	content, _ := artifact["content"].(string)
	terms := toStringSlice(artifact["blocked_terms"])
	for _, term := range terms {
		if term != "" && containsFold(content, term) {
			return false, fmt.Sprintf("content contains blocked term '%s'", term)
		}
	}
	return true, ""
}

func maxLengthRule(_ context.Context, artifact map[string]interface{}) (bool, string) {
	content, _ := artifact["content"].(string)
	max, ok := toNumber(artifact["max_length"])
	if !ok || max <= 0 {
		return true, ""
	}
	if float64(len(content)) > max {
		return false, fmt.Sprintf("content length %d exceeds maximum %d", len(content), int(max))
	}
	return true, ""
}

/* ApprovalHandler suspends approval stages on the approval gateway */
type ApprovalHandler struct {
	gateway *ApprovalGateway
	events  EventPublisher
}

/* NewApprovalHandler creates an approval stage handler */
func NewApprovalHandler(gateway *ApprovalGateway, events EventPublisher) *ApprovalHandler {
	return &ApprovalHandler{gateway: gateway, events: events}
}

func (h *ApprovalHandler) Type() StageType { return StageTypeApproval }

func (h *ApprovalHandler) Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
	config, err := ApprovalConfigFromStage(sc.Stage)
	if err != nil {
		return nil, NewPermanentStageError("approval_config_invalid", "approval configuration is invalid", err)
	}

	if h.events != nil {
		_ = h.events.Publish(ctx, EventApprovalRequested, "approval", map[string]interface{}{
			"execution_id":       sc.Execution.ID.String(),
			"stage_id":           sc.Stage.ID,
			"required_approvals": config.RequiredApprovals,
		})
	}

	outcome, err := h.gateway.Await(ctx, sc.Execution.ID, sc.Stage.ID, *config)
	if err != nil {
		return nil, err
	}

	if h.events != nil {
		_ = h.events.Publish(ctx, EventApprovalResolved, "approval", map[string]interface{}{
			"execution_id": sc.Execution.ID.String(),
			"stage_id":     sc.Stage.ID,
			"approved":     outcome.Approved,
			"vetoed":       outcome.Vetoed,
			"timed_out":    outcome.TimedOut,
		})
	}

	if !outcome.Approved {
		reason := outcome.Reason
		if reason == "" {
			reason = "approval was not granted"
		}
		return nil, NewPermanentStageError("approval_rejected", reason, nil)
	}

	output := map[string]interface{}{
		"approved":  true,
		"decisions": outcome.Decisions,
	}
	if outcome.TimedOut {
		output["auto_approved"] = true
	}
	if content, ok := sc.Input["content"]; ok {
		output["content"] = content
	}
	return output, nil
}

/* ApprovalConfigFromStage extracts the approval configuration from a
 * stage config map */
func ApprovalConfigFromStage(stage *WorkflowStage) (*ApprovalConfig, error) {
	raw, ok := stage.Config["approval"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("stage config is missing approval")
	}

	config := &ApprovalConfig{}
	if role, ok := raw["role"].(string); ok {
		config.Role = role
	}
	if required, ok := toNumber(raw["required_approvals"]); ok {
		config.RequiredApprovals = int(required)
	}
	if onTimeout, ok := raw["on_timeout"].(string); ok {
		config.OnTimeout = TimeoutAction(onTimeout)
	}
	if timeout, ok := raw["timeout"].(string); ok {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid approval timeout '%s': %w", timeout, err)
		}
		config.Timeout = d
	}
	if extension, ok := raw["extension"].(string); ok {
		d, err := time.ParseDuration(extension)
		if err != nil {
			return nil, fmt.Errorf("invalid approval extension '%s': %w", extension, err)
		}
		config.Extension = d
	}

	approvers, ok := raw["approvers"].([]interface{})
	if !ok || len(approvers) == 0 {
		return nil, fmt.Errorf("approval requires an approvers list")
	}
	for _, item := range approvers {
		am, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		approver := ApproverConfig{}
		if name, ok := am["name"].(string); ok {
			approver.Name = name
		}
		if weight, ok := toNumber(am["weight"]); ok {
			approver.Weight = int(weight)
		}
		if canVeto, ok := am["can_veto"].(bool); ok {
			approver.CanVeto = canVeto
		}
		if approver.Name == "" {
			return nil, fmt.Errorf("approver entries require a name")
		}
		config.Approvers = append(config.Approvers, approver)
	}
	if len(config.Approvers) == 0 {
		return nil, fmt.Errorf("approval requires at least one valid approver")
	}

	if escalation, ok := raw["escalation"].([]interface{}); ok {
		for _, item := range escalation {
			em, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			step := EscalationStep{}
			if after, ok := em["after"].(string); ok {
				d, err := time.ParseDuration(after)
				if err != nil {
					return nil, fmt.Errorf("invalid escalation delay '%s': %w", after, err)
				}
				step.After = d
			}
			step.Approvers = toStringSlice(em["approvers"])
			config.Escalation = append(config.Escalation, step)
		}
	}

	return config, nil
}

/* NotificationSender delivers a deployment notification */
type NotificationSender interface {
	Send(ctx context.Context, channel string, payload map[string]interface{}) error
}

/* DeploymentHandler runs deployment stages by publishing the final
 * artifact to the configured notification channels */
type DeploymentHandler struct {
	sender NotificationSender
}

/* NewDeploymentHandler creates a deployment stage handler */
func NewDeploymentHandler(sender NotificationSender) *DeploymentHandler {
	return &DeploymentHandler{sender: sender}
}

func (h *DeploymentHandler) Type() StageType { return StageTypeDeployment }

func (h *DeploymentHandler) Execute(ctx context.Context, sc *StageContext) (map[string]interface{}, error) {
	channels := toStringSlice(sc.Stage.Config["channels"])
	if len(channels) == 0 {
		channels = []string{"default"}
	}

	payload := map[string]interface{}{
		"execution_id": sc.Execution.ID.String(),
		"workflow_id":  sc.Execution.WorkflowID,
		"stage_id":     sc.Stage.ID,
		"deployed_at":  time.Now().Format(time.RFC3339),
	}
	if content, ok := sc.Input["content"]; ok {
		payload["content"] = content
	}

	deployed := make([]string, 0, len(channels))
	if h.sender != nil {
		for _, channel := range channels {
			if err := h.sender.Send(ctx, channel, payload); err != nil {
				return nil, NewStageError("deployment_failed",
					fmt.Sprintf("delivery to channel '%s' failed", channel), err)
			}
			deployed = append(deployed, channel)
		}
	} else {
		deployed = channels
	}

	return map[string]interface{}{
		"deployed":    true,
		"channels":    deployed,
		"deployed_at": payload["deployed_at"],
	}, nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
