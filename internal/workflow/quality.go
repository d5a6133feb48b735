/*-------------------------------------------------------------------------
 *
 * quality.go
 *    Quality gate evaluation
 *
 * Scores content artifacts against weighted criteria. The overall score
 * is the weight-normalized sum of criterion scores; per-criterion
 * pass/fail is reported even when the gate passes, to drive
 * recommendations and optional human review insertion.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/quality.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

/* CriterionResult is the per-criterion outcome of a gate evaluation */
type CriterionResult struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
}

/* GateResult is the outcome of a quality gate evaluation */
type GateResult struct {
	GateID              string            `json:"gate_id"`
	OverallScore        float64           `json:"overall_score"`
	Threshold           float64           `json:"threshold"`
	Passed              bool              `json:"passed"`
	Mandatory           bool              `json:"mandatory"`
	RequiresHumanReview bool              `json:"requires_human_review"`
	Criteria            []CriterionResult `json:"criteria"`
	Recommendations     []string          `json:"recommendations,omitempty"`
}

/* CriterionValidator scores an artifact for one criterion (0-100) */
type CriterionValidator func(ctx context.Context, criterion QualityCriterion, artifact map[string]interface{}) (float64, error)

/* QualityGateEvaluator evaluates gates using registered validators */
type QualityGateEvaluator struct {
	mu         sync.RWMutex
	validators map[string]CriterionValidator
}

/* NewQualityGateEvaluator creates an evaluator with built-in validators */
func NewQualityGateEvaluator() *QualityGateEvaluator {
	e := &QualityGateEvaluator{
		validators: make(map[string]CriterionValidator),
	}
	e.RegisterValidator("score", scoreValidator)
	e.RegisterValidator("min_length", minLengthValidator)
	e.RegisterValidator("required_sections", requiredSectionsValidator)
	e.RegisterValidator("keyword_coverage", keywordCoverageValidator)
	e.RegisterValidator("readability", readabilityValidator)
	return e
}

/* RegisterValidator registers a criterion validator by descriptor name */
func (e *QualityGateEvaluator) RegisterValidator(name string, validator CriterionValidator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validators[name] = validator
}

/* Evaluate scores an artifact against a quality gate */
func (e *QualityGateEvaluator) Evaluate(ctx context.Context, gate QualityGate, artifact map[string]interface{}) (*GateResult, error) {
	if len(gate.Criteria) == 0 {
		return nil, fmt.Errorf("quality gate evaluation failed: gate_id='%s', no criteria configured", gate.ID)
	}

	result := &GateResult{
		GateID:    gate.ID,
		Threshold: gate.Threshold,
		Mandatory: gate.Mandatory,
		Criteria:  make([]CriterionResult, 0, len(gate.Criteria)),
	}

	var weightedSum, weightTotal float64
	for _, criterion := range gate.Criteria {
		validator, err := e.resolveValidator(criterion.Validator)
		if err != nil {
			return nil, err
		}

		score, err := validator(ctx, criterion, artifact)
		if err != nil {
			return nil, fmt.Errorf("criterion validation failed: gate_id='%s', criterion='%s', error=%w", gate.ID, criterion.Name, err)
		}

		weight := criterion.Weight
		if weight <= 0 {
			weight = 1
		}
		weightedSum += score * weight
		weightTotal += weight

		passed := score >= criterion.Threshold
		result.Criteria = append(result.Criteria, CriterionResult{
			Name:      criterion.Name,
			Score:     score,
			Weight:    weight,
			Threshold: criterion.Threshold,
			Passed:    passed,
		})
		if !passed {
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("improve '%s': score %.2f is below criterion threshold %.2f", criterion.Name, score, criterion.Threshold))
		}
	}

	result.OverallScore = weightedSum / weightTotal
	result.Passed = result.OverallScore >= gate.Threshold
	if !result.Passed && !gate.Mandatory {
		result.RequiresHumanReview = true
	}

	return result, nil
}

func (e *QualityGateEvaluator) resolveValidator(name string) (CriterionValidator, error) {
	if name == "" {
		name = "score"
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	validator, ok := e.validators[name]
	if !ok {
		return nil, fmt.Errorf("unknown criterion validator: '%s'", name)
	}
	return validator, nil
}

/* scoreValidator reads a precomputed score from the artifact's scores
 * map, falling back to a fixed score in the criterion config */
func scoreValidator(_ context.Context, criterion QualityCriterion, artifact map[string]interface{}) (float64, error) {
	if scores, ok := artifact["scores"].(map[string]interface{}); ok {
		if v, ok := toNumber(scores[criterion.Name]); ok {
			return v, nil
		}
	}
	if v, ok := toNumber(criterion.Config["score"]); ok {
		return v, nil
	}
	return 0, fmt.Errorf("no score available for criterion '%s'", criterion.Name)
}

/* minLengthValidator scores content length against a configured minimum */
func minLengthValidator(_ context.Context, criterion QualityCriterion, artifact map[string]interface{}) (float64, error) {
	content, _ := artifact["content"].(string)
	min, ok := toNumber(criterion.Config["min_length"])
	if !ok || min <= 0 {
		return 0, fmt.Errorf("min_length validator requires a positive min_length config")
	}
	score := float64(len(content)) / min * 100
	if score > 100 {
		score = 100
	}
	return score, nil
}

/* requiredSectionsValidator scores the fraction of required sections present */
func requiredSectionsValidator(_ context.Context, criterion QualityCriterion, artifact map[string]interface{}) (float64, error) {
	content, _ := artifact["content"].(string)
	sections := toStringSlice(criterion.Config["sections"])
	if len(sections) == 0 {
		return 0, fmt.Errorf("required_sections validator requires a sections config")
	}
	found := 0
	lower := strings.ToLower(content)
	for _, section := range sections {
		if strings.Contains(lower, strings.ToLower(section)) {
			found++
		}
	}
	return float64(found) / float64(len(sections)) * 100, nil
}

/* keywordCoverageValidator scores the fraction of keywords present */
func keywordCoverageValidator(_ context.Context, criterion QualityCriterion, artifact map[string]interface{}) (float64, error) {
	content, _ := artifact["content"].(string)
	keywords := toStringSlice(criterion.Config["keywords"])
	if len(keywords) == 0 {
		return 0, fmt.Errorf("keyword_coverage validator requires a keywords config")
	}
	found := 0
	lower := strings.ToLower(content)
	for _, keyword := range keywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			found++
		}
	}
	return float64(found) / float64(len(keywords)) * 100, nil
}

/* readabilityValidator scores average sentence length against a
 * configured maximum (default 25 words). Sentences at or under the
 * maximum score 100; longer sentences degrade the score linearly. */
func readabilityValidator(_ context.Context, criterion QualityCriterion, artifact map[string]interface{}) (float64, error) {
	content, _ := artifact["content"].(string)
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}

	maxWords, ok := toNumber(criterion.Config["max_sentence_length"])
	if !ok || maxWords <= 0 {
		maxWords = 25
	}

	sentences := 0
	words := 0
	inWord := false
	for _, r := range content {
		switch {
		case r == '.' || r == '!' || r == '?':
			sentences++
		case r == ' ' || r == '\n' || r == '\t':
			inWord = false
		default:
			if !inWord {
				words++
				inWord = true
			}
		}
	}
	if sentences == 0 {
		sentences = 1
	}

	average := float64(words) / float64(sentences)
	if average <= maxWords {
		return 100, nil
	}
	score := maxWords / average * 100
	if score < 0 {
		score = 0
	}
	return score, nil
}

func toNumber(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	default:
		return 0, false
	}
}

func toStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

/* QualityGateFromConfig extracts a quality gate from a stage config map */
func QualityGateFromConfig(config map[string]interface{}) (*QualityGate, error) {
	raw, ok := config["quality_gate"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("stage config is missing quality_gate")
	}

	gate := &QualityGate{}
	if id, ok := raw["id"].(string); ok {
		gate.ID = id
	}
	if threshold, ok := toNumber(raw["threshold"]); ok {
		gate.Threshold = threshold
	}
	if mandatory, ok := raw["mandatory"].(bool); ok {
		gate.Mandatory = mandatory
	}

	criteria, ok := raw["criteria"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("quality_gate is missing criteria")
	}
	for _, item := range criteria {
		cm, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		criterion := QualityCriterion{}
		if name, ok := cm["name"].(string); ok {
			criterion.Name = name
		}
		if weight, ok := toNumber(cm["weight"]); ok {
			criterion.Weight = weight
		}
		if validator, ok := cm["validator"].(string); ok {
			criterion.Validator = validator
		}
		if threshold, ok := toNumber(cm["threshold"]); ok {
			criterion.Threshold = threshold
		}
		if cfg, ok := cm["config"].(map[string]interface{}); ok {
			criterion.Config = cfg
		}
		gate.Criteria = append(gate.Criteria, criterion)
	}

	if len(gate.Criteria) == 0 {
		return nil, fmt.Errorf("quality_gate has no valid criteria")
	}
	return gate, nil
}
