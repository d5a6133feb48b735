/*-------------------------------------------------------------------------
 *
 * approval.go
 *    Approval gateway for approval stages
 *
 * Collects weighted approver decisions for a suspended approval stage.
 * The stage resolves approved once the required approval count is
 * reached with no veto before the deadline; a veto rejects immediately.
 * Deadline expiry follows the configured timeout action, with timer
 * driven escalation notifications.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/workflow/approval.go
 *
 *-------------------------------------------------------------------------
 */

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

/* ApprovalDecision is one approver's submitted decision */
type ApprovalDecision struct {
	Approver    string    `json:"approver"`
	Approve     bool      `json:"approve"`
	Veto        bool      `json:"veto,omitempty"`
	Comments    string    `json:"comments,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

/* ApprovalOutcome is the terminal result of an approval stage */
type ApprovalOutcome struct {
	Approved  bool               `json:"approved"`
	Vetoed    bool               `json:"vetoed,omitempty"`
	TimedOut  bool               `json:"timed_out,omitempty"`
	Escalated bool               `json:"escalated,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Decisions []ApprovalDecision `json:"decisions,omitempty"`
}

type approvalState struct {
	config    ApprovalConfig
	decisions []ApprovalDecision
	weight    int
	done      chan ApprovalOutcome
	resolved  bool
}

/* ApprovalGateway tracks outstanding approval stages keyed by
 * (executionID, stageID), mirroring the human review gateway */
type ApprovalGateway struct {
	mu      sync.Mutex
	pending map[reviewKey]*approvalState
	events  EventPublisher
}

/* NewApprovalGateway creates an approval gateway */
func NewApprovalGateway(events EventPublisher) *ApprovalGateway {
	return &ApprovalGateway{
		pending: make(map[reviewKey]*approvalState),
		events:  events,
	}
}

/* Await registers an approval stage and suspends until resolution */
func (g *ApprovalGateway) Await(ctx context.Context, executionID uuid.UUID, stageID string, config ApprovalConfig) (*ApprovalOutcome, error) {
	if len(config.Approvers) == 0 {
		return nil, fmt.Errorf("approval config has no approvers")
	}
	if config.RequiredApprovals <= 0 {
		config.RequiredApprovals = 1
	}
	if config.OnTimeout == "" {
		config.OnTimeout = TimeoutAutoReject
	}

	key := reviewKey{executionID: executionID, stageID: stageID}
	state := &approvalState{
		config: config,
		done:   make(chan ApprovalOutcome, 1),
	}

	g.mu.Lock()
	if _, exists := g.pending[key]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("approval already pending: execution_id='%s', stage_id='%s'", executionID, stageID)
	}
	g.pending[key] = state
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending[key] == state {
			delete(g.pending, key)
		}
		g.mu.Unlock()
	}()

	/* Schedule escalation notifications */
	escalationTimers := make([]*time.Timer, 0, len(config.Escalation))
	for _, step := range config.Escalation {
		step := step
		timer := time.AfterFunc(step.After, func() {
			g.escalate(executionID, stageID, step)
		})
		escalationTimers = append(escalationTimers, timer)
	}
	defer func() {
		for _, timer := range escalationTimers {
			timer.Stop()
		}
	}()

	deadline := config.Timeout
	extended := false
	for {
		var timeoutCh <-chan time.Time
		if deadline > 0 {
			timer := time.NewTimer(deadline)
			defer timer.Stop()
			timeoutCh = timer.C
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case outcome := <-state.done:
			return &outcome, nil
		case <-timeoutCh:
			switch config.OnTimeout {
			case TimeoutAutoApprove:
				return g.resolveTimeout(key, state, ApprovalOutcome{
					Approved: true,
					TimedOut: true,
					Reason:   "deadline elapsed, auto-approved",
				}), nil
			case TimeoutExtend:
				if !extended {
					extended = true
					deadline = config.Extension
					if deadline <= 0 {
						deadline = time.Hour
					}
					continue
				}
				return g.resolveTimeout(key, state, ApprovalOutcome{
					TimedOut: true,
					Reason:   "deadline elapsed after extension",
				}), nil
			case TimeoutEscalate:
				if !extended {
					extended = true
					g.escalate(executionID, stageID, EscalationStep{})
					deadline = config.Extension
					if deadline <= 0 {
						deadline = time.Hour
					}
					continue
				}
				return g.resolveTimeout(key, state, ApprovalOutcome{
					TimedOut:  true,
					Escalated: true,
					Reason:    "deadline elapsed after escalation",
				}), nil
			default: /* TimeoutAutoReject */
				return g.resolveTimeout(key, state, ApprovalOutcome{
					TimedOut: true,
					Reason:   "deadline elapsed, auto-rejected",
				}), nil
			}
		}
	}
}

/* Submit records an approver decision for a pending approval stage.
 * Returns ErrNoPendingApproval when no matching suspension exists. */
func (g *ApprovalGateway) Submit(executionID uuid.UUID, stageID string, decision ApprovalDecision) error {
	if decision.Approver == "" {
		return fmt.Errorf("approver name is required")
	}
	if decision.SubmittedAt.IsZero() {
		decision.SubmittedAt = time.Now()
	}

	key := reviewKey{executionID: executionID, stageID: stageID}

	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.pending[key]
	if !ok || state.resolved {
		return ErrNoPendingApproval
	}

	approver := state.approverConfig(decision.Approver)
	if approver == nil {
		return fmt.Errorf("approver not configured for stage: approver='%s', stage_id='%s'", decision.Approver, stageID)
	}

	/* One decision per approver */
	for _, prior := range state.decisions {
		if prior.Approver == decision.Approver {
			return fmt.Errorf("approver already decided: approver='%s'", decision.Approver)
		}
	}
	state.decisions = append(state.decisions, decision)

	if decision.Veto && approver.CanVeto {
		state.resolved = true
		state.done <- ApprovalOutcome{
			Vetoed:    true,
			Reason:    fmt.Sprintf("vetoed by %s", decision.Approver),
			Decisions: append([]ApprovalDecision(nil), state.decisions...),
		}
		return nil
	}

	if decision.Approve {
		weight := approver.Weight
		if weight <= 0 {
			weight = 1
		}
		state.weight += weight
		if state.weight >= state.config.RequiredApprovals {
			state.resolved = true
			state.done <- ApprovalOutcome{
				Approved:  true,
				Decisions: append([]ApprovalDecision(nil), state.decisions...),
			}
		}
	}

	return nil
}

/* Pending reports whether an approval is outstanding for the key */
func (g *ApprovalGateway) Pending(executionID uuid.UUID, stageID string) bool {
	key := reviewKey{executionID: executionID, stageID: stageID}
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.pending[key]
	return ok && !state.resolved
}

func (g *ApprovalGateway) resolveTimeout(key reviewKey, state *approvalState, outcome ApprovalOutcome) *ApprovalOutcome {
	g.mu.Lock()
	state.resolved = true
	outcome.Decisions = append([]ApprovalDecision(nil), state.decisions...)
	g.mu.Unlock()
	return &outcome
}

func (g *ApprovalGateway) escalate(executionID uuid.UUID, stageID string, step EscalationStep) {
	if g.events == nil {
		return
	}
	_ = g.events.Publish(context.Background(), EventApprovalEscalated, "approval_gateway", map[string]interface{}{
		"execution_id": executionID.String(),
		"stage_id":     stageID,
		"approvers":    step.Approvers,
	})
}

func (s *approvalState) approverConfig(name string) *ApproverConfig {
	for i := range s.config.Approvers {
		if s.config.Approvers[i].Name == name {
			return &s.config.Approvers[i]
		}
	}
	return nil
}
