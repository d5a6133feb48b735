/*-------------------------------------------------------------------------
 *
 * execution.go
 *    Execution management commands for flow-cli
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/cmd/flow-cli/execution.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neurondb/NeuronFlow/pkg/client"
)

var (
	cancelReason    string
	reviewReviewer  string
	reviewDecision  string
	reviewComments  string
	approveApprover string
	approveReject   bool
	approveVeto     bool
)

var executionCmd = &cobra.Command{
	Use:   "execution",
	Short: "Manage workflow executions",
	Long:  "Inspect, cancel, review, and approve workflow executions",
}

var executionShowCmd = &cobra.Command{
	Use:   "show [execution-id]",
	Short: "Show execution status and stage details",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowExecution,
}

var executionListCmd = &cobra.Command{
	Use:   "list [workflow-id]",
	Short: "List recent executions for a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runListExecutions,
}

var executionCancelCmd = &cobra.Command{
	Use:   "cancel [execution-id]",
	Short: "Cancel a running execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancelExecution,
}

var executionReviewCmd = &cobra.Command{
	Use:   "review [execution-id] [stage-id]",
	Short: "Resolve a pending human review",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompleteReview,
}

var executionApproveCmd = &cobra.Command{
	Use:   "approve [execution-id] [stage-id]",
	Short: "Submit an approval decision",
	Args:  cobra.ExactArgs(2),
	RunE:  runSubmitApproval,
}

func init() {
	executionCancelCmd.Flags().StringVar(&cancelReason, "reason", "cancelled via CLI", "Cancellation reason")

	executionReviewCmd.Flags().StringVar(&reviewReviewer, "reviewer", "", "Reviewer name (required)")
	executionReviewCmd.Flags().StringVar(&reviewDecision, "decision", "", "Decision: approved, rejected, changes_requested (required)")
	executionReviewCmd.Flags().StringVar(&reviewComments, "comments", "", "Review comments")
	executionReviewCmd.MarkFlagRequired("reviewer")
	executionReviewCmd.MarkFlagRequired("decision")

	executionApproveCmd.Flags().StringVar(&approveApprover, "approver", "", "Approver name (required)")
	executionApproveCmd.Flags().BoolVar(&approveReject, "reject", false, "Reject instead of approve")
	executionApproveCmd.Flags().BoolVar(&approveVeto, "veto", false, "Veto the approval")
	executionApproveCmd.MarkFlagRequired("approver")

	executionCmd.AddCommand(executionShowCmd)
	executionCmd.AddCommand(executionListCmd)
	executionCmd.AddCommand(executionCancelCmd)
	executionCmd.AddCommand(executionReviewCmd)
	executionCmd.AddCommand(executionApproveCmd)
}

func runShowExecution(cmd *cobra.Command, args []string) error {
	c := client.NewClient(apiURL)
	result, err := c.GetExecution(context.Background(), args[0])
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runListExecutions(cmd *cobra.Command, args []string) error {
	c := client.NewClient(apiURL)
	result, err := c.ListExecutions(context.Background(), args[0])
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}
	executions, _ := result["executions"].([]interface{})
	if len(executions) == 0 {
		fmt.Println("No executions found")
		return nil
	}
	for _, item := range executions {
		execution, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("%v  %v  started=%v\n", execution["id"], execution["status"], execution["started_at"])
	}
	return nil
}

func runCancelExecution(cmd *cobra.Command, args []string) error {
	c := client.NewClient(apiURL)
	result, err := c.CancelExecution(context.Background(), args[0], cancelReason)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}
	fmt.Printf("Execution cancelled: %v\n", result["execution_id"])
	return nil
}

func runCompleteReview(cmd *cobra.Command, args []string) error {
	review := map[string]interface{}{
		"reviewer": reviewReviewer,
		"decision": reviewDecision,
	}
	if reviewComments != "" {
		review["comments"] = reviewComments
	}

	c := client.NewClient(apiURL)
	result, err := c.CompleteReview(context.Background(), args[0], args[1], review)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}
	fmt.Printf("Review submitted: execution=%v stage=%v decision=%v\n", result["execution_id"], result["stage_id"], result["decision"])
	return nil
}

func runSubmitApproval(cmd *cobra.Command, args []string) error {
	decision := map[string]interface{}{
		"approver": approveApprover,
		"approve":  !approveReject && !approveVeto,
	}
	if approveVeto {
		decision["veto"] = true
	}

	c := client.NewClient(apiURL)
	result, err := c.SubmitApproval(context.Background(), args[0], args[1], decision)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(result)
	}
	fmt.Printf("Approval decision submitted: execution=%v stage=%v approver=%v\n", result["execution_id"], result["stage_id"], result["approver"])
	return nil
}
