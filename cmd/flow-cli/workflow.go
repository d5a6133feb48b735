/*-------------------------------------------------------------------------
 *
 * workflow.go
 *    Workflow management commands for flow-cli
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/cmd/flow-cli/workflow.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/neurondb/NeuronFlow/pkg/client"
)

var (
	executeInput string
	executeAsync bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage workflows",
	Long:  "Register, list, execute, and inspect workflows",
}

var workflowRegisterCmd = &cobra.Command{
	Use:   "register [file]",
	Short: "Register workflow from YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegisterWorkflow,
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workflows",
	RunE:  runListWorkflows,
}

var workflowShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show workflow definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowWorkflow,
}

var workflowExecuteCmd = &cobra.Command{
	Use:   "execute [id]",
	Short: "Execute a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecuteWorkflow,
}

var workflowMetricsCmd = &cobra.Command{
	Use:   "metrics [id]",
	Short: "Show aggregated workflow metrics",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowMetrics,
}

func init() {
	workflowExecuteCmd.Flags().StringVar(&executeInput, "input", "{}", "Workflow input as JSON")
	workflowExecuteCmd.Flags().BoolVar(&executeAsync, "async", false, "Return immediately with the execution id")

	workflowCmd.AddCommand(workflowRegisterCmd)
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowExecuteCmd)
	workflowCmd.AddCommand(workflowMetricsCmd)
}

func runRegisterWorkflow(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read workflow file: %w", err)
	}

	var definition map[string]interface{}
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return fmt.Errorf("failed to parse workflow file: %w", err)
	}

	c := client.NewClient(apiURL)
	result, err := c.RegisterWorkflow(context.Background(), definition)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}
	fmt.Printf("Workflow registered: %v (%v stages)\n", result["workflow_id"], result["stage_count"])
	return nil
}

func runListWorkflows(cmd *cobra.Command, args []string) error {
	c := client.NewClient(apiURL)
	result, err := c.ListWorkflows(context.Background())
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}
	workflows, _ := result["workflows"].([]interface{})
	if len(workflows) == 0 {
		fmt.Println("No workflows registered")
		return nil
	}
	for _, id := range workflows {
		fmt.Println(id)
	}
	return nil
}

func runShowWorkflow(cmd *cobra.Command, args []string) error {
	c := client.NewClient(apiURL)
	result, err := c.GetWorkflow(context.Background(), args[0])
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runExecuteWorkflow(cmd *cobra.Command, args []string) error {
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(executeInput), &input); err != nil {
		return fmt.Errorf("invalid --input JSON: %w", err)
	}

	c := client.NewClient(apiURL)
	result, err := c.ExecuteWorkflow(context.Background(), args[0], input, executeAsync)
	if err != nil {
		return err
	}

	if outputFormat == "json" || !executeAsync {
		return printJSON(result)
	}
	fmt.Printf("Execution started: %v\n", result["execution_id"])
	return nil
}

func runWorkflowMetrics(cmd *cobra.Command, args []string) error {
	c := client.NewClient(apiURL)
	result, err := c.GetWorkflowMetrics(context.Background(), args[0])
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
