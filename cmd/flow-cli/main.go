/*-------------------------------------------------------------------------
 *
 * main.go
 *    Root command and global flags for flow-cli
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/cmd/flow-cli/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL       string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "flow-cli",
	Short: "NeuronFlow CLI - Workflow orchestration management",
	Long: `NeuronFlow CLI provides commands for registering, executing, and
monitoring content workflows.

Examples:
  # Register a workflow from a YAML file
  flow-cli workflow register pipeline.yaml

  # Execute a workflow
  flow-cli workflow execute blog-pipeline --input '{"topic":"databases"}'

  # Show an execution
  flow-cli execution show <execution-id>

  # Resolve a pending human review
  flow-cli execution review <execution-id> <stage-id> --reviewer alice --decision approved
`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "url", getEnvOrDefault("NEURONFLOW_URL", "http://localhost:8085"), "NeuronFlow API URL")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format (text, json)")

	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(executionCmd)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
