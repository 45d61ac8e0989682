package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/nodeloom/nodeloom/pkg/client"
	"github.com/nodeloom/nodeloom/pkg/log"
	"github.com/nodeloom/nodeloom/pkg/stream"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute a workflow on the server and stream the output",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "server",
				Usage:    "Base URL of the workflow API",
				Required: true,
				Sources:  cli.EnvVars("NODELOOM_SERVER"),
			},
			&cli.StringFlag{
				Name:    "csrf-token",
				Usage:   "CSRF token for mutating requests",
				Sources: cli.EnvVars("NODELOOM_CSRF_TOKEN"),
			},
			&cli.StringSliceFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Workflow input as key=value (repeatable)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workflowID := command.Args().First()
			if workflowID == "" {
				return fmt.Errorf("workflow id argument is required")
			}

			token := command.String("csrf-token")

			api, err := client.New(client.Config{
				BaseURL:   command.String("server"),
				CSRFToken: func() string { return token },
			})
			if err != nil {
				return err
			}

			inputs, err := parseInputs(command.StringSlice("input"))
			if err != nil {
				return err
			}

			return streamRun(ctx, api, workflowID, inputs)
		},
	}
}

func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	inputs := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q, expected key=value", pair)
		}

		inputs[key] = value
	}

	return inputs, nil
}

func streamRun(ctx context.Context, api *client.Client, workflowID string, inputs map[string]any) error {
	// Chunks are cumulative; printing only the delta keeps stdout readable.
	printed := make(map[string]int)

	var failed error

	handle, err := api.ExecuteStream(ctx, workflowID, inputs, stream.Callbacks{
		OnWorkflowStart: func() {
			fmt.Fprintln(os.Stderr, "run started")
		},
		OnNodeStart: func(nodeID, nodeName string) {
			if nodeName != "" {
				fmt.Fprintf(os.Stderr, "→ %s (%s)\n", nodeID, nodeName)

				return
			}

			fmt.Fprintf(os.Stderr, "→ %s\n", nodeID)
		},
		OnChunk: func(nodeID, accumulated string, _ int) {
			fmt.Print(accumulated[printed[nodeID]:])
			printed[nodeID] = len(accumulated)
		},
		OnNodeEnd: func(nodeID, output string, usage stream.Usage) {
			fmt.Fprintf(os.Stderr, "✓ %s (cost %.4f, %d tokens)\n", nodeID, usage.Cost, usage.TokensUsed)
		},
		OnNodeComplete: func(nodeID, output string, cost float64) {
			fmt.Fprintf(os.Stderr, "✓ %s (cost %.4f)\n", nodeID, cost)
		},
		OnWorkflowComplete: func(finalOutput string, totalCost float64) {
			fmt.Println()
			fmt.Fprintf(os.Stderr, "run complete, total cost %.4f\n", totalCost)
		},
		OnError: func(nodeID, message string) {
			if nodeID == "" {
				failed = fmt.Errorf("run failed: %s", message)

				return
			}

			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", nodeID, message)
		},
	})
	if err != nil {
		return err
	}

	<-handle.Done()

	if err := handle.Err(); err != nil {
		return err
	}

	return failed
}
