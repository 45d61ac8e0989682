package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/nodeloom/nodeloom/pkg/graph"
	"github.com/nodeloom/nodeloom/pkg/log"
	"github.com/nodeloom/nodeloom/pkg/wire"
)

func main() {
	command := &cli.Command{
		Name:                  "nodeloom",
		Usage:                 "Validate, order and run workflow graphs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Aliases:   []string{"v"},
				Usage:     "Validate a workflow file against connection and structure rules",
				ArgsUsage: "<workflow.json>",
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return validateFile(command.Args().First())
				},
			},
			{
				Name:      "sort",
				Aliases:   []string{"s"},
				Usage:     "Print the execution order of a workflow file",
				ArgsUsage: "<workflow.json>",
				Action: func(ctx context.Context, command *cli.Command) error {
					log.Setup(command.String("log-level"))

					return sortFile(command.Args().First())
				},
			},
			runCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadWorkflow(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("workflow file argument is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	return raw, nil
}

func validateFile(path string) error {
	raw, err := loadWorkflow(path)
	if err != nil {
		return err
	}

	dto, err := wire.Decode(raw)
	if err != nil {
		return err
	}

	nodes, edges, _ := wire.Deserialize(dto)

	if errs := graph.ValidateWorkflow(nodes, edges); len(errs) > 0 {
		for _, msg := range errs {
			fmt.Println("✗", msg)
		}

		return fmt.Errorf("workflow has %d validation error(s)", len(errs))
	}

	fmt.Println("✓ workflow is valid")

	return nil
}

func sortFile(path string) error {
	raw, err := loadWorkflow(path)
	if err != nil {
		return err
	}

	dto, err := wire.Decode(raw)
	if err != nil {
		return err
	}

	nodes, edges, _ := wire.Deserialize(dto)

	order, ok := graph.TopologicalSort(nodes, edges)
	if !ok {
		return fmt.Errorf("workflow contains cycles")
	}

	for i, id := range order {
		fmt.Printf("%d. %s\n", i+1, id)
	}

	return nil
}
