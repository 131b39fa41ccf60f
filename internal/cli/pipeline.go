package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для пайплайнов.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect and start pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineStartCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines and their triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelines, err := clientFn().ListPipelines(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"NAME", "QUEUE", "TIMER", "TICKS", "STEPS", "TIMEOUT"}
			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				timer, ticks := "-", "-"
				if p.Timer != nil {
					timer = p.Timer.Schedule
					if !p.Timer.Enabled {
						timer += " (disabled)"
					}
					ticks = strconv.FormatInt(p.Timer.Ticks, 10)
				}
				queue := p.Queue
				if queue == "" {
					queue = "-"
				}
				rows[i] = []string{p.Name, queue, timer, ticks, strings.Join(p.Steps, ","), p.Timeout}
			}

			outputFn().Render(headers, rows, pipelines)
			return nil
		},
	}
}

func newPipelineStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var input string
	var inputFile string
	var body string

	cmd := &cobra.Command{
		Use:   "start NAME",
		Short: "Start an execution of a pipeline",
		Long: `Start an execution with the given input.

Queue-driven pipelines expect a batch of messages; --body wraps a single
payload as [{"body": <payload>}].`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := startInput(input, inputFile, body)
			if err != nil {
				return err
			}

			started, err := clientFn().StartExecution(cmd.Context(), args[0], raw)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Notice("Execution started: %s", started.ExecutionID)
			out.Render(
				[]string{"EXECUTION_ID", "PIPELINE"},
				[][]string{{started.ExecutionID, started.Pipeline}},
				started,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Execution input as JSON")
	cmd.Flags().StringVarP(&inputFile, "file", "f", "", "Read execution input from a JSON file")
	cmd.Flags().StringVar(&body, "body", "", "Single message payload as JSON, wrapped into a batch")
	cmd.MarkFlagsMutuallyExclusive("input", "file", "body")

	return cmd
}

// startInput собирает input ручного запуска из флагов.
func startInput(input, inputFile, body string) (json.RawMessage, error) {
	switch {
	case inputFile != "":
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		input = string(data)
	case body != "":
		if !json.Valid([]byte(body)) {
			return nil, fmt.Errorf("--body is not valid JSON")
		}
		return json.RawMessage(`[{"body":` + body + `}]`), nil
	}

	if input == "" {
		return nil, nil
	}
	if !json.Valid([]byte(input)) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return json.RawMessage(input), nil
}
