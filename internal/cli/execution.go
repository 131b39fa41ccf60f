package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для execution'ов.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Inspect executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionGetCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListExecutionsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			execs, err := clientFn().ListExecutions(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE", "STATUS", "STEPS", "CREATED"}
			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = []string{e.ID, e.Pipeline, e.Status, strconv.Itoa(len(e.Steps)), e.CreatedAt}
			}

			outputFn().Render(headers, rows, execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "Filter by pipeline")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (RUNNING, SUCCEEDED, FAILED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newExecutionGetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show execution details and its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exec, err := clientFn().GetExecution(cmd.Context(), args[0])
			if IsNotFound(err) {
				return fmt.Errorf("execution %s not found", args[0])
			}
			if err != nil {
				return err
			}

			out := outputFn()
			out.Detail([][2]string{
				{"ID", exec.ID},
				{"Pipeline", exec.Pipeline},
				{"Status", exec.Status},
				{"Error", exec.Error},
				{"Input", string(exec.Input)},
				{"Output", string(exec.Output)},
				{"Created", exec.CreatedAt},
				{"Finished", exec.FinishedAt},
			}, exec)

			if out.JSONMode() || len(exec.Steps) == 0 {
				return nil
			}
			rows := make([][]string, len(exec.Steps))
			for i, s := range exec.Steps {
				rows[i] = []string{s.Name, s.Status, strconv.Itoa(s.Attempts), s.Error}
			}
			out.Table([]string{"STEP", "STATUS", "ATTEMPTS", "ERROR"}, rows)
			return nil
		},
	}
}
