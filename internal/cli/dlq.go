package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewDLQCmd создаёт группу команд для dead-letter очередей.
func NewDLQCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect dead-letter queues",
	}

	cmd.AddCommand(newDLQListCmd(clientFn, outputFn))
	return cmd
}

func newDLQListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list QUEUE",
		Short: "List messages in the dead-letter queue of QUEUE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := clientFn().ListDeadLetters(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "RECEIVES", "REASON", "DEAD_LETTERED", "BODY"}
			rows := make([][]string, len(msgs))
			for i, m := range msgs {
				rows[i] = []string{m.ID, strconv.Itoa(m.ReceiveCount), m.Reason, m.DeadLetteredAt, string(m.Body)}
			}

			outputFn().Render(headers, rows, msgs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of messages")
	return cmd
}
