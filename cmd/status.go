package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <invoice-id>",
	Short: "Query DIAN once for the status of a submitted invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out, err := a.pipeline.Poll(ctx, args[0])
	if out != nil {
		if werr := writeOutcome(cmd.OutOrStdout(), out); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	return outcomeError(out.State, out.Err())
}
