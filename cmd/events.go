package cmd

import (
	"github.com/alapierre/go-dian-client/dian/config"
	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events <invoice-id>",
	Short: "Print the recorded authority interactions of an invoice, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	store, closer, err := config.OpenEventStore(cmd.Context(), cfg.EventLogDSN)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	records, err := eventlog.New(store).List(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeEvents(cmd.OutOrStdout(), records)
}
