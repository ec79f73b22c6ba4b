package cmd

import (
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

var sendSignedOutput string

var sendCmd = &cobra.Command{
	Use:   "send <invoice.json>",
	Short: "Build, sign and transmit an invoice",
	Long: `Runs the whole issuing pipeline and records the authority answer in the
event log. Exits with an error unless the invoice ends Accepted or Submitted.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendSignedOutput, "signed-output", "", "Also write the signed XML to this file")
}

func runSend(cmd *cobra.Command, args []string) error {
	inv, err := readInvoice(args[0])
	if err != nil {
		return err
	}
	cred, err := cfg.Credential()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out, err := a.pipeline.Issue(ctx, inv, cred)
	if out != nil {
		if out.Signed != nil && sendSignedOutput != "" {
			if werr := writeFile(sendSignedOutput, out.Signed.Bytes()); werr != nil {
				return werr
			}
		}
		if werr := writeOutcome(cmd.OutOrStdout(), out); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	return outcomeError(out.State, out.Err())
}

func outcomeError(s lifecycle.State, err error) error {
	switch s {
	case lifecycle.Accepted, lifecycle.Submitted:
		return nil
	}
	if err != nil {
		return err
	}
	return errors.Errorf("invoice ended %s", s)
}
