package cmd

import (
	"crypto/x509"
	"fmt"
	"os"

	"github.com/alapierre/go-dian-client/dian/keys"
	"github.com/alapierre/go-dian-client/dian/sign"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

var caFiles []string

var verifyCmd = &cobra.Command{
	Use:   "verify <signed.xml>",
	Short: "Verify the XML signature of a signed document",
	Long: `Checks the enveloped signature. Without --ca the certificate embedded in
the document is trusted, which only proves integrity.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringSliceVar(&caFiles, "ca", nil, "Trusted certificate (PEM or DER), repeatable")
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "read document")
	}

	var trusted []*x509.Certificate
	for _, f := range caFiles {
		c, err := keys.LoadCertificateFromFile(f)
		if err != nil {
			return err
		}
		trusted = append(trusted, c)
	}

	if err := sign.NewSigner().Verify(data, trusted...); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "signature OK")
	return nil
}
