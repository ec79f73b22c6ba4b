package cmd

import (
	"os"

	"github.com/alapierre/go-dian-client/dian/sign"
	"github.com/alapierre/go-dian-client/dian/ubl"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

var signOutput string

var signCmd = &cobra.Command{
	Use:   "sign <invoice.xml>",
	Short: "Sign a built UBL document with the configured certificate",
	Args:  cobra.ExactArgs(1),
	RunE:  runSign,
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringVarP(&signOutput, "output", "o", "-", "Output file, - for stdout")
}

func runSign(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "read document")
	}
	doc, err := ubl.FromBytes(data)
	if err != nil {
		return err
	}
	cred, err := cfg.Credential()
	if err != nil {
		return err
	}
	signed, err := sign.NewSigner().Sign(doc, cred)
	if err != nil {
		return err
	}
	return writeFile(signOutput, signed.Bytes())
}
