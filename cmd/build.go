package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var buildOutput string

var buildCmd = &cobra.Command{
	Use:   "build <invoice.json>",
	Short: "Build the unsigned UBL document of an invoice",
	Long: `Validates the invoice, reconciles its totals and writes the UBL 2.1 XML.
The CUFE (CUDE for notes) is printed on stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "-", "Output file, - for stdout")
}

func runBuild(cmd *cobra.Command, args []string) error {
	inv, err := readInvoice(args[0])
	if err != nil {
		return err
	}
	b, err := newBuilder()
	if err != nil {
		return err
	}
	doc, err := b.Build(inv)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", doc.ID(), doc.CUFE())
	return writeFile(buildOutput, doc.Bytes())
}
