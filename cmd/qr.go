package cmd

import (
	"github.com/alapierre/go-dian-client/dian/qr"
	"github.com/spf13/cobra"
)

var (
	qrOutput string
	qrSize   int
)

var qrCmd = &cobra.Command{
	Use:   "qr <invoice.json>",
	Short: "Render the QR code printed on the graphic representation",
	Args:  cobra.ExactArgs(1),
	RunE:  runQR,
}

func init() {
	rootCmd.AddCommand(qrCmd)
	qrCmd.Flags().StringVarP(&qrOutput, "output", "o", "qr.png", "PNG file, - for stdout")
	qrCmd.Flags().IntVar(&qrSize, "size", qr.DefaultSize, "Image edge in pixels")
}

func runQR(cmd *cobra.Command, args []string) error {
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
	png, err := qr.PNG(doc.QRPayload(), qrSize)
	if err != nil {
		return err
	}
	return writeFile(qrOutput, png)
}
