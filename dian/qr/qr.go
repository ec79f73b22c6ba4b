package qr

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

var logger = logrus.WithField("component", "dian.qr")

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 300

// Payload is the content of the sts:QRCode element and of the printed code.
type Payload struct {
	Number        string
	IssueDate     string
	IssueTime     string
	SupplierNIT   string
	CustomerID    string
	LineExtension decimal.Decimal
	IVA           decimal.Decimal
	OtherTaxes    decimal.Decimal
	Total         decimal.Decimal
	CUFE          string
	SearchURL     string
}

// String renders the payload in DIAN annex order, one "Key: value" per line.
func (p Payload) String() string {
	var b strings.Builder
	line := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	line("NumFac", p.Number)
	line("FecFac", p.IssueDate)
	line("HorFac", p.IssueTime)
	line("NitFac", p.SupplierNIT)
	line("DocAdq", p.CustomerID)
	line("ValFac", p.LineExtension.StringFixed(2))
	line("ValIva", p.IVA.StringFixed(2))
	line("ValOtroIm", p.OtherTaxes.StringFixed(2))
	line("ValTolFac", p.Total.StringFixed(2))
	line("CUFE", p.CUFE)
	b.WriteString("QRCode: ")
	b.WriteString(p.SearchURL)
	return b.String()
}

// SearchURL maps the validation endpoint of an environment onto the public
// document lookup used in printed QR codes:
// https://{catalog-host}/document/searchqr?documentkey={CUFE}
func SearchURL(validationEndpoint, cufe string) (string, error) {
	if strings.TrimSpace(validationEndpoint) == "" {
		return "", fmt.Errorf("validation endpoint is empty")
	}
	if cufe == "" {
		return "", fmt.Errorf("cufe is empty")
	}

	u, err := url.Parse(strings.TrimSpace(validationEndpoint))
	if err != nil {
		return "", fmt.Errorf("invalid validation endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("validation endpoint must include scheme and host, got: %q", validationEndpoint)
	}

	u.Path = "/document/searchqr"
	u.RawQuery = url.Values{"documentkey": []string{cufe}}.Encode()
	u.Fragment = ""

	return u.String(), nil
}

// PNG renders content as a QR code image.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	logger.WithField("bytes", len(content)).Debug("rendering QR code")
	return qrcode.Encode(content, qrcode.Medium, size)
}
