package ubl

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/shopspring/decimal"
)

// CUFEInput carries the fields concatenated into a CUFE (invoices) or a
// CUDE (notes, Key is then the software PIN instead of the technical key).
type CUFEInput struct {
	Number        string
	IssueDate     string
	IssueTime     string
	LineExtension decimal.Decimal
	IVA           decimal.Decimal
	INC           decimal.Decimal
	ICA           decimal.Decimal
	Total         decimal.Decimal
	SupplierNIT   string
	CustomerID    string
	Key           string
	Environment   dian.Environment
}

// Chain is the exact string that gets hashed:
// NumFac FecFac HorFac ValFac 01 ValImp1 04 ValImp2 03 ValImp3 ValTot NitOFE NumAdq ClTec TipoAmb
func (in CUFEInput) Chain() string {
	var b strings.Builder
	b.WriteString(in.Number)
	b.WriteString(in.IssueDate)
	b.WriteString(in.IssueTime)
	b.WriteString(in.LineExtension.StringFixed(2))
	b.WriteString(dian.TaxIVA)
	b.WriteString(in.IVA.StringFixed(2))
	b.WriteString(dian.TaxConsumption)
	b.WriteString(in.INC.StringFixed(2))
	b.WriteString(dian.TaxICA)
	b.WriteString(in.ICA.StringFixed(2))
	b.WriteString(in.Total.StringFixed(2))
	b.WriteString(in.SupplierNIT)
	b.WriteString(in.CustomerID)
	b.WriteString(in.Key)
	b.WriteString(in.Environment.AmbientCode())
	return b.String()
}

// ComputeCUFE returns the lowercase hex SHA-384 of the chain, 96 characters.
func ComputeCUFE(in CUFEInput) string {
	sum := sha512.Sum384([]byte(in.Chain()))
	return hex.EncodeToString(sum[:])
}

// SoftwareSecurityCode is SHA-384(softwareID + PIN + document number).
func SoftwareSecurityCode(softwareID, pin, number string) string {
	sum := sha512.Sum384([]byte(softwareID + pin + number))
	return hex.EncodeToString(sum[:])
}

var nitPrimes = []int{3, 7, 13, 17, 19, 23, 29, 37, 41, 43, 47, 53, 59, 67, 71}

// NITCheckDigit computes the DIAN verification digit (DV) of a NIT.
func NITCheckDigit(nit string) (string, error) {
	if nit == "" {
		return "", fmt.Errorf("nit is empty")
	}
	if len(nit) > len(nitPrimes) {
		return "", fmt.Errorf("nit %q is longer than %d digits", nit, len(nitPrimes))
	}

	sum := 0
	for i, r := range nit {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("nit %q contains non digit characters", nit)
		}
		sum += int(r-'0') * nitPrimes[len(nit)-1-i]
	}

	rest := sum % 11
	if rest > 1 {
		rest = 11 - rest
	}
	return strconv.Itoa(rest), nil
}
