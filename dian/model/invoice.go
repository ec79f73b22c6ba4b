package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the fully priced payload handed over by the sales system.
type Invoice struct {
	Prefix       string     `json:"prefix"`
	Number       int64      `json:"number"`
	DocumentType string     `json:"documentType"`
	IssuedAt     time.Time  `json:"issuedAt"`
	Currency     string     `json:"currency,omitempty"`
	Note         string     `json:"note,omitempty"`
	Supplier     Party      `json:"supplier"`
	Customer     Party      `json:"customer"`
	Lines        []Line     `json:"lines"`
	Totals       Totals     `json:"totals"`
	Resolution   Resolution `json:"resolution"`

	// BillingReference is mandatory for debit and credit notes.
	BillingReference *BillingReference `json:"billingReference,omitempty"`
}

// ID is the invoice identifier as printed on the document (prefix + number).
func (i *Invoice) ID() string {
	if i.Number <= 0 {
		return ""
	}
	return i.Prefix + strconv.FormatInt(i.Number, 10)
}

func (i *Invoice) CurrencyCode() string {
	if i.Currency == "" {
		return "COP"
	}
	return i.Currency
}

type Party struct {
	Name         string  `json:"name"`
	IDType       string  `json:"idType"`
	ID           string  `json:"id"`
	CheckDigit   string  `json:"checkDigit,omitempty"`
	TaxLevelCode string  `json:"taxLevelCode,omitempty"`
	Email        string  `json:"email,omitempty"`
	Address      Address `json:"address"`
	// Person marks natural persons (AdditionalAccountID 2), legal entities otherwise.
	Person bool `json:"person,omitempty"`
}

type Address struct {
	CityCode       string `json:"cityCode,omitempty"`
	City           string `json:"city,omitempty"`
	DepartmentCode string `json:"departmentCode,omitempty"`
	Department     string `json:"department,omitempty"`
	Line           string `json:"line,omitempty"`
	Country        string `json:"country,omitempty"`
}

type Line struct {
	Description string          `json:"description"`
	Code        string          `json:"code,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCode    string          `json:"unitCode,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxCode     string          `json:"taxCode"`
	TaxRate     decimal.Decimal `json:"taxRate"`
}

// Subtotal is quantity times unit price rounded to centavos.
func (l Line) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(2)
}

// Tax is the line tax amount rounded to centavos.
func (l Line) Tax() decimal.Decimal {
	return l.Subtotal().Mul(l.TaxRate).Div(decimal.NewFromInt(100)).Round(2)
}

// Totals are the amounts stated by the upstream system. The builder
// reconciles them against the lines.
type Totals struct {
	LineExtension decimal.Decimal `json:"lineExtension"`
	Tax           decimal.Decimal `json:"tax"`
	Payable       decimal.Decimal `json:"payable"`
}

// Resolution is the DIAN numbering authorization the invoice number belongs to.
type Resolution struct {
	Number       string    `json:"number"`
	Prefix       string    `json:"prefix"`
	From         int64     `json:"from"`
	To           int64     `json:"to"`
	ValidFrom    time.Time `json:"validFrom"`
	ValidTo      time.Time `json:"validTo"`
	TechnicalKey string    `json:"technicalKey"`
}

func (r Resolution) Covers(number int64) bool {
	return number >= r.From && number <= r.To
}

type BillingReference struct {
	InvoiceID string    `json:"invoiceId"`
	CUFE      string    `json:"cufe"`
	IssuedAt  time.Time `json:"issuedAt"`
	// ReasonCode is the DIAN concept code of the correction.
	ReasonCode  string `json:"reasonCode,omitempty"`
	Description string `json:"description,omitempty"`
}

// Software identifies the invoicing software registered at DIAN.
type Software struct {
	ID          string `json:"id"`
	PIN         string `json:"pin"`
	ProviderNIT string `json:"providerNit"`
}
