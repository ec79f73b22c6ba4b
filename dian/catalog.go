package dian

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// Document type codes (DIAN "TipoFactura" / note codes).
const (
	DocSaleInvoice        = "01"
	DocExportInvoice      = "02"
	DocContingencyInvoice = "03"
	DocAIUInvoice         = "04"
	DocDebitNote          = "91"
	DocCreditNote         = "92"
)

// Tax scheme codes.
const (
	TaxIVA         = "01"
	TaxINC         = "02"
	TaxICA         = "03"
	TaxConsumption = "04"
)

// Identification document type codes.
const (
	IDCivilRegistry   = "11"
	IDIdentityCard    = "12"
	IDCitizenCard     = "13"
	IDForeignerCard   = "21"
	IDForeignerID     = "22"
	IDNIT             = "31"
	IDPassport        = "41"
	IDForeignDocument = "42"
	IDNUIP            = "50"
)

// ResponseOutcome is the meaning the catalog assigns to an authority status code.
type ResponseOutcome int

const (
	ResponseUnknown ResponseOutcome = iota
	ResponsePending
	ResponseAccepted
	ResponseRejected
)

func (o ResponseOutcome) String() string {
	switch o {
	case ResponsePending:
		return "pending"
	case ResponseAccepted:
		return "accepted"
	case ResponseRejected:
		return "rejected"
	}
	return "unknown"
}

// CatalogTables are the raw code tables given to NewCatalog.
type CatalogTables struct {
	DocumentTypes       map[string]string
	TaxCodes            map[string]string
	IdentificationTypes map[string]string
	TaxRates            []decimal.Decimal
	ResponseCodes       map[string]ResponseOutcome
}

// RegulatoryCatalog holds the fixed code tables of a jurisdiction. The zero
// value is empty; use DefaultCatalog or NewCatalog. A catalog is never
// modified after construction, accessors hand out copies.
type RegulatoryCatalog struct {
	documentTypes map[string]string
	taxCodes      map[string]string
	idTypes       map[string]string
	taxRates      []decimal.Decimal
	responses     map[string]ResponseOutcome
}

func NewCatalog(tables CatalogTables) (RegulatoryCatalog, error) {
	if len(tables.DocumentTypes) == 0 {
		return RegulatoryCatalog{}, Configurationf("catalog has no document types")
	}
	if len(tables.TaxCodes) == 0 {
		return RegulatoryCatalog{}, Configurationf("catalog has no tax codes")
	}
	if len(tables.TaxRates) == 0 {
		return RegulatoryCatalog{}, Configurationf("catalog has no valid tax rates")
	}
	if len(tables.ResponseCodes) == 0 {
		return RegulatoryCatalog{}, Configurationf("catalog has no authority response codes")
	}
	for code, o := range tables.ResponseCodes {
		if o == ResponseUnknown {
			return RegulatoryCatalog{}, Configurationf("response code %q maps to no outcome", code)
		}
	}

	return RegulatoryCatalog{
		documentTypes: maps.Clone(tables.DocumentTypes),
		taxCodes:      maps.Clone(tables.TaxCodes),
		idTypes:       maps.Clone(tables.IdentificationTypes),
		taxRates:      slices.Clone(tables.TaxRates),
		responses:     maps.Clone(tables.ResponseCodes),
	}, nil
}

// DefaultCatalog returns the Colombian catalog, DIAN technical annex 1.8.
func DefaultCatalog() RegulatoryCatalog {
	c, err := NewCatalog(CatalogTables{
		DocumentTypes: map[string]string{
			DocSaleInvoice:        "Factura electrónica de venta",
			DocExportInvoice:      "Factura electrónica de exportación",
			DocContingencyInvoice: "Factura de contingencia",
			DocAIUInvoice:         "Factura AIU",
			DocDebitNote:          "Nota débito",
			DocCreditNote:         "Nota crédito",
		},
		TaxCodes: map[string]string{
			TaxIVA:         "IVA",
			TaxINC:         "INC",
			TaxICA:         "ICA",
			TaxConsumption: "Impuesto al consumo",
		},
		IdentificationTypes: map[string]string{
			IDCivilRegistry:   "Registro civil",
			IDIdentityCard:    "Tarjeta de identidad",
			IDCitizenCard:     "Cédula de ciudadanía",
			IDForeignerCard:   "Tarjeta de extranjería",
			IDForeignerID:     "Cédula de extranjería",
			IDNIT:             "NIT",
			IDPassport:        "Pasaporte",
			IDForeignDocument: "Documento de identificación extranjero",
			IDNUIP:            "NUIP",
		},
		TaxRates: []decimal.Decimal{
			decimal.NewFromInt(0),
			decimal.NewFromInt(5),
			decimal.NewFromInt(19),
		},
		ResponseCodes: map[string]ResponseOutcome{
			"00": ResponseAccepted,
			"02": ResponsePending,
			"66": ResponsePending,
			"04": ResponseRejected,
			"90": ResponseRejected,
			"92": ResponseRejected,
			"99": ResponseRejected,
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}

func (c RegulatoryCatalog) DocumentType(code string) (string, bool) {
	v, ok := c.documentTypes[code]
	return v, ok
}

func (c RegulatoryCatalog) TaxCode(code string) (string, bool) {
	v, ok := c.taxCodes[code]
	return v, ok
}

func (c RegulatoryCatalog) IdentificationType(code string) (string, bool) {
	v, ok := c.idTypes[code]
	return v, ok
}

// IsValidTaxRate is an exact membership test, 19 and 19.00 match,
// 19.0000001 does not.
func (c RegulatoryCatalog) IsValidTaxRate(rate decimal.Decimal) bool {
	for _, r := range c.taxRates {
		if r.Equal(rate) {
			return true
		}
	}
	return false
}

func (c RegulatoryCatalog) TaxRates() []decimal.Decimal {
	return slices.Clone(c.taxRates)
}

func (c RegulatoryCatalog) DocumentTypes() map[string]string {
	return maps.Clone(c.documentTypes)
}

// ResponseOutcome maps an authority status code. Codes missing from the
// table are ResponseUnknown and must not be read as rejections.
func (c RegulatoryCatalog) ResponseOutcome(code string) ResponseOutcome {
	return c.responses[code]
}
