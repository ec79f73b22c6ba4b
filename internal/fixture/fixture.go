// Package fixture holds sample invoices shared by tests.
package fixture

import (
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/model"
	"github.com/shopspring/decimal"
)

var Software = model.Software{
	ID:          "56f2ae4e-9812-4fad-9255-08fcfcd5ccb0",
	PIN:         "12345",
	ProviderNIT: "900123456",
}

// Invoice returns a sale invoice with one 19% line and one 0% line:
// 130.00 before tax, 19.00 IVA, 149.00 payable.
func Invoice() *model.Invoice {
	cot := time.FixedZone("COT", -5*60*60)
	return &model.Invoice{
		Prefix:       "SETP",
		Number:       990000001,
		DocumentType: dian.DocSaleInvoice,
		IssuedAt:     time.Date(2024, 1, 15, 10, 30, 0, 0, cot),
		Supplier: model.Party{
			Name:         "Tienda Ejemplo SAS",
			IDType:       dian.IDNIT,
			ID:           "900123456",
			CheckDigit:   "8",
			TaxLevelCode: "O-13",
			Email:        "facturacion@tienda.example",
			Address: model.Address{
				CityCode:       "11001",
				City:           "Bogotá, D.C.",
				DepartmentCode: "11",
				Department:     "Bogotá",
				Line:           "Calle 100 # 10-20",
			},
		},
		Customer: model.Party{
			Name:   "Juan Pérez",
			IDType: dian.IDCitizenCard,
			ID:     "1234567890",
			Person: true,
		},
		Lines: []model.Line{
			{
				Description: "Arroz 500g",
				Code:        "7701234567890",
				Quantity:    decimal.NewFromInt(2),
				UnitPrice:   decimal.RequireFromString("50.00"),
				TaxCode:     dian.TaxIVA,
				TaxRate:     decimal.NewFromInt(19),
			},
			{
				Description: "Huevos x12",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.RequireFromString("30.00"),
				TaxCode:     dian.TaxIVA,
				TaxRate:     decimal.Zero,
			},
		},
		Totals: model.Totals{
			LineExtension: decimal.RequireFromString("130.00"),
			Tax:           decimal.RequireFromString("19.00"),
			Payable:       decimal.RequireFromString("149.00"),
		},
		Resolution: model.Resolution{
			Number:       "18760000001",
			Prefix:       "SETP",
			From:         990000000,
			To:           995000000,
			ValidFrom:    time.Date(2019, 1, 19, 0, 0, 0, 0, cot),
			ValidTo:      time.Date(2030, 1, 19, 0, 0, 0, 0, cot),
			TechnicalKey: "fc8eac422eba16e22ffd8c6f94b3f40a6e38162c",
		},
	}
}

// CreditNote returns a credit note correcting the Invoice fixture.
func CreditNote() *model.Invoice {
	inv := Invoice()
	inv.Prefix = "NC"
	inv.Number = 1
	inv.DocumentType = dian.DocCreditNote
	inv.Resolution = model.Resolution{}
	inv.BillingReference = &model.BillingReference{
		InvoiceID:   "SETP990000001",
		CUFE:        "8bb918b19ba22a694f1da11c643b5e9de39adf60311cf179179e9b33381030bcd4c3c3f156c506ed5908f9276f5bd9b4",
		IssuedAt:    inv.IssuedAt,
		ReasonCode:  "2",
		Description: "Anulación de factura electrónica",
	}
	return inv
}
