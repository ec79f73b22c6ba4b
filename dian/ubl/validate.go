package ubl

import (
	"fmt"
	"strings"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/model"
	"github.com/shopspring/decimal"
)

func (b *Builder) validate(inv *model.Invoice) error {
	if inv == nil {
		return dian.NewValidationError("invoice", nil, "required", "invoice is nil")
	}
	if inv.ID() == "" {
		return dian.NewValidationError("number", inv.Number, "positive", "invoice number must be positive")
	}

	catalog := b.registry.Catalog()
	if _, ok := catalog.DocumentType(inv.DocumentType); !ok {
		return dian.NewValidationError("documentType", inv.DocumentType, "catalog", "unknown document type")
	}
	if inv.IssuedAt.IsZero() {
		return dian.NewValidationError("issuedAt", nil, "required", "issue timestamp is missing")
	}

	if err := validateSupplier(inv.Supplier); err != nil {
		return err
	}
	if err := validateCustomer(catalog, inv.Customer); err != nil {
		return err
	}

	if len(inv.Lines) == 0 {
		return dian.NewValidationError("lines", 0, "min=1", "document must have at least one line")
	}
	for i, l := range inv.Lines {
		if err := validateLine(b.registry, i, l); err != nil {
			return err
		}
	}

	switch inv.DocumentType {
	case dian.DocCreditNote, dian.DocDebitNote:
		ref := inv.BillingReference
		if ref == nil {
			return dian.NewValidationError("billingReference", nil, "required", "notes must reference the corrected invoice")
		}
		if ref.InvoiceID == "" || ref.CUFE == "" {
			return dian.NewValidationError("billingReference", ref.InvoiceID, "required", "referenced invoice id and CUFE are required")
		}
	default:
		if err := validateResolution(inv); err != nil {
			return err
		}
	}
	return nil
}

func validateSupplier(p model.Party) error {
	if p.IDType != dian.IDNIT {
		return dian.NewValidationError("supplier.idType", p.IDType, "eq="+dian.IDNIT, "supplier must be identified by NIT")
	}
	if strings.TrimSpace(p.Name) == "" {
		return dian.NewValidationError("supplier.name", nil, "required", "supplier name is missing")
	}
	return validateNIT("supplier", p)
}

func validateCustomer(catalog dian.RegulatoryCatalog, p model.Party) error {
	if p.ID == "" {
		return dian.NewValidationError("customer.id", nil, "required", "customer identification is missing")
	}
	if _, ok := catalog.IdentificationType(p.IDType); !ok {
		return dian.NewValidationError("customer.idType", p.IDType, "catalog", "unknown identification type")
	}
	if p.IDType == dian.IDNIT {
		return validateNIT("customer", p)
	}
	return nil
}

func validateNIT(role string, p model.Party) error {
	if len(p.ID) < 9 || len(p.ID) > 10 {
		return dian.NewValidationError(role+".id", p.ID, "len=9..10", "NIT must have 9 or 10 digits")
	}
	dv, err := NITCheckDigit(p.ID)
	if err != nil {
		return dian.NewValidationError(role+".id", p.ID, "digits", err.Error())
	}
	if p.CheckDigit != "" && p.CheckDigit != dv {
		return dian.NewValidationError(role+".checkDigit", p.CheckDigit, "dv", fmt.Sprintf("check digit does not match, expected %s", dv))
	}
	return nil
}

func validateLine(registry *dian.Registry, i int, l model.Line) error {
	field := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }

	if strings.TrimSpace(l.Description) == "" {
		return dian.NewValidationError(field("description"), nil, "required", "line description is missing")
	}
	if !l.Quantity.IsPositive() {
		return dian.NewValidationError(field("quantity"), l.Quantity.String(), "gt=0", "quantity must be positive")
	}
	if l.UnitPrice.IsNegative() {
		return dian.NewValidationError(field("unitPrice"), l.UnitPrice.String(), "gte=0", "unit price must not be negative")
	}
	if _, ok := registry.Catalog().TaxCode(l.TaxCode); !ok {
		return dian.NewValidationError(field("taxCode"), l.TaxCode, "catalog", "unknown tax code")
	}
	if !registry.IsValidTaxRate(l.TaxRate) {
		return dian.NewValidationError(field("taxRate"), l.TaxRate.String(), "catalog", "tax rate is not in the regulatory catalog")
	}
	return nil
}

func validateResolution(inv *model.Invoice) error {
	r := inv.Resolution
	if r.Number == "" {
		return dian.NewValidationError("resolution.number", nil, "required", "invoices require a numbering resolution")
	}
	if r.TechnicalKey == "" {
		return dian.NewValidationError("resolution.technicalKey", nil, "required", "technical key is missing")
	}
	if r.Prefix != inv.Prefix {
		return dian.NewValidationError("prefix", inv.Prefix, "eq="+r.Prefix, "prefix differs from the resolution prefix")
	}
	if !r.Covers(inv.Number) {
		return dian.NewValidationError("number", inv.Number, fmt.Sprintf("range=%d..%d", r.From, r.To), "number outside the authorized range")
	}
	if !r.ValidFrom.IsZero() && inv.IssuedAt.Before(r.ValidFrom) {
		return dian.NewValidationError("issuedAt", inv.IssuedAt, "resolution.validFrom", "issued before the resolution starts")
	}
	if !r.ValidTo.IsZero() && inv.IssuedAt.After(r.ValidTo) {
		return dian.NewValidationError("issuedAt", inv.IssuedAt, "resolution.validTo", "issued after the resolution expired")
	}
	return nil
}

// reconcile compares the stated totals with the ones recomputed from the
// lines, tolerating Epsilon per amount.
func reconcile(stated model.Totals, c computed) error {
	check := func(field string, stated, actual decimal.Decimal) error {
		if stated.Sub(actual).Abs().GreaterThan(Epsilon) {
			return dian.NewValidationError(field, stated.String(), "sum", fmt.Sprintf("stated total differs from computed %s", actual.StringFixed(2)))
		}
		return nil
	}
	if err := check("totals.lineExtension", stated.LineExtension, c.lineExtension); err != nil {
		return err
	}
	if err := check("totals.tax", stated.Tax, c.tax); err != nil {
		return err
	}
	return check("totals.payable", stated.Payable, c.payable)
}
