package ubl

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/model"
	"github.com/alapierre/go-dian-client/dian/qr"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "dian.ubl")

// Epsilon absorbs rounding at the smallest currency unit (one centavo).
var Epsilon = decimal.New(1, -2)

const (
	dianAgencyID   = "195"
	dianAgencyName = "CO, DIAN (Dirección de Impuestos y Aduanas Nacionales)"
	dianNIT        = "800197268"
	defaultUnit    = "94"
	defaultLevel   = "R-99-PN"
)

type docKind struct {
	root          string
	ns            string
	typeCode      string
	line          string
	quantity      string
	monetaryTotal string
	profile       string
	customization string
	uuidScheme    string
	note          bool
}

var (
	invoiceKind = docKind{
		root:          "Invoice",
		ns:            NSInvoice,
		typeCode:      "cbc:InvoiceTypeCode",
		line:          "cac:InvoiceLine",
		quantity:      "cbc:InvoicedQuantity",
		monetaryTotal: "cac:LegalMonetaryTotal",
		profile:       "DIAN 2.1: Factura Electrónica de Venta",
		customization: "10",
		uuidScheme:    "CUFE-SHA384",
	}
	creditNoteKind = docKind{
		root:          "CreditNote",
		ns:            NSCreditNote,
		typeCode:      "cbc:CreditNoteTypeCode",
		line:          "cac:CreditNoteLine",
		quantity:      "cbc:CreditedQuantity",
		monetaryTotal: "cac:LegalMonetaryTotal",
		profile:       "DIAN 2.1: Nota Crédito de Factura Electrónica de Venta",
		customization: "20",
		uuidScheme:    "CUDE-SHA384",
		note:          true,
	}
	debitNoteKind = docKind{
		root:          "DebitNote",
		ns:            NSDebitNote,
		line:          "cac:DebitNoteLine",
		quantity:      "cbc:DebitedQuantity",
		monetaryTotal: "cac:RequestedMonetaryTotal",
		profile:       "DIAN 2.1: Nota Débito de Factura Electrónica de Venta",
		customization: "30",
		uuidScheme:    "CUDE-SHA384",
		note:          true,
	}
)

func kindFor(code string) docKind {
	switch code {
	case dian.DocCreditNote:
		return creditNoteKind
	case dian.DocDebitNote:
		return debitNoteKind
	}
	return invoiceKind
}

// Builder turns invoice payloads into UBL 2.1 documents. It holds no mutable
// state and may be shared between goroutines.
type Builder struct {
	registry *dian.Registry
	env      dian.Environment
	software model.Software
}

func NewBuilder(registry *dian.Registry, env dian.Environment, software model.Software) (*Builder, error) {
	if registry == nil {
		return nil, dian.Configurationf("builder requires a registry")
	}
	if !env.Valid() {
		return nil, dian.Configurationf("builder: invalid environment %d", int(env))
	}
	if software.ID == "" || software.PIN == "" {
		return nil, dian.Configurationf("builder requires software id and pin")
	}
	return &Builder{registry: registry, env: env, software: software}, nil
}

type taxGroup struct {
	code    string
	rate    decimal.Decimal
	taxable decimal.Decimal
	amount  decimal.Decimal
}

type computed struct {
	lineExtension decimal.Decimal
	tax           decimal.Decimal
	payable       decimal.Decimal
	groups        []taxGroup
}

func (c computed) taxByCode(code string) decimal.Decimal {
	sum := decimal.Zero
	for _, g := range c.groups {
		if g.code == code {
			sum = sum.Add(g.amount)
		}
	}
	return sum
}

func compute(lines []model.Line) computed {
	c := computed{lineExtension: decimal.Zero, tax: decimal.Zero}
	index := map[string]int{}

	for _, l := range lines {
		sub := l.Subtotal()
		tax := l.Tax()
		c.lineExtension = c.lineExtension.Add(sub)
		c.tax = c.tax.Add(tax)

		key := l.TaxCode + "/" + l.TaxRate.String()
		i, ok := index[key]
		if !ok {
			i = len(c.groups)
			index[key] = i
			c.groups = append(c.groups, taxGroup{code: l.TaxCode, rate: l.TaxRate, taxable: decimal.Zero, amount: decimal.Zero})
		}
		c.groups[i].taxable = c.groups[i].taxable.Add(sub)
		c.groups[i].amount = c.groups[i].amount.Add(tax)
	}

	slices.SortFunc(c.groups, func(a, b taxGroup) int {
		if n := cmp.Compare(a.code, b.code); n != 0 {
			return n
		}
		return a.rate.Cmp(b.rate)
	})

	c.payable = c.lineExtension.Add(c.tax)
	return c
}

// Build validates inv and serializes it. Identical input gives byte
// identical output.
func (b *Builder) Build(inv *model.Invoice) (*Document, error) {
	if err := b.validate(inv); err != nil {
		return nil, err
	}

	totals := compute(inv.Lines)
	if err := reconcile(inv.Totals, totals); err != nil {
		return nil, err
	}

	kind := kindFor(inv.DocumentType)
	issued := inv.IssuedAt.In(bogota)
	issueDate := issued.Format(dateLayout)
	issueTime := issued.Format(timeLayout)

	key := inv.Resolution.TechnicalKey
	if kind.note {
		key = b.software.PIN
	}

	cufe := ComputeCUFE(CUFEInput{
		Number:        inv.ID(),
		IssueDate:     issueDate,
		IssueTime:     issueTime,
		LineExtension: totals.lineExtension,
		IVA:           totals.taxByCode(dian.TaxIVA),
		INC:           totals.taxByCode(dian.TaxConsumption),
		ICA:           totals.taxByCode(dian.TaxICA),
		Total:         totals.payable,
		SupplierNIT:   inv.Supplier.ID,
		CustomerID:    inv.Customer.ID,
		Key:           key,
		Environment:   b.env,
	})

	validation, err := b.registry.ResolveEndpoint(b.env, dian.Validation)
	if err != nil {
		return nil, err
	}
	searchURL, err := qr.SearchURL(validation, cufe)
	if err != nil {
		return nil, errors.Wrap(err, "qr search url")
	}
	payload := qr.Payload{
		Number:        inv.ID(),
		IssueDate:     issueDate,
		IssueTime:     issueTime,
		SupplierNIT:   inv.Supplier.ID,
		CustomerID:    inv.Customer.ID,
		LineExtension: totals.lineExtension,
		IVA:           totals.taxByCode(dian.TaxIVA),
		OtherTaxes:    totals.tax.Sub(totals.taxByCode(dian.TaxIVA)),
		Total:         totals.payable,
		CUFE:          cufe,
		SearchURL:     searchURL,
	}.String()

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="no"`)

	root := doc.CreateElement(kind.root)
	root.CreateAttr("xmlns", kind.ns)
	for _, ns := range namespaces {
		root.CreateAttr("xmlns:"+ns.Prefix, ns.URI)
	}

	b.extensions(root, inv, kind, payload)

	text(root, "cbc:UBLVersionID", "UBL 2.1")
	text(root, "cbc:CustomizationID", kind.customization)
	text(root, "cbc:ProfileID", kind.profile)
	text(root, "cbc:ProfileExecutionID", b.env.AmbientCode())
	text(root, "cbc:ID", inv.ID())
	uuid := text(root, "cbc:UUID", cufe)
	uuid.CreateAttr("schemeID", b.env.AmbientCode())
	uuid.CreateAttr("schemeName", kind.uuidScheme)
	text(root, "cbc:IssueDate", issueDate)
	text(root, "cbc:IssueTime", issueTime)
	if kind.typeCode != "" {
		text(root, kind.typeCode, inv.DocumentType)
	}
	if inv.Note != "" {
		text(root, "cbc:Note", inv.Note)
	}
	currency := inv.CurrencyCode()
	text(root, "cbc:DocumentCurrencyCode", currency)
	text(root, "cbc:LineCountNumeric", strconv.Itoa(len(inv.Lines)))

	if kind.note {
		billingReference(root, inv.BillingReference)
	}

	b.party(root, "cac:AccountingSupplierParty", inv.Supplier)
	b.party(root, "cac:AccountingCustomerParty", inv.Customer)

	catalog := b.registry.Catalog()
	for _, code := range taxCodes(totals.groups) {
		tt := root.CreateElement("cac:TaxTotal")
		amount(tt, "cbc:TaxAmount", totals.taxByCode(code), currency)
		for _, g := range totals.groups {
			if g.code != code {
				continue
			}
			subtotal(tt, g, catalog, currency)
		}
	}

	mt := root.CreateElement(kind.monetaryTotal)
	amount(mt, "cbc:LineExtensionAmount", totals.lineExtension, currency)
	amount(mt, "cbc:TaxExclusiveAmount", totals.lineExtension, currency)
	amount(mt, "cbc:TaxInclusiveAmount", totals.payable, currency)
	amount(mt, "cbc:PayableAmount", totals.payable, currency)

	for i, l := range inv.Lines {
		line(root, kind, i+1, l, catalog, currency)
	}

	doc.Indent(2)
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "serialize UBL document")
	}

	logger.WithFields(logrus.Fields{
		"invoice": inv.ID(),
		"type":    inv.DocumentType,
		"lines":   len(inv.Lines),
		"bytes":   len(data),
	}).Debug("document built")

	return &Document{
		id:           inv.ID(),
		cufe:         cufe,
		documentType: inv.DocumentType,
		supplierNIT:  inv.Supplier.ID,
		issuedAt:     issued,
		qr:           payload,
		data:         data,
	}, nil
}

func (b *Builder) extensions(root *etree.Element, inv *model.Invoice, kind docKind, payload string) {
	exts := root.CreateElement("ext:UBLExtensions")

	content := exts.CreateElement("ext:UBLExtension").CreateElement("ext:ExtensionContent")
	de := content.CreateElement("sts:DianExtensions")

	if !kind.note {
		r := inv.Resolution
		ic := de.CreateElement("sts:InvoiceControl")
		text(ic, "sts:InvoiceAuthorization", r.Number)
		period := ic.CreateElement("sts:AuthorizationPeriod")
		text(period, "cbc:StartDate", r.ValidFrom.In(bogota).Format(dateLayout))
		text(period, "cbc:EndDate", r.ValidTo.In(bogota).Format(dateLayout))
		auth := ic.CreateElement("sts:AuthorizedInvoices")
		if r.Prefix != "" {
			text(auth, "sts:Prefix", r.Prefix)
		}
		text(auth, "sts:From", strconv.FormatInt(r.From, 10))
		text(auth, "sts:To", strconv.FormatInt(r.To, 10))
	}

	src := de.CreateElement("sts:InvoiceSource")
	country := text(src, "cbc:IdentificationCode", "CO")
	country.CreateAttr("listAgencyID", "6")
	country.CreateAttr("listAgencyName", "United Nations Economic Commission for Europe")
	country.CreateAttr("listSchemeURI", "urn:oasis:names:specification:ubl:codelist:gc:CountryIdentificationCode-2.1")

	providerNIT := b.software.ProviderNIT
	if providerNIT == "" {
		providerNIT = inv.Supplier.ID
	}
	providerDV, _ := NITCheckDigit(providerNIT)

	sp := de.CreateElement("sts:SoftwareProvider")
	pid := text(sp, "sts:ProviderID", providerNIT)
	dianScheme(pid)
	pid.CreateAttr("schemeID", providerDV)
	pid.CreateAttr("schemeName", dian.IDNIT)
	sid := text(sp, "sts:SoftwareID", b.software.ID)
	dianScheme(sid)

	ssc := text(de, "sts:SoftwareSecurityCode", SoftwareSecurityCode(b.software.ID, b.software.PIN, inv.ID()))
	dianScheme(ssc)

	ap := de.CreateElement("sts:AuthorizationProvider")
	apID := text(ap, "sts:AuthorizationProviderID", dianNIT)
	dianScheme(apID)
	apID.CreateAttr("schemeID", "4")
	apID.CreateAttr("schemeName", dian.IDNIT)

	text(de, "sts:QRCode", payload)

	// reserved for the enveloped signature
	exts.CreateElement("ext:UBLExtension").CreateElement("ext:ExtensionContent")
}

func (b *Builder) party(root *etree.Element, tag string, p model.Party) {
	el := root.CreateElement(tag)
	account := "1"
	if p.Person {
		account = "2"
	}
	text(el, "cbc:AdditionalAccountID", account)

	party := el.CreateElement("cac:Party")
	if p.Name != "" {
		text(party.CreateElement("cac:PartyName"), "cbc:Name", p.Name)
	}

	a := p.Address
	if a.City != "" || a.Line != "" {
		addr := party.CreateElement("cac:PhysicalLocation").CreateElement("cac:Address")
		if a.CityCode != "" {
			text(addr, "cbc:ID", a.CityCode)
		}
		if a.City != "" {
			text(addr, "cbc:CityName", a.City)
		}
		if a.Department != "" {
			text(addr, "cbc:CountrySubentity", a.Department)
		}
		if a.DepartmentCode != "" {
			text(addr, "cbc:CountrySubentityCode", a.DepartmentCode)
		}
		if a.Line != "" {
			text(addr.CreateElement("cac:AddressLine"), "cbc:Line", a.Line)
		}
		country := a.Country
		if country == "" {
			country = "CO"
		}
		text(addr.CreateElement("cac:Country"), "cbc:IdentificationCode", country)
	}

	ts := party.CreateElement("cac:PartyTaxScheme")
	text(ts, "cbc:RegistrationName", p.Name)
	companyID(ts, p)
	level := p.TaxLevelCode
	if level == "" {
		level = defaultLevel
	}
	text(ts, "cbc:TaxLevelCode", level)
	scheme := ts.CreateElement("cac:TaxScheme")
	text(scheme, "cbc:ID", dian.TaxIVA)
	text(scheme, "cbc:Name", "IVA")

	le := party.CreateElement("cac:PartyLegalEntity")
	text(le, "cbc:RegistrationName", p.Name)
	companyID(le, p)

	if p.Email != "" {
		text(party.CreateElement("cac:Contact"), "cbc:ElectronicMail", p.Email)
	}
}

func companyID(parent *etree.Element, p model.Party) {
	id := text(parent, "cbc:CompanyID", p.ID)
	dianScheme(id)
	if p.IDType == dian.IDNIT {
		dv := p.CheckDigit
		if dv == "" {
			dv, _ = NITCheckDigit(p.ID)
		}
		id.CreateAttr("schemeID", dv)
	}
	id.CreateAttr("schemeName", p.IDType)
}

func billingReference(root *etree.Element, ref *model.BillingReference) {
	if ref.ReasonCode != "" || ref.Description != "" {
		dr := root.CreateElement("cac:DiscrepancyResponse")
		text(dr, "cbc:ReferenceID", ref.InvoiceID)
		if ref.ReasonCode != "" {
			text(dr, "cbc:ResponseCode", ref.ReasonCode)
		}
		if ref.Description != "" {
			text(dr, "cbc:Description", ref.Description)
		}
	}
	idr := root.CreateElement("cac:BillingReference").CreateElement("cac:InvoiceDocumentReference")
	text(idr, "cbc:ID", ref.InvoiceID)
	uuid := text(idr, "cbc:UUID", ref.CUFE)
	uuid.CreateAttr("schemeName", "CUFE-SHA384")
	if !ref.IssuedAt.IsZero() {
		text(idr, "cbc:IssueDate", ref.IssuedAt.In(bogota).Format(dateLayout))
	}
}

func line(root *etree.Element, kind docKind, n int, l model.Line, catalog dian.RegulatoryCatalog, currency string) {
	el := root.CreateElement(kind.line)
	text(el, "cbc:ID", strconv.Itoa(n))

	unit := l.UnitCode
	if unit == "" {
		unit = defaultUnit
	}
	q := text(el, kind.quantity, l.Quantity.String())
	q.CreateAttr("unitCode", unit)

	sub := l.Subtotal()
	amount(el, "cbc:LineExtensionAmount", sub, currency)

	tt := el.CreateElement("cac:TaxTotal")
	amount(tt, "cbc:TaxAmount", l.Tax(), currency)
	subtotal(tt, taxGroup{code: l.TaxCode, rate: l.TaxRate, taxable: sub, amount: l.Tax()}, catalog, currency)

	item := el.CreateElement("cac:Item")
	text(item, "cbc:Description", l.Description)
	if l.Code != "" {
		sid := text(item.CreateElement("cac:StandardItemIdentification"), "cbc:ID", l.Code)
		sid.CreateAttr("schemeID", "999")
	}

	price := el.CreateElement("cac:Price")
	amount(price, "cbc:PriceAmount", l.UnitPrice, currency)
	bq := text(price, "cbc:BaseQuantity", l.Quantity.String())
	bq.CreateAttr("unitCode", unit)
}

func subtotal(parent *etree.Element, g taxGroup, catalog dian.RegulatoryCatalog, currency string) {
	st := parent.CreateElement("cac:TaxSubtotal")
	amount(st, "cbc:TaxableAmount", g.taxable, currency)
	amount(st, "cbc:TaxAmount", g.amount, currency)
	cat := st.CreateElement("cac:TaxCategory")
	text(cat, "cbc:Percent", g.rate.StringFixed(2))
	scheme := cat.CreateElement("cac:TaxScheme")
	text(scheme, "cbc:ID", g.code)
	name, _ := catalog.TaxCode(g.code)
	text(scheme, "cbc:Name", name)
}

func taxCodes(groups []taxGroup) []string {
	var codes []string
	for _, g := range groups {
		if len(codes) == 0 || codes[len(codes)-1] != g.code {
			codes = append(codes, g.code)
		}
	}
	return codes
}

func text(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

func amount(parent *etree.Element, tag string, v decimal.Decimal, currency string) *etree.Element {
	el := parent.CreateElement(tag)
	el.CreateAttr("currencyID", currency)
	el.SetText(v.StringFixed(2))
	return el
}

func dianScheme(el *etree.Element) {
	el.CreateAttr("schemeAgencyID", dianAgencyID)
	el.CreateAttr("schemeAgencyName", dianAgencyName)
}
