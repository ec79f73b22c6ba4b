package ubl

import (
	"bytes"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
)

// Namespace URIs declared on every document root.
const (
	NSInvoice    = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NSCreditNote = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	NSDebitNote  = "urn:oasis:names:specification:ubl:schema:xsd:DebitNote-2"
	NSCac        = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NSCbc        = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	NSExt        = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	NSSts        = "dian:gov:co:facturaelectronica:Structures-2-1"
	NSXades      = "http://uri.etsi.org/01903/v1.3.2#"
	NSXades141   = "http://uri.etsi.org/01903/v1.4.1#"
	NSDs         = "http://www.w3.org/2000/09/xmldsig#"
)

type namespace struct {
	Prefix string
	URI    string
}

// prefixed namespaces in declaration order, the default one depends on the root.
var namespaces = []namespace{
	{"cac", NSCac},
	{"cbc", NSCbc},
	{"ext", NSExt},
	{"sts", NSSts},
	{"xades", NSXades},
	{"xades141", NSXades141},
	{"ds", NSDs},
}

var bogota = time.FixedZone("COT", -5*60*60)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05-07:00"
)

// Document is a built, unsigned UBL 2.1 document. It is immutable.
type Document struct {
	id           string
	cufe         string
	documentType string
	supplierNIT  string
	issuedAt     time.Time
	qr           string
	data         []byte
}

func (d *Document) ID() string           { return d.id }
func (d *Document) CUFE() string         { return d.cufe }
func (d *Document) DocumentType() string { return d.documentType }
func (d *Document) SupplierNIT() string  { return d.supplierNIT }
func (d *Document) IssuedAt() time.Time  { return d.issuedAt }
func (d *Document) QRPayload() string    { return d.qr }
func (d *Document) Size() int            { return len(d.data) }

// Bytes returns a copy of the serialized document.
func (d *Document) Bytes() []byte {
	return bytes.Clone(d.data)
}

// FromBytes reads back a document produced by Build, e.g. from disk.
func FromBytes(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Wrap(err, "parse UBL document")
	}
	root := doc.Root()
	if root == nil {
		return nil, dian.NewValidationError("document", nil, "required", "document has no root element")
	}

	d := &Document{data: bytes.Clone(data)}

	if el := root.SelectElement("ID"); el != nil {
		d.id = el.Text()
	}
	if d.id == "" {
		return nil, dian.NewValidationError("cbc:ID", nil, "required", "document has no identifier")
	}
	if el := root.SelectElement("UUID"); el != nil {
		d.cufe = el.Text()
	}

	switch root.Tag {
	case "CreditNote":
		d.documentType = dian.DocCreditNote
	case "DebitNote":
		d.documentType = dian.DocDebitNote
	default:
		if el := root.SelectElement("InvoiceTypeCode"); el != nil {
			d.documentType = el.Text()
		}
	}

	var date, clock string
	if el := root.SelectElement("IssueDate"); el != nil {
		date = el.Text()
	}
	if el := root.SelectElement("IssueTime"); el != nil {
		clock = el.Text()
	}
	if date != "" && clock != "" {
		if t, err := time.Parse(dateLayout+"T"+timeLayout, date+"T"+clock); err == nil {
			d.issuedAt = t
		}
	}

	if el := root.FindElement("./AccountingSupplierParty/Party/PartyTaxScheme/CompanyID"); el != nil {
		d.supplierNIT = el.Text()
	}

	if el := root.FindElement("./UBLExtensions/UBLExtension/ExtensionContent/DianExtensions/QRCode"); el != nil {
		d.qr = el.Text()
	}

	return d, nil
}
