package sign

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/keys"
	"github.com/alapierre/go-dian-client/dian/ubl"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "dian.sign")

const signingTimeLayout = "2006-01-02T15:04:05.000-07:00"

// SignedDocument is a UBL document carrying an enveloped XML-DSig signature
// in its second UBLExtension. It is immutable.
type SignedDocument struct {
	id           string
	cufe         string
	documentType string
	supplierNIT  string
	signedAt     time.Time
	data         []byte
}

func (s *SignedDocument) ID() string           { return s.id }
func (s *SignedDocument) CUFE() string         { return s.cufe }
func (s *SignedDocument) DocumentType() string { return s.documentType }
func (s *SignedDocument) SupplierNIT() string  { return s.supplierNIT }
func (s *SignedDocument) SignedAt() time.Time  { return s.signedAt }
func (s *SignedDocument) Size() int            { return len(s.data) }

func (s *SignedDocument) Bytes() []byte {
	return bytes.Clone(s.data)
}

// Signer signs built documents. Signing is local and never retried.
type Signer struct {
	clock clockwork.Clock
}

type Option func(*Signer)

func WithClock(c clockwork.Clock) Option {
	return func(s *Signer) {
		s.clock = c
	}
}

func NewSigner(opts ...Option) *Signer {
	s := &Signer{clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sign validates cred at the current time and signs the canonical (exclusive
// C14N) form of doc with RSA-SHA256.
func (s *Signer) Sign(doc *ubl.Document, cred keys.Credential) (*SignedDocument, error) {
	if doc == nil {
		return nil, &dian.SigningError{Op: "sign", Err: errors.New("document is nil")}
	}
	now := s.clock.Now()
	if err := cred.Validate(now); err != nil {
		return nil, err
	}

	x := etree.NewDocument()
	if err := x.ReadFromBytes(doc.Bytes()); err != nil {
		return nil, &dian.SigningError{Op: "parse", Err: err}
	}
	root := x.Root()
	slot := signatureSlot(root)
	if slot == nil {
		return nil, &dian.SigningError{Op: "parse", Err: errors.New("document has no free UBLExtension for the signature")}
	}

	ctx, err := dsig.NewSigningContext(cred.Signer, [][]byte{cred.Certificate.Raw})
	if err != nil {
		return nil, &dian.SigningError{Op: "context", Err: err}
	}
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

	// the exclusive canonicalizer rewrites its input
	sig, err := ctx.ConstructSignature(root.Copy(), true)
	if err != nil {
		return nil, &dian.SigningError{Op: "signature", Err: err}
	}
	signedAt := now.In(time.FixedZone("COT", -5*60*60)).Truncate(time.Millisecond)
	qualifyingProperties(sig, cred.Certificate, signedAt)
	slot.AddChild(sig)

	data, err := x.WriteToBytes()
	if err != nil {
		return nil, &dian.SigningError{Op: "serialize", Err: err}
	}

	logger.WithFields(logrus.Fields{
		"invoice": doc.ID(),
		"bytes":   len(data),
	}).Debug("document signed")

	return &SignedDocument{
		id:           doc.ID(),
		cufe:         doc.CUFE(),
		documentType: doc.DocumentType(),
		supplierNIT:  doc.SupplierNIT(),
		signedAt:     signedAt,
		data:         data,
	}, nil
}

// signatureSlot returns the empty ExtensionContent reserved for the signature.
func signatureSlot(root *etree.Element) *etree.Element {
	if root == nil {
		return nil
	}
	for _, ext := range root.FindElements("./UBLExtensions/UBLExtension/ExtensionContent") {
		if len(ext.ChildElements()) == 0 {
			return ext
		}
	}
	return nil
}

// qualifyingProperties appends the XAdES signing time and certificate digest
// as a ds:Object of sig.
func qualifyingProperties(sig *etree.Element, cert *x509.Certificate, at time.Time) {
	obj := sig.CreateElement("ds:Object")
	qp := obj.CreateElement("xades:QualifyingProperties")
	ssp := qp.CreateElement("xades:SignedProperties").CreateElement("xades:SignedSignatureProperties")
	ssp.CreateElement("xades:SigningTime").SetText(at.Format(signingTimeLayout))

	sum := sha256.Sum256(cert.Raw)
	c := ssp.CreateElement("xades:SigningCertificate").CreateElement("xades:Cert")
	digest := c.CreateElement("xades:CertDigest")
	digest.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", "http://www.w3.org/2001/04/xmlenc#sha256")
	digest.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(sum[:]))
	serial := c.CreateElement("xades:IssuerSerial")
	serial.CreateElement("ds:X509IssuerName").SetText(cert.Issuer.String())
	serial.CreateElement("ds:X509SerialNumber").SetText(cert.SerialNumber.String())
}

// Parse reads back a signed document, e.g. one stored on disk before sending.
// It does not verify the signature.
func Parse(data []byte) (*SignedDocument, error) {
	doc, err := ubl.FromBytes(data)
	if err != nil {
		return nil, err
	}
	x := etree.NewDocument()
	if err := x.ReadFromBytes(data); err != nil {
		return nil, errors.Wrap(err, "parse signed document")
	}
	if x.Root().FindElement(".//Signature") == nil {
		return nil, dian.NewValidationError("ds:Signature", nil, "required", "document is not signed")
	}

	s := &SignedDocument{
		id:           doc.ID(),
		cufe:         doc.CUFE(),
		documentType: doc.DocumentType(),
		supplierNIT:  doc.SupplierNIT(),
		data:         bytes.Clone(data),
	}
	if t, ok := signingTime(x.Root()); ok {
		s.signedAt = t
	}
	return s, nil
}

func signingTime(root *etree.Element) (time.Time, bool) {
	el := root.FindElement(".//Signature/Object/QualifyingProperties/SignedProperties/SignedSignatureProperties/SigningTime")
	if el == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(signingTimeLayout, el.Text())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
