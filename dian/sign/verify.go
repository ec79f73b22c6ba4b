package sign

import (
	"crypto/x509"
	"encoding/base64"
	"strings"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	dsig "github.com/russellhaering/goxmldsig"
)

// Verify checks the enveloped signature of data. With no trusted
// certificates the embedded one is trusted, which only proves integrity.
// Certificate validity is evaluated at the embedded signing time when
// present, at the signer clock otherwise.
func (s *Signer) Verify(data []byte, trusted ...*x509.Certificate) error {
	x := etree.NewDocument()
	if err := x.ReadFromBytes(data); err != nil {
		return &dian.SigningError{Op: "verify", Err: err}
	}
	root := x.Root()
	if root == nil {
		return &dian.SigningError{Op: "verify", Err: errors.New("empty document")}
	}

	if len(trusted) == 0 {
		cert, err := embeddedCertificate(root)
		if err != nil {
			return &dian.SigningError{Op: "verify", Err: err}
		}
		trusted = []*x509.Certificate{cert}
	}

	ctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{Roots: trusted})
	if at, ok := signingTime(root); ok {
		ctx.Clock = dsig.NewFakeClockAt(at)
	} else {
		ctx.Clock = dsig.NewFakeClock(s.clock)
	}

	if _, err := ctx.Validate(root); err != nil {
		return &dian.SigningError{Op: "verify", Err: err}
	}
	return nil
}

func embeddedCertificate(root *etree.Element) (*x509.Certificate, error) {
	el := root.FindElement(".//Signature/KeyInfo/X509Data/X509Certificate")
	if el == nil {
		return nil, errors.New("signature carries no X509Certificate")
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(el.Text()), ""))
	if err != nil {
		return nil, errors.Wrap(err, "decode embedded certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(err, "parse embedded certificate")
	}
	return cert, nil
}
