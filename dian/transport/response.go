package transport

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/go-faster/errors"
)

// dianResponse is the DianResponse structure shared by SendBillSync and
// GetStatus results.
type dianResponse struct {
	StatusCode        string
	StatusDescription string
	StatusMessage     string
	IsValid           bool
	DocumentKey       string
	Errors            []string
}

type soapFault struct {
	Code   string
	Reason string
}

func (f *soapFault) serverSide() bool {
	c := strings.ToLower(f.Code)
	return strings.Contains(c, "receiver") || strings.Contains(c, "server")
}

var errNoStatusCode = errors.New("response carries no StatusCode")

// parseResponse reads a SOAP 1.2 (or 1.1) envelope. A fault is returned
// separately from parse errors so callers can classify it.
func parseResponse(body []byte) (*dianResponse, *soapFault, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, nil, errors.Wrap(err, "parse SOAP response")
	}
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return nil, nil, errors.New("response is not a SOAP envelope")
	}
	b := root.SelectElement("Body")
	if b == nil {
		return nil, nil, errors.New("SOAP envelope has no Body")
	}

	if f := b.SelectElement("Fault"); f != nil {
		return nil, fault(f), nil
	}

	code := b.FindElement(".//StatusCode")
	if code == nil || strings.TrimSpace(code.Text()) == "" {
		return nil, nil, errNoStatusCode
	}
	r := &dianResponse{StatusCode: strings.TrimSpace(code.Text())}
	r.StatusDescription = text(b, ".//StatusDescription")
	r.StatusMessage = text(b, ".//StatusMessage")
	r.DocumentKey = text(b, ".//XmlDocumentKey")
	r.IsValid = strings.EqualFold(text(b, ".//IsValid"), "true")
	if em := b.FindElement(".//ErrorMessage"); em != nil {
		for _, s := range em.ChildElements() {
			if t := strings.TrimSpace(s.Text()); t != "" {
				r.Errors = append(r.Errors, t)
			}
		}
	}
	return r, nil, nil
}

func fault(f *etree.Element) *soapFault {
	sf := &soapFault{}
	// SOAP 1.2: Code/Value, Reason/Text; SOAP 1.1: faultcode, faultstring
	if v := f.FindElement("./Code/Value"); v != nil {
		sf.Code = strings.TrimSpace(v.Text())
	} else if v := f.SelectElement("faultcode"); v != nil {
		sf.Code = strings.TrimSpace(v.Text())
	}
	if v := f.FindElement("./Reason/Text"); v != nil {
		sf.Reason = strings.TrimSpace(v.Text())
	} else if v := f.SelectElement("faultstring"); v != nil {
		sf.Reason = strings.TrimSpace(v.Text())
	}
	return sf
}

func text(el *etree.Element, path string) string {
	if e := el.FindElement(path); e != nil {
		return strings.TrimSpace(e.Text())
	}
	return ""
}
