package transport

import (
	"archive/zip"
	"bytes"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/sign"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

// FileNames returns the XML and zip entry names DIAN expects for a document:
// fv (invoice), nc (credit note) or nd (debit note) followed by issuer NIT
// and document number.
func FileNames(signed *sign.SignedDocument) (xmlName, zipName string) {
	prefix := "fv"
	switch signed.DocumentType() {
	case dian.DocCreditNote:
		prefix = "nc"
	case dian.DocDebitNote:
		prefix = "nd"
	}
	base := signed.SupplierNIT() + signed.ID()
	return prefix + base + ".xml", "z" + base + ".zip"
}

// Package zips the signed XML as the single entry of a SendBillSync payload.
func Package(signed *sign.SignedDocument) (zipName string, data []byte, err error) {
	xmlName, zipName := FileNames(signed)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.CreateHeader(&zip.FileHeader{
		Name:     xmlName,
		Method:   zip.Deflate,
		Modified: signed.SignedAt(),
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "create zip entry")
	}
	if _, err := f.Write(signed.Bytes()); err != nil {
		return "", nil, errors.Wrap(err, "write zip entry")
	}
	if err := w.Close(); err != nil {
		return "", nil, errors.Wrap(err, "close zip")
	}

	logger.WithFields(logrus.Fields{
		"file":  zipName,
		"xml":   signed.Size(),
		"bytes": buf.Len(),
	}).Debug("document packaged")

	return zipName, buf.Bytes(), nil
}
