package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"os"
	"strings"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/pkcs12"
)

var logger = logrus.WithField("component", "dian.keys")

// Credential is the signing key plus the X.509 certificate DIAN issued for it.
type Credential struct {
	Signer      crypto.Signer
	Certificate *x509.Certificate
}

// Validate checks that the credential is complete, that the key matches the
// certificate and that now falls inside the certificate validity window.
func (c Credential) Validate(now time.Time) error {
	if c.Signer == nil {
		return &dian.SigningError{Op: "credential", Err: errors.New("signing key is missing")}
	}
	if c.Certificate == nil {
		return &dian.SigningError{Op: "credential", Err: errors.New("certificate is missing")}
	}
	if now.Before(c.Certificate.NotBefore) {
		return &dian.SigningError{Op: "credential", Err: errors.Errorf("certificate not valid before %s", c.Certificate.NotBefore.Format(time.RFC3339))}
	}
	if now.After(c.Certificate.NotAfter) {
		return &dian.SigningError{Op: "credential", Err: errors.Errorf("certificate expired at %s", c.Certificate.NotAfter.Format(time.RFC3339))}
	}

	type equaler interface{ Equal(crypto.PublicKey) bool }
	pub, ok := c.Signer.Public().(equaler)
	if !ok || !pub.Equal(c.Certificate.PublicKey) {
		return &dian.SigningError{Op: "credential", Err: errors.New("private key does not match certificate")}
	}
	return nil
}

// LoadCredential reads a PEM certificate and an encrypted PKCS#8 key.
func LoadCredential(certPath, keyPath string, password []byte) (Credential, error) {
	cert, err := LoadCertificateFromFile(certPath)
	if err != nil {
		return Credential{}, err
	}
	signer, err := LoadEncryptedPKCS8SignerFromFile(keyPath, password)
	if err != nil {
		return Credential{}, err
	}
	logger.WithField("subject", cert.Subject.CommonName).Debug("credential loaded")
	return Credential{Signer: signer, Certificate: cert}, nil
}

// LoadPKCS12 reads the .p12 bundle DIAN certificate authorities hand out.
func LoadPKCS12(path string, password string) (Credential, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Credential{}, errors.Wrap(err, "read pkcs12 file")
	}
	key, cert, err := pkcs12.Decode(b, password)
	if err != nil {
		return Credential{}, errors.Wrap(err, "decode pkcs12")
	}
	signer, err := asSigner(key)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Signer: signer, Certificate: cert}, nil
}

func LoadEncryptedPKCS8SignerFromFile(path string, password []byte) (crypto.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read key file")
	}
	return LoadEncryptedPKCS8SignerFromPEM(b, password)
}

// LoadEncryptedPKCS8SignerFromPEM loads the first ENCRYPTED PRIVATE KEY block.
func LoadEncryptedPKCS8SignerFromPEM(pemBytes []byte, password []byte) (crypto.Signer, error) {
	if len(password) == 0 {
		return nil, errors.New("password is required for ENCRYPTED PRIVATE KEY")
	}

	for len(pemBytes) > 0 {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			break
		}
		if block.Type != "ENCRYPTED PRIVATE KEY" {
			continue
		}

		keyAny, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
		if err != nil {
			return nil, errors.Wrap(err, "decrypt PKCS#8 encrypted private key")
		}
		return asSigner(keyAny)
	}

	return nil, errors.New("no ENCRYPTED PRIVATE KEY block found in PEM")
}

func asSigner(key any) (crypto.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	}
	return nil, errors.Errorf("unsupported key type %T (expected RSA or ECDSA)", key)
}

func LoadCertificateFromFile(path string) (*x509.Certificate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read cert file")
	}
	return LoadCertificate(b)
}

// LoadCertificate accepts PEM or raw DER.
func LoadCertificate(certBytes []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(certBytes); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, errors.Errorf("unexpected PEM block: %s", block.Type)
		}
		certBytes = block.Bytes
	}

	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse certificate")
	}
	return cert, nil
}

// CertSerial returns the certificate serial number as uppercase hex.
func CertSerial(cert *x509.Certificate) (string, error) {
	if cert == nil || cert.SerialNumber == nil {
		return "", errors.New("certificate has no serial number")
	}
	serial := strings.ToUpper(hex.EncodeToString(cert.SerialNumber.Bytes()))
	if serial == "" {
		return "", errors.New("empty serial after encoding")
	}
	return serial, nil
}
