// Package testcert issues throwaway self-signed signing credentials for tests.
package testcert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// New returns an RSA key and a self-signed certificate valid between
// notBefore and notAfter.
func New(t testing.TB, notBefore, notAfter time.Time) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(0x5eed),
		Subject: pkix.Name{
			CommonName:   "Tienda Ejemplo SAS",
			Organization: []string{"Tienda Ejemplo SAS"},
			Country:      []string{"CO"},
			SerialNumber: "900123456",
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return key, cert
}

// Valid issues a credential valid from an hour ago for a year.
func Valid(t testing.TB) (*rsa.PrivateKey, *x509.Certificate) {
	now := time.Now()
	return New(t, now.Add(-time.Hour), now.AddDate(1, 0, 0))
}
