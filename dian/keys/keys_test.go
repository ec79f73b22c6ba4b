package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/internal/testcert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"
)

func writeCredential(t *testing.T, password []byte) (certPath, keyPath string) {
	t.Helper()
	key, cert := testcert.Valid(t)

	der, err := pkcs8.MarshalPrivateKey(key, password, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der}), 0o600))
	return certPath, keyPath
}

func TestLoadCredential(t *testing.T) {
	pass := []byte("s3cret")
	certPath, keyPath := writeCredential(t, pass)

	cred, err := LoadCredential(certPath, keyPath, pass)
	require.NoError(t, err)
	assert.NoError(t, cred.Validate(time.Now()))

	serial, err := CertSerial(cred.Certificate)
	require.NoError(t, err)
	assert.Equal(t, "5EED", serial)

	_, err = LoadCredential(certPath, keyPath, []byte("wrong"))
	assert.Error(t, err)

	_, err = LoadCredential(certPath, keyPath, nil)
	assert.Error(t, err)

	_, err = LoadCredential(filepath.Join(t.TempDir(), "missing.pem"), keyPath, pass)
	assert.Error(t, err)
}

func TestCredentialValidate(t *testing.T) {
	key, cert := testcert.Valid(t)
	cred := Credential{Signer: key, Certificate: cert}

	assert.NoError(t, cred.Validate(time.Now()))
	assert.ErrorIs(t, cred.Validate(cert.NotAfter.Add(time.Minute)), dian.ErrSigning)
	assert.ErrorIs(t, cred.Validate(cert.NotBefore.Add(-time.Minute)), dian.ErrSigning)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	assert.ErrorIs(t, Credential{Signer: other, Certificate: cert}.Validate(time.Now()), dian.ErrSigning)

	assert.ErrorIs(t, Credential{Certificate: cert}.Validate(time.Now()), dian.ErrSigning)
	assert.ErrorIs(t, Credential{Signer: key}.Validate(time.Now()), dian.ErrSigning)
}

func TestLoadCertificate_RejectsOtherBlocks(t *testing.T) {
	_, err := LoadCertificate(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1, 2, 3}}))
	assert.Error(t, err)

	_, err = LoadCertificate([]byte("garbage"))
	assert.Error(t, err)
}

func TestLoadPKCS12_MissingFile(t *testing.T) {
	_, err := LoadPKCS12(filepath.Join(t.TempDir(), "none.p12"), "x")
	assert.Error(t, err)
}
