package sign

import (
	"bytes"
	"testing"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/keys"
	"github.com/alapierre/go-dian-client/dian/ubl"
	"github.com/alapierre/go-dian-client/internal/fixture"
	"github.com/alapierre/go-dian-client/internal/testcert"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocument(t *testing.T) *ubl.Document {
	t.Helper()
	b, err := ubl.NewBuilder(dian.DefaultRegistry(), dian.Certification, fixture.Software)
	require.NoError(t, err)
	doc, err := b.Build(fixture.Invoice())
	require.NoError(t, err)
	return doc
}

func credential(t *testing.T) keys.Credential {
	key, cert := testcert.Valid(t)
	return keys.Credential{Signer: key, Certificate: cert}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	signer := NewSigner()
	doc := buildDocument(t)

	signed, err := signer.Sign(doc, credential(t))
	require.NoError(t, err)
	assert.Equal(t, doc.ID(), signed.ID())
	assert.Equal(t, doc.CUFE(), signed.CUFE())
	assert.Equal(t, "900123456", signed.SupplierNIT())
	assert.False(t, signed.SignedAt().IsZero())
	assert.Greater(t, signed.Size(), doc.Size())

	require.NoError(t, signer.Verify(signed.Bytes()))
}

func TestVerify_TamperedBodyFails(t *testing.T) {
	signer := NewSigner()
	signed, err := signer.Sign(buildDocument(t), credential(t))
	require.NoError(t, err)

	for _, tc := range []struct{ from, to string }{
		{"Arroz 500g", "Arroz 900g"},
		{">149.00<", ">150.00<"},
		{"SETP990000001", "SETP990000002"},
		{"Juan Pérez", "Juan Perez"},
	} {
		t.Run(tc.from, func(t *testing.T) {
			data := signed.Bytes()
			require.True(t, bytes.Contains(data, []byte(tc.from)))
			tampered := bytes.Replace(data, []byte(tc.from), []byte(tc.to), 1)
			assert.ErrorIs(t, signer.Verify(tampered), dian.ErrSigning)
		})
	}
}

func TestVerify_UntrustedCertificate(t *testing.T) {
	signer := NewSigner()
	signed, err := signer.Sign(buildDocument(t), credential(t))
	require.NoError(t, err)

	_, other := testcert.Valid(t)
	assert.ErrorIs(t, signer.Verify(signed.Bytes(), other), dian.ErrSigning)
}

func TestVerify_Unsigned(t *testing.T) {
	assert.ErrorIs(t, NewSigner().Verify(buildDocument(t).Bytes()), dian.ErrSigning)
}

func TestSign_ExpiredCredential(t *testing.T) {
	now := time.Now()
	key, cert := testcert.New(t, now.AddDate(-2, 0, 0), now.AddDate(-1, 0, 0))

	_, err := NewSigner().Sign(buildDocument(t), keys.Credential{Signer: key, Certificate: cert})
	assert.ErrorIs(t, err, dian.ErrSigning)
}

func TestSign_FakeClock(t *testing.T) {
	at := time.Date(2024, 1, 15, 15, 31, 0, 0, time.UTC)
	key, cert := testcert.New(t, at.Add(-time.Hour), at.Add(time.Hour))
	signer := NewSigner(WithClock(clockwork.NewFakeClockAt(at)))

	signed, err := signer.Sign(buildDocument(t), keys.Credential{Signer: key, Certificate: cert})
	require.NoError(t, err)
	assert.True(t, at.Equal(signed.SignedAt()))

	// validity is checked at the embedded signing time, not wall clock
	require.NoError(t, signer.Verify(signed.Bytes()))

	parsed, err := Parse(signed.Bytes())
	require.NoError(t, err)
	assert.True(t, at.Equal(parsed.SignedAt()))
	assert.Equal(t, signed.ID(), parsed.ID())

	_, err = Parse(buildDocument(t).Bytes())
	assert.ErrorIs(t, err, dian.ErrValidation)
}

func TestSign_SlotAlreadyUsed(t *testing.T) {
	signer := NewSigner()
	cred := credential(t)
	signed, err := signer.Sign(buildDocument(t), cred)
	require.NoError(t, err)

	doc, err := ubl.FromBytes(signed.Bytes())
	require.NoError(t, err)
	_, err = signer.Sign(doc, cred)
	assert.ErrorIs(t, err, dian.ErrSigning)
}
