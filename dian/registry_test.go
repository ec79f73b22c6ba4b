package dian

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEndpoint(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name string
		env  Environment
		kind ServiceKind
		want string
	}{
		{"production submission", Production, Submission, "https://vpfe.dian.gov.co/WcfDianCustomerServices.svc"},
		{"production validation", Production, Validation, "https://catalogo-vpfe.dian.gov.co/User/SearchDocument"},
		{"production status", Production, StatusQuery, "https://vpfe.dian.gov.co/WcfDianCustomerServices.svc/GetStatus"},
		{"certification submission", Certification, Submission, "https://vpfe-hab.dian.gov.co/WcfDianCustomerServices.svc"},
		{"certification validation", Certification, Validation, "https://catalogo-vpfe-hab.dian.gov.co/User/SearchDocument"},
		{"certification status", Certification, StatusQuery, "https://vpfe-hab.dian.gov.co/WcfDianCustomerServices.svc/GetStatus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveEndpoint(tt.env, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveEndpoint_Invalid(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name string
		env  Environment
		kind ServiceKind
	}{
		{"zero environment", Environment(0), Submission},
		{"unknown environment", Environment(7), Submission},
		{"negative environment", Environment(-1), StatusQuery},
		{"zero kind", Production, ServiceKind(0)},
		{"unknown kind", Certification, ServiceKind(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ResolveEndpoint(tt.env, tt.kind)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestConnectionPolicy_IsCopy(t *testing.T) {
	r := DefaultRegistry()

	p := r.ConnectionPolicy()
	assert.Equal(t, 30*time.Second, p.Timeout)
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, 2*time.Second, p.RetryDelay)

	p.MaxRetries = 100
	p.Timeout = time.Millisecond

	again := r.ConnectionPolicy()
	assert.Equal(t, 3, again.MaxRetries)
	assert.Equal(t, 30*time.Second, again.Timeout)
}

func TestConnectionPolicy_Budget(t *testing.T) {
	p := DefaultConnectionPolicy()
	assert.Equal(t, 4, p.Attempts())
	// 30s * 4 + 2s * 3
	assert.Equal(t, 126*time.Second, p.TotalBudget())
}

func TestConnectionPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  ConnectionPolicy
		wantErr bool
	}{
		{"defaults", DefaultConnectionPolicy(), false},
		{"no retries", ConnectionPolicy{Timeout: time.Second}, false},
		{"zero timeout", ConnectionPolicy{MaxRetries: 1}, true},
		{"negative retries", ConnectionPolicy{Timeout: time.Second, MaxRetries: -1}, true},
		{"negative delay", ConnectionPolicy{Timeout: time.Second, RetryDelay: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsValidTaxRate(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		rate string
		want bool
	}{
		{"0", true},
		{"5", true},
		{"19", true},
		{"19.00", true},
		{"19.0000001", false},
		{"16", false},
		{"8", false},
		{"-19", false},
		{"100", false},
	}

	for _, tt := range tests {
		t.Run(tt.rate, func(t *testing.T) {
			assert.Equal(t, tt.want, r.IsValidTaxRate(decimal.RequireFromString(tt.rate)))
		})
	}
}

func TestNewRegistry_AlternateCatalog(t *testing.T) {
	catalog, err := NewCatalog(CatalogTables{
		DocumentTypes: map[string]string{"01": "invoice"},
		TaxCodes:      map[string]string{"01": "VAT"},
		TaxRates:      []decimal.Decimal{decimal.NewFromInt(16)},
		ResponseCodes: map[string]ResponseOutcome{"00": ResponseAccepted},
	})
	require.NoError(t, err)

	r, err := NewRegistry(DefaultEndpoints(), DefaultConnectionPolicy(), catalog)
	require.NoError(t, err)

	assert.True(t, r.IsValidTaxRate(decimal.NewFromInt(16)))
	assert.False(t, r.IsValidTaxRate(decimal.NewFromInt(19)))
	assert.Equal(t, ResponseUnknown, r.Catalog().ResponseOutcome("04"))
}

func TestNewRegistry_Invalid(t *testing.T) {
	good := DefaultEndpoints()

	_, err := NewRegistry(map[Environment]Endpoints{Environment(3): good[Production]}, DefaultConnectionPolicy(), DefaultCatalog())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewRegistry(map[Environment]Endpoints{Production: {Submission: "/relative", Validation: "x", StatusQuery: "y"}}, DefaultConnectionPolicy(), DefaultCatalog())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewRegistry(good, ConnectionPolicy{}, DefaultCatalog())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewRegistry(good, DefaultConnectionPolicy(), RegulatoryCatalog{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistry_EndpointTableIsolated(t *testing.T) {
	table := DefaultEndpoints()
	r, err := NewRegistry(table, DefaultConnectionPolicy(), DefaultCatalog())
	require.NoError(t, err)

	table[Production] = Endpoints{Submission: "https://evil.example.com"}

	u, err := r.ResolveEndpoint(Production, Submission)
	require.NoError(t, err)
	assert.Equal(t, "https://vpfe.dian.gov.co/WcfDianCustomerServices.svc", u)
}

func TestCatalog_Codes(t *testing.T) {
	c := DefaultCatalog()

	for _, code := range []string{"01", "02", "03", "04", "91", "92"} {
		_, ok := c.DocumentType(code)
		assert.True(t, ok, "document type %s", code)
	}
	_, ok := c.DocumentType("05")
	assert.False(t, ok)

	name, ok := c.TaxCode(TaxIVA)
	assert.True(t, ok)
	assert.Equal(t, "IVA", name)
	_, ok = c.TaxCode("99")
	assert.False(t, ok)

	assert.Equal(t, ResponseAccepted, c.ResponseOutcome("00"))
	assert.Equal(t, ResponsePending, c.ResponseOutcome("02"))
	assert.Equal(t, ResponseRejected, c.ResponseOutcome("04"))
	assert.Equal(t, ResponseRejected, c.ResponseOutcome("92"))
	assert.Equal(t, ResponseUnknown, c.ResponseOutcome("77"))

	rates := c.TaxRates()
	rates[0] = decimal.NewFromInt(99)
	assert.False(t, c.IsValidTaxRate(decimal.NewFromInt(99)))
}
