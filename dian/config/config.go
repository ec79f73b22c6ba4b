// Package config reads the runtime configuration of the DIAN client from
// environment variables.
package config

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/eventlog/memory"
	"github.com/alapierre/go-dian-client/dian/eventlog/postgres"
	"github.com/alapierre/go-dian-client/dian/eventlog/sqlite"
	"github.com/alapierre/go-dian-client/dian/keys"
	"github.com/alapierre/go-dian-client/dian/model"
	"github.com/alapierre/go-dian-client/dian/util"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "dian.config")

const DefaultEventLogDSN = "sqlite://dian-events.db"

type Config struct {
	Env          dian.Environment
	Policy       dian.ConnectionPolicy
	Software     model.Software
	TechnicalKey string
	CertFile     string
	KeyFile      string
	KeyPassword  string
	EventLogDSN  string
	MetricsAddr  string
}

// FromEnv reads DIAN_* variables. Unset values fall back to the defaults of
// the certification (habilitación) environment.
func FromEnv() (*Config, error) {
	c := &Config{
		Software: model.Software{
			ID:          util.EnvOrDefault("DIAN_SOFTWARE_ID", ""),
			PIN:         util.EnvOrDefault("DIAN_SOFTWARE_PIN", ""),
			ProviderNIT: util.EnvOrDefault("DIAN_PROVIDER_NIT", ""),
		},
		TechnicalKey: util.EnvOrDefault("DIAN_TECHNICAL_KEY", ""),
		CertFile:     util.EnvOrDefault("DIAN_CERT_FILE", ""),
		KeyFile:      util.EnvOrDefault("DIAN_KEY_FILE", ""),
		KeyPassword:  util.EnvOrDefault("DIAN_KEY_PASS", ""),
		EventLogDSN:  util.EnvOrDefault("DIAN_EVENTLOG_DSN", DefaultEventLogDSN),
		MetricsAddr:  util.EnvOrDefault("DIAN_METRICS_ADDR", ":9464"),
	}

	if err := c.Env.UnmarshalText([]byte(util.EnvOrDefault("DIAN_ENV", "certification"))); err != nil {
		return nil, err
	}

	def := dian.DefaultConnectionPolicy()
	timeout, err := util.EnvDuration("DIAN_TIMEOUT", def.Timeout)
	if err != nil {
		return nil, &dian.ConfigurationError{Message: "DIAN_TIMEOUT", Err: err}
	}
	retries, err := util.EnvInt("DIAN_MAX_RETRIES", def.MaxRetries)
	if err != nil {
		return nil, &dian.ConfigurationError{Message: "DIAN_MAX_RETRIES", Err: err}
	}
	delay, err := util.EnvDuration("DIAN_RETRY_DELAY", def.RetryDelay)
	if err != nil {
		return nil, &dian.ConfigurationError{Message: "DIAN_RETRY_DELAY", Err: err}
	}
	c.Policy = dian.ConnectionPolicy{Timeout: timeout, MaxRetries: retries, RetryDelay: delay}
	if err := c.Policy.Validate(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"env":      c.Env.Name(),
		"timeout":  c.Policy.Timeout,
		"retries":  c.Policy.MaxRetries,
		"eventlog": redact(c.EventLogDSN),
	}).Debug("configuration loaded")
	return c, nil
}

// Registry returns the default DIAN registry using the configured policy.
func (c *Config) Registry() (*dian.Registry, error) {
	return dian.DefaultRegistry().WithConnectionPolicy(c.Policy)
}

// Credential loads the signing credential. A .p12/.pfx CertFile is read as
// a PKCS#12 bundle and KeyFile is ignored.
func (c *Config) Credential() (keys.Credential, error) {
	if c.CertFile == "" {
		return keys.Credential{}, dian.Configurationf("DIAN_CERT_FILE is not set")
	}
	switch strings.ToLower(filepath.Ext(c.CertFile)) {
	case ".p12", ".pfx":
		return keys.LoadPKCS12(c.CertFile, c.KeyPassword)
	}
	if c.KeyFile == "" {
		return keys.Credential{}, dian.Configurationf("DIAN_KEY_FILE is not set")
	}
	return keys.LoadCredential(c.CertFile, c.KeyFile, []byte(c.KeyPassword))
}

// ApplyTechnicalKey fills the resolution technical key of inv when the
// upstream payload carries none.
func (c *Config) ApplyTechnicalKey(inv *model.Invoice) {
	if inv.Resolution.TechnicalKey == "" && c.TechnicalKey != "" {
		inv.Resolution.TechnicalKey = c.TechnicalKey
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenEventStore opens the store named by dsn: "memory", "sqlite://<path>"
// or a PostgreSQL URL.
func OpenEventStore(ctx context.Context, dsn string) (eventlog.Store, io.Closer, error) {
	switch {
	case dsn == "memory":
		return memory.NewStore(), nopCloser{}, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		s, err := sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, dian.Configurationf("unsupported DIAN_EVENTLOG_DSN %q (memory, sqlite://, postgres://)", redact(dsn))
}

// redact hides the password of a URL shaped DSN.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}

// Timeout is the worst case duration of one submission, used by the CLI to
// bound a whole command.
func (c *Config) Timeout() time.Duration {
	return c.Policy.TotalBudget() + 30*time.Second
}
