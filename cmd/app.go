package cmd

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/config"
	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/metrics"
	"github.com/alapierre/go-dian-client/dian/model"
	"github.com/alapierre/go-dian-client/dian/pipeline"
	"github.com/alapierre/go-dian-client/dian/transport"
	"github.com/alapierre/go-dian-client/dian/ubl"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// app is the wiring shared by the commands that talk to DIAN.
type app struct {
	registry *dian.Registry
	builder  *ubl.Builder
	events   *eventlog.Log
	pipeline *pipeline.Pipeline
	closer   io.Closer
}

func newApp(ctx context.Context, reg prometheus.Registerer) (*app, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	builder, err := ubl.NewBuilder(registry, cfg.Env, cfg.Software)
	if err != nil {
		return nil, err
	}
	m := metrics.New(reg)
	client, err := transport.NewClient(registry, cfg.Env, transport.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	store, closer, err := config.OpenEventStore(ctx, cfg.EventLogDSN)
	if err != nil {
		return nil, err
	}
	events := eventlog.New(store)
	p, err := pipeline.New(builder, client, events, pipeline.WithMetrics(m))
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &app{
		registry: registry,
		builder:  builder,
		events:   events,
		pipeline: p,
		closer:   closer,
	}, nil
}

func (a *app) Close() error {
	return a.closer.Close()
}

// newBuilder is enough for the offline commands (build, qr).
func newBuilder() (*ubl.Builder, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	return ubl.NewBuilder(registry, cfg.Env, cfg.Software)
}

// readInvoice decodes the upstream invoice payload.
func readInvoice(path string) (*model.Invoice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open invoice")
	}
	defer func() { _ = f.Close() }()

	var inv model.Invoice
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&inv); err != nil {
		return nil, errors.Wrapf(err, "decode invoice %s", path)
	}
	cfg.ApplyTechnicalKey(&inv)
	return &inv, nil
}

// commandContext bounds a command by the worst case transmission time.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, cfg.Timeout())
	return dian.ContextWithEnv(ctx, cfg.Software.ProviderNIT, cfg.Env), cancel
}

func writeFile(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}
