package postgres

import (
	"context"
	"database/sql"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/go-faster/errors"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS dian_events (
	seq          BIGSERIAL PRIMARY KEY,
	id           UUID NOT NULL UNIQUE,
	invoice_id   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	code         TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	raw_response BYTEA,
	timestamp    TIMESTAMPTZ NOT NULL,
	is_error     BOOLEAN NOT NULL DEFAULT FALSE,
	details      JSONB,
	state        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dian_events_invoice ON dian_events (invoice_id, seq);
CREATE OR REPLACE RULE dian_events_no_update AS ON UPDATE TO dian_events DO INSTEAD NOTHING;
CREATE OR REPLACE RULE dian_events_no_delete AS ON DELETE TO dian_events DO INSTEAD NOTHING;
`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with a lib/pq DSN and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &dian.PersistenceError{Op: "open", Err: err}
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &dian.PersistenceError{Op: "migrate", Err: err}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, r eventlog.Record) error {
	var details any
	if len(r.Details) > 0 {
		details = string(eventlog.EncodeDetails(r.Details))
	}
	state, err := r.State.MarshalText()
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	query := `
		INSERT INTO dian_events (id, invoice_id, kind, code, description, raw_response, timestamp, is_error, details, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		r.InvoiceID,
		string(r.Kind),
		r.Code,
		r.Description,
		r.RawResponse,
		r.Timestamp,
		r.IsError,
		details,
		string(state),
	)
	if err != nil {
		return &dian.PersistenceError{Op: "insert event", Err: err}
	}
	return nil
}

func (s *Store) Sequence(ctx context.Context, invoiceID string) ([]eventlog.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, kind, code, description, raw_response, timestamp, is_error, details, state
		FROM dian_events WHERE invoice_id = $1 ORDER BY seq`, invoiceID)
	if err != nil {
		return nil, &dian.PersistenceError{Op: "select events", Err: err}
	}
	defer rows.Close()

	var out []eventlog.Record
	for rows.Next() {
		var (
			r       eventlog.Record
			kind    string
			details []byte
			state   string
		)
		if err := rows.Scan(&r.ID, &r.InvoiceID, &kind, &r.Code, &r.Description, &r.RawResponse, &r.Timestamp, &r.IsError, &details, &state); err != nil {
			return nil, &dian.PersistenceError{Op: "scan event", Err: err}
		}
		r.Kind = eventlog.Kind(kind)
		r.Timestamp = r.Timestamp.UTC()
		if r.State, err = lifecycle.ParseState(state); err != nil {
			return nil, &dian.PersistenceError{Op: "decode event", Err: err}
		}
		if r.Details, err = eventlog.DecodeDetails(details); err != nil {
			return nil, &dian.PersistenceError{Op: "decode event", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &dian.PersistenceError{Op: "select events", Err: err}
	}
	return out, nil
}

var _ eventlog.Store = (*Store)(nil)
