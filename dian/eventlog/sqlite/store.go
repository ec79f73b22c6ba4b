package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS dian_events (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	invoice_id   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	code         TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	raw_response BLOB,
	timestamp    TEXT NOT NULL,
	is_error     INTEGER NOT NULL DEFAULT 0,
	details      TEXT,
	state        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dian_events_invoice ON dian_events (invoice_id, seq);
CREATE TRIGGER IF NOT EXISTS dian_events_no_update BEFORE UPDATE ON dian_events
BEGIN SELECT RAISE(ABORT, 'dian_events is append-only'); END;
CREATE TRIGGER IF NOT EXISTS dian_events_no_delete BEFORE DELETE ON dian_events
BEGIN SELECT RAISE(ABORT, 'dian_events is append-only'); END;
`

type row struct {
	Seq         int64          `db:"seq"`
	ID          string         `db:"id"`
	InvoiceID   string         `db:"invoice_id"`
	Kind        string         `db:"kind"`
	Code        string         `db:"code"`
	Description string         `db:"description"`
	RawResponse []byte         `db:"raw_response"`
	Timestamp   string         `db:"timestamp"`
	IsError     bool           `db:"is_error"`
	Details     sql.NullString `db:"details"`
	State       string         `db:"state"`
}

type Store struct {
	db *sqlx.DB
}

// Open opens (creating when needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &dian.PersistenceError{Op: "open", Err: err}
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &dian.PersistenceError{Op: "migrate", Err: err}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, r eventlog.Record) error {
	var details sql.NullString
	if len(r.Details) > 0 {
		details = sql.NullString{String: string(eventlog.EncodeDetails(r.Details)), Valid: true}
	}
	state, err := r.State.MarshalText()
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO dian_events (id, invoice_id, kind, code, description, raw_response, timestamp, is_error, details, state)
		VALUES (:id, :invoice_id, :kind, :code, :description, :raw_response, :timestamp, :is_error, :details, :state)`,
		row{
			ID:          r.ID.String(),
			InvoiceID:   r.InvoiceID,
			Kind:        string(r.Kind),
			Code:        r.Code,
			Description: r.Description,
			RawResponse: r.RawResponse,
			Timestamp:   r.Timestamp.UTC().Format(time.RFC3339Nano),
			IsError:     r.IsError,
			Details:     details,
			State:       string(state),
		})
	if err != nil {
		return &dian.PersistenceError{Op: "insert event", Err: err}
	}
	return nil
}

func (s *Store) Sequence(ctx context.Context, invoiceID string) ([]eventlog.Record, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, id, invoice_id, kind, code, description, raw_response, timestamp, is_error, details, state
		FROM dian_events WHERE invoice_id = ? ORDER BY seq`, invoiceID)
	if err != nil {
		return nil, &dian.PersistenceError{Op: "select events", Err: err}
	}

	out := make([]eventlog.Record, 0, len(rows))
	for _, rw := range rows {
		r, err := rw.record()
		if err != nil {
			return nil, &dian.PersistenceError{Op: "decode event", Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}

func (rw row) record() (eventlog.Record, error) {
	id, err := uuid.Parse(rw.ID)
	if err != nil {
		return eventlog.Record{}, errors.Wrapf(err, "event id %q", rw.ID)
	}
	ts, err := time.Parse(time.RFC3339Nano, rw.Timestamp)
	if err != nil {
		return eventlog.Record{}, errors.Wrapf(err, "event %s timestamp", rw.ID)
	}
	state, err := lifecycle.ParseState(rw.State)
	if err != nil {
		return eventlog.Record{}, err
	}
	details, err := eventlog.DecodeDetails([]byte(rw.Details.String))
	if err != nil {
		return eventlog.Record{}, err
	}
	return eventlog.Record{
		ID:          id,
		InvoiceID:   rw.InvoiceID,
		Kind:        eventlog.Kind(rw.Kind),
		Code:        rw.Code,
		Description: rw.Description,
		RawResponse: rw.RawResponse,
		Timestamp:   ts,
		IsError:     rw.IsError,
		Details:     details,
		State:       state,
	}, nil
}
