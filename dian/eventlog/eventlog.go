package eventlog

import (
	"context"
	"slices"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "dian.eventlog")

// Kind tells which authority interaction produced an event.
type Kind string

const (
	KindSubmission  Kind = "submission"
	KindStatusQuery Kind = "status_query"
)

func (k Kind) Valid() bool {
	return k == KindSubmission || k == KindStatusQuery
}

// Event is what the caller hands to Append.
type Event struct {
	Kind        Kind
	Code        string
	Description string
	RawResponse []byte
	IsError     bool
	Details     map[string]string
	// State is the lifecycle state reached after the interaction.
	State lifecycle.State
}

// Record is an EventoDian entry: one stored authority interaction. Records
// are never updated or deleted.
type Record struct {
	ID          uuid.UUID
	InvoiceID   string
	Kind        Kind
	Code        string
	Description string
	RawResponse []byte
	Timestamp   time.Time
	IsError     bool
	Details     map[string]string
	State       lifecycle.State
}

// Store persists records. Sequence returns the records of one invoice in
// insertion order.
type Store interface {
	Append(ctx context.Context, r Record) error
	Sequence(ctx context.Context, invoiceID string) ([]Record, error)
}

type Log struct {
	store Store
	clock clockwork.Clock
}

type Option func(*Log)

func WithClock(c clockwork.Clock) Option {
	return func(l *Log) {
		l.clock = c
	}
}

func New(store Store, opts ...Option) *Log {
	l := &Log{store: store, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Append records ev for invoiceID. Only storage failures produce a
// *dian.PersistenceError; the caller must not assume the event was recorded
// and may retry the append on its own.
func (l *Log) Append(ctx context.Context, invoiceID string, ev Event) (Record, error) {
	if invoiceID == "" {
		return Record{}, dian.NewValidationError("invoiceID", nil, "required", "event has no invoice reference")
	}
	if !ev.Kind.Valid() {
		return Record{}, dian.NewValidationError("kind", string(ev.Kind), "oneof=submission status_query", "unknown event kind")
	}
	if _, err := ev.State.MarshalText(); err != nil {
		return Record{}, dian.NewValidationError("state", int(ev.State), "lifecycle", "unknown lifecycle state")
	}

	r := Record{
		ID:          uuid.New(),
		InvoiceID:   invoiceID,
		Kind:        ev.Kind,
		Code:        ev.Code,
		Description: ev.Description,
		RawResponse: slices.Clone(ev.RawResponse),
		Timestamp:   l.clock.Now().UTC(),
		IsError:     ev.IsError,
		Details:     cloneDetails(ev.Details),
		State:       ev.State,
	}

	if err := l.store.Append(ctx, r); err != nil {
		logger.WithError(err).WithField("invoice", invoiceID).Error("event append failed")
		var pe *dian.PersistenceError
		if errors.As(err, &pe) {
			return Record{}, err
		}
		return Record{}, &dian.PersistenceError{Op: "append", Err: err}
	}

	logger.WithFields(logrus.Fields{
		"invoice": invoiceID,
		"code":    r.Code,
		"state":   r.State.String(),
		"error":   r.IsError,
	}).Debug("event recorded")
	return r, nil
}

// Sequence returns the records of invoiceID in insertion order.
func (l *Log) Sequence(ctx context.Context, invoiceID string) ([]Record, error) {
	rs, err := l.store.Sequence(ctx, invoiceID)
	if err != nil {
		var pe *dian.PersistenceError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &dian.PersistenceError{Op: "read", Err: err}
	}
	return rs, nil
}

// List returns the records of invoiceID newest first. Records sharing a
// timestamp keep reverse insertion order.
func (l *Log) List(ctx context.Context, invoiceID string) ([]Record, error) {
	rs, err := l.Sequence(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	slices.Reverse(rs)
	slices.SortStableFunc(rs, func(a, b Record) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return rs, nil
}

func cloneDetails(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
