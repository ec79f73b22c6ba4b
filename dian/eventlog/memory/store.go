package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/alapierre/go-dian-client/dian/eventlog"
)

type Store struct {
	mu     sync.RWMutex
	events map[string][]eventlog.Record
}

func NewStore() *Store {
	return &Store{events: make(map[string][]eventlog.Record)}
}

func (s *Store) Append(_ context.Context, r eventlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[r.InvoiceID] = append(s.events[r.InvoiceID], clone(r))
	return nil
}

func (s *Store) Sequence(_ context.Context, invoiceID string) ([]eventlog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]eventlog.Record, 0, len(s.events[invoiceID]))
	for _, r := range s.events[invoiceID] {
		out = append(out, clone(r))
	}
	return out, nil
}

// InvoiceIDs lists every invoice with at least one record.
func (s *Store) InvoiceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func clone(r eventlog.Record) eventlog.Record {
	r.RawResponse = slices.Clone(r.RawResponse)
	if r.Details != nil {
		d := make(map[string]string, len(r.Details))
		for k, v := range r.Details {
			d[k] = v
		}
		r.Details = d
	}
	return r
}
