package eventlog_test

import (
	"testing"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(kind eventlog.Kind, s lifecycle.State) eventlog.Record {
	return eventlog.Record{InvoiceID: "SETP1", Kind: kind, State: s}
}

func TestReplay(t *testing.T) {
	sub, st := eventlog.KindSubmission, eventlog.KindStatusQuery

	tests := []struct {
		name    string
		records []eventlog.Record
		want    lifecycle.State
	}{
		{"no events", nil, lifecycle.Built},
		{"received", []eventlog.Record{rec(sub, lifecycle.Submitted)}, lifecycle.Submitted},
		{"accepted on submit", []eventlog.Record{rec(sub, lifecycle.Accepted)}, lifecycle.Accepted},
		{"rejected on submit", []eventlog.Record{rec(sub, lifecycle.Rejected)}, lifecycle.Rejected},
		{"transport failed", []eventlog.Record{rec(sub, lifecycle.TransmissionFailed)}, lifecycle.TransmissionFailed},
		{"polled to acceptance", []eventlog.Record{
			rec(sub, lifecycle.Submitted),
			rec(st, lifecycle.Submitted),
			rec(st, lifecycle.Accepted),
		}, lifecycle.Accepted},
		{"polling exhausted", []eventlog.Record{
			rec(sub, lifecycle.Submitted),
			rec(st, lifecycle.TransmissionFailed),
		}, lifecycle.TransmissionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eventlog.Replay(tt.records)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReplay_InconsistentHistory(t *testing.T) {
	_, err := eventlog.Replay([]eventlog.Record{
		rec(eventlog.KindSubmission, lifecycle.Accepted),
		rec(eventlog.KindStatusQuery, lifecycle.Rejected),
	})
	assert.ErrorIs(t, err, dian.ErrIllegalTransition)

	_, err = eventlog.Replay([]eventlog.Record{rec(eventlog.KindSubmission, lifecycle.Signed)})
	assert.ErrorIs(t, err, dian.ErrIllegalTransition)
}
