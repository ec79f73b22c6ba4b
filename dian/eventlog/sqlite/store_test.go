package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 15, 30, 0, 123456789, time.UTC))
	log := eventlog.New(open(t), eventlog.WithClock(clock))

	first, err := log.Append(ctx, "SETP1", eventlog.Event{
		Kind:        eventlog.KindSubmission,
		Code:        "02",
		Description: "Procesado con observaciones",
		RawResponse: []byte("<s:Envelope/>"),
		Details:     map[string]string{"tracking_id": "abc", "attempts": "1"},
		State:       lifecycle.Submitted,
	})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = log.Append(ctx, "SETP1", eventlog.Event{
		Kind:    eventlog.KindStatusQuery,
		Code:    "99",
		IsError: true,
		State:   lifecycle.Rejected,
	})
	require.NoError(t, err)

	_, err = log.Append(ctx, "SETP2", eventlog.Event{Kind: eventlog.KindSubmission, State: lifecycle.TransmissionFailed, IsError: true})
	require.NoError(t, err)

	seq, err := log.Sequence(ctx, "SETP1")
	require.NoError(t, err)
	require.Len(t, seq, 2)
	assert.Equal(t, first.ID, seq[0].ID)
	assert.True(t, first.Timestamp.Equal(seq[0].Timestamp))
	assert.Equal(t, map[string]string{"tracking_id": "abc", "attempts": "1"}, seq[0].Details)
	assert.Equal(t, []byte("<s:Envelope/>"), seq[0].RawResponse)
	assert.Equal(t, lifecycle.Submitted, seq[0].State)
	assert.False(t, seq[0].IsError)
	assert.True(t, seq[1].IsError)
	assert.Nil(t, seq[1].Details)

	list, err := log.List(ctx, "SETP1")
	require.NoError(t, err)
	assert.Equal(t, "99", list[0].Code)

	state, err := eventlog.Replay(seq)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Rejected, state)
}

func TestStore_AppendOnly(t *testing.T) {
	s := open(t)
	log := eventlog.New(s)
	_, err := log.Append(context.Background(), "SETP1", eventlog.Event{Kind: eventlog.KindSubmission, State: lifecycle.Submitted})
	require.NoError(t, err)

	_, err = s.db.Exec(`UPDATE dian_events SET code = '00'`)
	assert.Error(t, err)
	_, err = s.db.Exec(`DELETE FROM dian_events`)
	assert.Error(t, err)
}

func TestStore_ReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = eventlog.New(s).Append(context.Background(), "SETP1", eventlog.Event{Kind: eventlog.KindSubmission, State: lifecycle.Accepted})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	seq, err := s.Sequence(context.Background(), "SETP1")
	require.NoError(t, err)
	assert.Len(t, seq, 1)
}
