package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	dsn, ok := os.LookupEnv("DIAN_TEST_POSTGRES_DSN")
	if !ok {
		t.Skipf("DIAN_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	invoice := "TEST" + uuid.NewString()
	log := eventlog.New(s)

	_, err = log.Append(ctx, invoice, eventlog.Event{
		Kind:    eventlog.KindSubmission,
		Code:    "02",
		Details: map[string]string{"tracking_id": "abc"},
		State:   lifecycle.Submitted,
	})
	require.NoError(t, err)
	_, err = log.Append(ctx, invoice, eventlog.Event{Kind: eventlog.KindStatusQuery, Code: "00", State: lifecycle.Accepted})
	require.NoError(t, err)

	seq, err := log.Sequence(ctx, invoice)
	require.NoError(t, err)
	require.Len(t, seq, 2)
	assert.Equal(t, "abc", seq[0].Details["tracking_id"])

	state, err := eventlog.Replay(seq)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Accepted, state)
}
