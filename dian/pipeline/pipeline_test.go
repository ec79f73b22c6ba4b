package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/eventlog/memory"
	"github.com/alapierre/go-dian-client/dian/keys"
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/alapierre/go-dian-client/dian/metrics"
	"github.com/alapierre/go-dian-client/dian/transport"
	"github.com/alapierre/go-dian-client/dian/ubl"
	"github.com/alapierre/go-dian-client/internal/fixture"
	"github.com/alapierre/go-dian-client/internal/testcert"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(code string) string {
	return `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"><s:Body>
<Result xmlns:b="http://schemas.datacontract.org/2004/07/DianResponse">
<b:StatusCode>` + code + `</b:StatusCode>
<b:StatusDescription>status ` + code + `</b:StatusDescription>
<b:XmlDocumentKey>track-1</b:XmlDocumentKey>
</Result></s:Body></s:Envelope>`
}

// authority is a fake DIAN answering submissions and status queries with the
// configured codes. An empty code answers 503.
type authority struct {
	*httptest.Server
	mu          sync.Mutex
	submitCode  string
	statusCode  string
	submissions atomic.Int32
	queries     atomic.Int32
}

func newAuthority(t *testing.T, submitCode, statusCode string) *authority {
	t.Helper()
	a := &authority{submitCode: submitCode, statusCode: statusCode}
	a.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		code := a.submitCode
		if strings.HasSuffix(r.URL.Path, "/GetStatus") {
			a.queries.Add(1)
			code = a.statusCode
		} else {
			a.submissions.Add(1)
		}
		a.mu.Unlock()

		if code == "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, response(code))
	}))
	t.Cleanup(a.Close)
	return a
}

func (a *authority) setStatus(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusCode = code
}

func (a *authority) registry(t *testing.T) *dian.Registry {
	t.Helper()
	r, err := dian.NewRegistry(map[dian.Environment]dian.Endpoints{
		dian.Certification: {
			Submission:  a.URL + "/WcfDianCustomerServices.svc",
			Validation:  a.URL + "/User/SearchDocument",
			StatusQuery: a.URL + "/WcfDianCustomerServices.svc/GetStatus",
		},
	}, dian.ConnectionPolicy{Timeout: 5 * time.Second, MaxRetries: 1}, dian.DefaultCatalog())
	require.NoError(t, err)
	return r
}

func newPipeline(t *testing.T, a *authority, store eventlog.Store, opts ...Option) *Pipeline {
	t.Helper()
	reg := a.registry(t)
	b, err := ubl.NewBuilder(reg, dian.Certification, fixture.Software)
	require.NoError(t, err)
	c, err := transport.NewClient(reg, dian.Certification)
	require.NoError(t, err)
	p, err := New(b, c, eventlog.New(store), opts...)
	require.NoError(t, err)
	return p
}

func credential(t *testing.T) keys.Credential {
	key, cert := testcert.Valid(t)
	return keys.Credential{Signer: key, Certificate: cert}
}

func replayed(t *testing.T, store eventlog.Store, id string) lifecycle.State {
	t.Helper()
	rs, err := store.Sequence(context.Background(), id)
	require.NoError(t, err)
	s, err := eventlog.Replay(rs)
	require.NoError(t, err)
	return s
}

func TestIssue_Accepted(t *testing.T) {
	a := newAuthority(t, "00", "")
	store := memory.NewStore()
	p := newPipeline(t, a, store)

	out, err := p.Issue(context.Background(), fixture.Invoice(), credential(t))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Accepted, out.State)
	assert.NoError(t, out.Err())
	assert.Len(t, out.CUFE, 96)

	rs, err := store.Sequence(context.Background(), out.InvoiceID)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, eventlog.KindSubmission, rs[0].Kind)
	assert.Equal(t, "00", rs[0].Code)
	assert.False(t, rs[0].IsError)
	assert.Equal(t, "track-1", rs[0].Details[DetailTrackingID])
	assert.Equal(t, out.CUFE, rs[0].Details[DetailCUFE])
	assert.Equal(t, out.State, replayed(t, store, out.InvoiceID))

	state, ok := p.State(out.InvoiceID)
	assert.True(t, ok)
	assert.Equal(t, lifecycle.Accepted, state)
}

func TestIssue_RejectedIsTerminal(t *testing.T) {
	a := newAuthority(t, "92", "00")
	store := memory.NewStore()
	p := newPipeline(t, a, store)

	out, err := p.Issue(context.Background(), fixture.Invoice(), credential(t))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Rejected, out.State)
	assert.ErrorIs(t, out.Err(), dian.ErrAuthorityRejected)

	rs, err := store.Sequence(context.Background(), out.InvoiceID)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].IsError)
	assert.Equal(t, lifecycle.Rejected, rs[0].State)
	assert.Equal(t, lifecycle.Rejected, replayed(t, store, out.InvoiceID))

	_, err = p.Poll(context.Background(), out.InvoiceID)
	assert.ErrorIs(t, err, dian.ErrIllegalTransition)
	assert.Zero(t, a.queries.Load())
	assert.EqualValues(t, 1, a.submissions.Load())
}

func TestIssue_PendingThenPoll(t *testing.T) {
	a := newAuthority(t, "66", "02")
	store := memory.NewStore()
	p := newPipeline(t, a, store)
	ctx := context.Background()

	out, err := p.Issue(ctx, fixture.Invoice(), credential(t))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Submitted, out.State)

	out, err = p.Poll(ctx, out.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Submitted, out.State)

	a.setStatus("00")
	out, err = p.Poll(ctx, out.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Accepted, out.State)
	assert.EqualValues(t, 2, a.queries.Load())

	rs, err := store.Sequence(ctx, out.InvoiceID)
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, eventlog.KindStatusQuery, rs[2].Kind)
	assert.Equal(t, lifecycle.Accepted, replayed(t, store, out.InvoiceID))

	_, err = p.Poll(ctx, out.InvoiceID)
	assert.ErrorIs(t, err, dian.ErrIllegalTransition)
	assert.EqualValues(t, 2, a.queries.Load())
}

func TestIssue_TransmissionFailed(t *testing.T) {
	a := newAuthority(t, "", "")
	store := memory.NewStore()
	p := newPipeline(t, a, store)

	out, err := p.Issue(context.Background(), fixture.Invoice(), credential(t))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TransmissionFailed, out.State)
	assert.ErrorIs(t, out.Err(), dian.ErrConnection)
	assert.EqualValues(t, 2, a.submissions.Load())

	rs, err := store.Sequence(context.Background(), out.InvoiceID)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.True(t, rs[0].IsError)
	assert.Equal(t, "connection_error", rs[0].Code)
	assert.Equal(t, "2", rs[0].Details[DetailAttempts])
	assert.Equal(t, lifecycle.TransmissionFailed, replayed(t, store, out.InvoiceID))
}

func TestIssue_ValidationNeverReachesNetwork(t *testing.T) {
	a := newAuthority(t, "00", "")
	store := memory.NewStore()
	p := newPipeline(t, a, store)

	inv := fixture.Invoice()
	inv.Totals.Payable = inv.Totals.Payable.Add(inv.Totals.Payable)
	out, err := p.Issue(context.Background(), inv, credential(t))
	assert.ErrorIs(t, err, dian.ErrValidation)
	assert.Equal(t, lifecycle.Built, out.State)
	assert.Zero(t, a.submissions.Load())
	assert.Empty(t, store.InvoiceIDs())
}

func TestIssue_ReissueRefused(t *testing.T) {
	a := newAuthority(t, "66", "")
	p := newPipeline(t, a, memory.NewStore())

	_, err := p.Issue(context.Background(), fixture.Invoice(), credential(t))
	require.NoError(t, err)

	out, err := p.Issue(context.Background(), fixture.Invoice(), credential(t))
	assert.ErrorIs(t, err, dian.ErrIllegalTransition)
	assert.Equal(t, lifecycle.Submitted, out.State)
	assert.EqualValues(t, 1, a.submissions.Load())
}

func TestIssue_EnvironmentMismatch(t *testing.T) {
	a := newAuthority(t, "00", "")
	p := newPipeline(t, a, memory.NewStore())

	ctx := dian.ContextWithEnv(context.Background(), "900123456", dian.Production)
	_, err := p.Issue(ctx, fixture.Invoice(), credential(t))
	assert.ErrorIs(t, err, dian.ErrConfiguration)

	_, err = p.Poll(ctx, "SETP990000001")
	assert.ErrorIs(t, err, dian.ErrConfiguration)
	assert.Zero(t, a.submissions.Load())
}

type failingStore struct{ *memory.Store }

func (failingStore) Append(context.Context, eventlog.Record) error {
	return errors.New("disk full")
}

func TestIssue_PersistenceFailure(t *testing.T) {
	a := newAuthority(t, "00", "")
	m := metrics.New(prometheus.NewRegistry())
	p := newPipeline(t, a, failingStore{memory.NewStore()}, WithMetrics(m))

	out, err := p.Issue(context.Background(), fixture.Invoice(), credential(t))
	assert.ErrorIs(t, err, dian.ErrPersistence)
	require.NotNil(t, out)
	assert.Equal(t, lifecycle.Accepted, out.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventLogFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("Accepted")))
}

// flakyStore fails appends while down is set.
type flakyStore struct {
	*memory.Store
	down atomic.Bool
}

func (f *flakyStore) Append(ctx context.Context, r eventlog.Record) error {
	if f.down.Load() {
		return errors.New("connection reset")
	}
	return f.Store.Append(ctx, r)
}

func TestRecord_AfterPersistenceFailure(t *testing.T) {
	a := newAuthority(t, "00", "")
	store := &flakyStore{Store: memory.NewStore()}
	store.down.Store(true)
	p := newPipeline(t, a, store)
	ctx := context.Background()

	out, err := p.Issue(ctx, fixture.Invoice(), credential(t))
	assert.ErrorIs(t, err, dian.ErrPersistence)
	require.NotNil(t, out.Unrecorded)
	assert.Equal(t, eventlog.KindSubmission, out.Unrecorded.Kind)
	assert.Equal(t, lifecycle.Built, replayed(t, store, out.InvoiceID))

	assert.ErrorIs(t, p.Record(ctx, out), dian.ErrPersistence)
	assert.NotNil(t, out.Unrecorded)

	store.down.Store(false)
	require.NoError(t, p.Record(ctx, out))
	assert.Nil(t, out.Unrecorded)
	assert.Equal(t, lifecycle.Accepted, replayed(t, store, out.InvoiceID))
	require.NoError(t, p.Record(ctx, out))

	rs, err := store.Sequence(ctx, out.InvoiceID)
	require.NoError(t, err)
	assert.Len(t, rs, 1)
	assert.EqualValues(t, 1, a.submissions.Load())
}

func TestIssue_OversizedDocument(t *testing.T) {
	a := newAuthority(t, "00", "")
	store := memory.NewStore()
	p := newPipeline(t, a, store)
	ctx := context.Background()

	inv := fixture.Invoice()
	inv.Note = strings.Repeat("x", dian.MaxDocumentSize+1)
	out, err := p.Issue(ctx, inv, credential(t))
	assert.ErrorIs(t, err, dian.ErrValidation)
	assert.Equal(t, lifecycle.Built, out.State)
	assert.Zero(t, a.submissions.Load())

	state, ok := p.State(out.InvoiceID)
	require.True(t, ok)
	assert.Equal(t, lifecycle.Built, state)
	assert.Equal(t, replayed(t, store, out.InvoiceID), state)

	// the corrected invoice goes through
	out, err = p.Issue(ctx, fixture.Invoice(), credential(t))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Accepted, out.State)
	assert.EqualValues(t, 1, a.submissions.Load())
}

func TestResume(t *testing.T) {
	a := newAuthority(t, "66", "")
	store := memory.NewStore()
	ctx := context.Background()

	out, err := newPipeline(t, a, store).Issue(ctx, fixture.Invoice(), credential(t))
	require.NoError(t, err)

	// a new process only has the log
	p := newPipeline(t, a, store)
	_, ok := p.State(out.InvoiceID)
	assert.False(t, ok)

	state, err := p.Resume(ctx, out.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Submitted, state)

	a.setStatus("99")
	polled, err := p.Poll(ctx, out.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Rejected, polled.State)
	assert.Equal(t, lifecycle.Rejected, replayed(t, store, out.InvoiceID))
}

func TestIssue_SerializedPerInvoice(t *testing.T) {
	a := newAuthority(t, "00", "")
	store := memory.NewStore()
	p := newPipeline(t, a, store)
	cred := credential(t)

	const workers = 8
	var wg sync.WaitGroup
	var issued, refused atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			inv := fixture.Invoice()
			// two invoices, each raced by four goroutines
			inv.Number += int64(n % 2)
			_, err := p.Issue(context.Background(), inv, cred)
			switch {
			case err == nil:
				issued.Add(1)
			case errors.Is(err, dian.ErrIllegalTransition):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 2, issued.Load())
	assert.EqualValues(t, workers-2, refused.Load())
	assert.EqualValues(t, 2, a.submissions.Load())
	assert.ElementsMatch(t, []string{"SETP990000001", "SETP990000002"}, store.InvoiceIDs())
}
