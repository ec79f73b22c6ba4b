// Package pipeline drives an invoice through build, sign, transmission and
// status polling, recording every authority interaction in the event log.
package pipeline

import (
	"context"
	"strconv"
	"sync"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/keys"
	"github.com/alapierre/go-dian-client/dian/lifecycle"
	"github.com/alapierre/go-dian-client/dian/metrics"
	"github.com/alapierre/go-dian-client/dian/model"
	"github.com/alapierre/go-dian-client/dian/mutex"
	"github.com/alapierre/go-dian-client/dian/sign"
	"github.com/alapierre/go-dian-client/dian/transport"
	"github.com/alapierre/go-dian-client/dian/ubl"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "dian.pipeline")

// Detail keys stored with every event.
const (
	DetailTrackingID = "tracking_id"
	DetailCUFE       = "cufe"
	DetailAttempts   = "attempts"
	DetailHTTPStatus = "http_status"
	DetailEnv        = "env"
)

// Outcome is what Issue and Poll report for one invoice.
type Outcome struct {
	InvoiceID string
	CUFE      string
	State     lifecycle.State
	// Result is nil when the invoice never reached the network.
	Result *transport.Result
	Signed *sign.SignedDocument
	// Unrecorded is the event that could not be appended to the log. Pass
	// the Outcome to Pipeline.Record to retry.
	Unrecorded *eventlog.Event
}

// Err returns the authority rejection or transport failure, if any.
func (o *Outcome) Err() error {
	if o == nil || o.Result == nil {
		return nil
	}
	return o.Result.Err
}

type entry struct {
	life       *lifecycle.Lifecycle
	trackingID string
	cufe       string
}

// Pipeline owns the lifecycles of the invoices it handles. Work on one
// invoice is serialized, different invoices proceed in parallel.
type Pipeline struct {
	builder *ubl.Builder
	signer  *sign.Signer
	client  *transport.Client
	events  *eventlog.Log
	metrics *metrics.Metrics
	env     dian.Environment

	locks mutex.KeyedMutex[string]

	mu      sync.Mutex
	entries map[string]*entry
}

type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithSigner(s *sign.Signer) Option {
	return func(p *Pipeline) {
		p.signer = s
	}
}

func New(builder *ubl.Builder, client *transport.Client, events *eventlog.Log, opts ...Option) (*Pipeline, error) {
	if builder == nil || client == nil || events == nil {
		return nil, dian.Configurationf("pipeline needs a builder, a transport client and an event log")
	}
	p := &Pipeline{
		builder: builder,
		signer:  sign.NewSigner(),
		client:  client,
		events:  events,
		env:     client.Environment(),
		entries: make(map[string]*entry),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// checkEnv rejects contexts bound to another environment than the pipeline.
func (p *Pipeline) checkEnv(ctx context.Context) error {
	if env, ok := dian.EnvFromContext(ctx); ok && env != p.env {
		return dian.Configurationf("context environment %s does not match pipeline environment %s", env, p.env)
	}
	return nil
}

// Issue builds, signs and submits inv. Authority rejections and transport
// failures are reported through the Outcome; a returned error means a local
// failure (validation, signing, configuration) or a failed event append.
//
// After a failed append the Outcome is still valid, the in-memory state is
// ahead of the log and Outcome.Unrecorded holds the missing event. Until
// Record succeeds a restarted process replays the invoice as Built and would
// submit it again.
func (p *Pipeline) Issue(ctx context.Context, inv *model.Invoice, cred keys.Credential) (*Outcome, error) {
	if err := p.checkEnv(ctx); err != nil {
		return nil, err
	}
	if inv == nil || inv.ID() == "" {
		return nil, dian.NewValidationError("invoice.id", nil, "required", "invoice has no identifier")
	}
	id := inv.ID()

	p.locks.Lock(id)
	defer p.locks.Unlock(id)

	e, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.life.State() != lifecycle.Built {
		return &Outcome{InvoiceID: id, CUFE: e.cufe, State: e.life.State()}, &dian.IllegalTransitionError{
			InvoiceID: id,
			From:      e.life.State().String(),
			Trigger:   string(lifecycle.SignSucceeded),
		}
	}

	log := logger.WithFields(logrus.Fields{"invoice": id, "env": p.env.Name()})
	if nit, ok := dian.NitFromContext(ctx); ok {
		log = log.WithField("nit", nit)
	}

	doc, err := p.builder.Build(inv)
	if err != nil {
		log.WithError(err).Warn("invoice rejected by builder")
		return &Outcome{InvoiceID: id, State: lifecycle.Built}, err
	}
	signed, err := p.signer.Sign(doc, cred)
	if err != nil {
		log.WithError(err).Error("signing failed")
		return &Outcome{InvoiceID: id, CUFE: doc.CUFE(), State: lifecycle.Built}, err
	}
	if signed.Size() > dian.MaxDocumentSize {
		err := dian.NewValidationError("document", signed.Size(), "max_size",
			"signed document exceeds the transmission size limit")
		log.WithError(err).Warn("invoice rejected before transmission")
		return &Outcome{InvoiceID: id, CUFE: signed.CUFE(), State: lifecycle.Built, Signed: signed}, err
	}
	e.cufe = signed.CUFE()
	if err := p.fire(e, lifecycle.SignSucceeded); err != nil {
		return nil, err
	}

	out := &Outcome{InvoiceID: id, CUFE: signed.CUFE(), State: e.life.State(), Signed: signed}

	res, err := p.client.Submit(ctx, signed)
	if err != nil {
		// nothing reached the log, the next load replays Built
		p.forget(id)
		log.WithError(err).Error("document not transmitted")
		out.State = lifecycle.Built
		return out, err
	}
	out.Result = res

	var triggers []lifecycle.Trigger
	switch res.Outcome {
	case transport.Received:
		triggers = []lifecycle.Trigger{lifecycle.TransportAccepted}
	case transport.Accepted:
		triggers = []lifecycle.Trigger{lifecycle.TransportAccepted, lifecycle.AuthorityAccepted}
	case transport.Rejected:
		triggers = []lifecycle.Trigger{lifecycle.TransportAccepted, lifecycle.AuthorityRejected}
	default:
		triggers = []lifecycle.Trigger{lifecycle.TransportFailed}
	}
	for _, t := range triggers {
		if err := p.fire(e, t); err != nil {
			return out, err
		}
	}
	out.State = e.life.State()
	if res.Outcome != transport.Failed {
		e.trackingID = res.TrackingID
	}

	return out, p.record(ctx, out, eventlog.KindSubmission, e, res)
}

// Poll queries the status of a Submitted invoice. Any other state fails with
// *dian.IllegalTransitionError before a request is made.
func (p *Pipeline) Poll(ctx context.Context, invoiceID string) (*Outcome, error) {
	if err := p.checkEnv(ctx); err != nil {
		return nil, err
	}
	p.locks.Lock(invoiceID)
	defer p.locks.Unlock(invoiceID)

	e, err := p.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	out := &Outcome{InvoiceID: invoiceID, CUFE: e.cufe, State: e.life.State()}
	if e.life.State() != lifecycle.Submitted {
		return out, &dian.IllegalTransitionError{
			InvoiceID: invoiceID,
			From:      e.life.State().String(),
			Trigger:   "status_query",
		}
	}

	trackingID := e.trackingID
	if trackingID == "" {
		trackingID = e.cufe
	}
	res, err := p.client.QueryStatus(ctx, trackingID)
	if err != nil {
		return out, err
	}
	out.Result = res

	var t lifecycle.Trigger
	switch res.Outcome {
	case transport.Accepted:
		t = lifecycle.AuthorityAccepted
	case transport.Rejected:
		t = lifecycle.AuthorityRejected
	case transport.Received:
		t = lifecycle.StillProcessing
	default:
		t = lifecycle.StatusExhausted
	}
	if err := p.fire(e, t); err != nil {
		return out, err
	}
	out.State = e.life.State()

	return out, p.record(ctx, out, eventlog.KindStatusQuery, e, res)
}

// Record appends the event a previous Issue or Poll failed to log. It is a
// no-op when out has nothing pending.
func (p *Pipeline) Record(ctx context.Context, out *Outcome) error {
	if out == nil || out.Unrecorded == nil {
		return nil
	}
	p.locks.Lock(out.InvoiceID)
	defer p.locks.Unlock(out.InvoiceID)

	if _, err := p.events.Append(ctx, out.InvoiceID, *out.Unrecorded); err != nil {
		p.metrics.IncEventLogFailure()
		return err
	}
	out.Unrecorded = nil
	return nil
}

// State reports the in-memory state of invoiceID. It waits for an Issue or
// Poll in progress on the same invoice.
func (p *Pipeline) State(invoiceID string) (lifecycle.State, bool) {
	p.locks.Lock(invoiceID)
	defer p.locks.Unlock(invoiceID)

	p.mu.Lock()
	e, ok := p.entries[invoiceID]
	p.mu.Unlock()
	if !ok {
		return 0, false
	}
	return e.life.State(), true
}

// Resume rebuilds the lifecycle of invoiceID from the event log, replacing
// whatever is held in memory.
func (p *Pipeline) Resume(ctx context.Context, invoiceID string) (lifecycle.State, error) {
	p.locks.Lock(invoiceID)
	defer p.locks.Unlock(invoiceID)

	e, err := p.replay(ctx, invoiceID)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.entries[invoiceID] = e
	p.mu.Unlock()
	return e.life.State(), nil
}

// load returns the cached entry or replays it. Callers hold the invoice lock.
func (p *Pipeline) load(ctx context.Context, invoiceID string) (*entry, error) {
	p.mu.Lock()
	e, ok := p.entries[invoiceID]
	p.mu.Unlock()
	if ok {
		return e, nil
	}

	e, err := p.replay(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.entries[invoiceID] = e
	p.mu.Unlock()
	return e, nil
}

func (p *Pipeline) replay(ctx context.Context, invoiceID string) (*entry, error) {
	records, err := p.events.Sequence(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	state, err := eventlog.Replay(records)
	if err != nil {
		return nil, err
	}
	life, err := lifecycle.Restore(invoiceID, state)
	if err != nil {
		return nil, err
	}

	e := &entry{life: life}
	for _, r := range records {
		if v := r.Details[DetailTrackingID]; v != "" {
			e.trackingID = v
		}
		if v := r.Details[DetailCUFE]; v != "" {
			e.cufe = v
		}
	}
	if len(records) > 0 {
		logger.WithFields(logrus.Fields{
			"invoice": invoiceID,
			"events":  len(records),
			"state":   state.String(),
		}).Debug("lifecycle replayed")
	}
	return e, nil
}

func (p *Pipeline) forget(invoiceID string) {
	p.mu.Lock()
	delete(p.entries, invoiceID)
	p.mu.Unlock()
}

func (p *Pipeline) fire(e *entry, t lifecycle.Trigger) error {
	to, err := e.life.Fire(t)
	if err != nil {
		return err
	}
	p.metrics.IncTransition(to.String())
	return nil
}

func (p *Pipeline) record(ctx context.Context, out *Outcome, kind eventlog.Kind, e *entry, res *transport.Result) error {
	details := map[string]string{
		DetailAttempts: strconv.Itoa(res.Attempts),
		DetailEnv:      p.env.Name(),
	}
	if e.trackingID != "" {
		details[DetailTrackingID] = e.trackingID
	}
	if e.cufe != "" {
		details[DetailCUFE] = e.cufe
	}
	if res.HTTPStatus != 0 {
		details[DetailHTTPStatus] = strconv.Itoa(res.HTTPStatus)
	}

	code := res.Code
	var te *dian.TransportError
	if code == "" && errors.As(res.Err, &te) {
		code = te.Kind.String()
	}

	ev := eventlog.Event{
		Kind:        kind,
		Code:        code,
		Description: res.Summary(),
		RawResponse: res.Raw,
		IsError:     res.Outcome == transport.Rejected || res.Outcome == transport.Failed,
		Details:     details,
		State:       e.life.State(),
	}
	if _, err := p.events.Append(ctx, out.InvoiceID, ev); err != nil {
		p.metrics.IncEventLogFailure()
		out.Unrecorded = &ev
		return err
	}
	return nil
}
