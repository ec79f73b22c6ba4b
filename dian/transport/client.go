package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/alapierre/go-dian-client/dian/metrics"
	"github.com/alapierre/go-dian-client/dian/sign"
	"github.com/alapierre/go-dian-client/dian/util"
	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "dian.transport")

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 8 << 20

// Client sends signed documents to the DIAN web services of one environment.
// It is safe for concurrent use; it keeps no per-call state.
type Client struct {
	httpClient *http.Client
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	policy     dian.ConnectionPolicy
	catalog    dian.RegulatoryCatalog
	env        dian.Environment
	submitURL  string
	statusURL  string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(cl *Client) {
		cl.clock = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// NewClient resolves the submission and status endpoints of env. The retry
// policy is taken from the registry at construction time.
func NewClient(registry *dian.Registry, env dian.Environment, opts ...Option) (*Client, error) {
	if registry == nil {
		return nil, dian.Configurationf("transport client needs a registry")
	}
	submitURL, err := registry.ResolveEndpoint(env, dian.Submission)
	if err != nil {
		return nil, err
	}
	statusURL, err := registry.ResolveEndpoint(env, dian.StatusQuery)
	if err != nil {
		return nil, err
	}

	c := &Client{
		httpClient: http.DefaultClient,
		clock:      clockwork.NewRealClock(),
		policy:     registry.ConnectionPolicy(),
		catalog:    registry.Catalog(),
		env:        env,
		submitURL:  submitURL,
		statusURL:  statusURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Environment() dian.Environment {
	return c.env
}

// Submit packages signed and sends it with SendBillSync. Oversized documents
// are rejected locally without any request. The returned error is only set
// for local failures; transport and authority outcomes are reported in the
// Result.
func (c *Client) Submit(ctx context.Context, signed *sign.SignedDocument) (*Result, error) {
	if signed == nil {
		return nil, dian.NewValidationError("document", nil, "required", "signed document is nil")
	}
	if signed.Size() > dian.MaxDocumentSize {
		return nil, dian.NewValidationError("document", signed.Size(), "max_size",
			"signed document exceeds the transmission size limit")
	}

	zipName, zipped, err := Package(signed)
	if err != nil {
		return nil, err
	}
	body, err := sendBillSyncEnvelope(c.submitURL, zipName, zipped)
	if err != nil {
		return nil, errors.Wrap(err, "render SendBillSync envelope")
	}

	log := logger.WithFields(logrus.Fields{
		"invoice": signed.ID(),
		"env":     c.env.Name(),
	})
	return c.exchange(ctx, log, metrics.OpSubmit, c.submitURL, actionSendBillSync, body, signed.CUFE()), nil
}

// QueryStatus asks for the current state of a previously submitted document.
func (c *Client) QueryStatus(ctx context.Context, trackingID string) (*Result, error) {
	if trackingID == "" {
		return nil, dian.NewValidationError("tracking_id", nil, "required", "tracking id is empty")
	}
	body, err := getStatusEnvelope(c.statusURL, trackingID)
	if err != nil {
		return nil, errors.Wrap(err, "render GetStatus envelope")
	}

	log := logger.WithFields(logrus.Fields{
		"track_id": trackingID,
		"env":      c.env.Name(),
	})
	return c.exchange(ctx, log, metrics.OpStatus, c.statusURL, actionGetStatus, body, trackingID), nil
}

// exchange runs the retry loop. Retryable transport errors are retried up to
// policy.MaxRetries times, a malformed response only once, and an authority
// answer (accepted, pending or rejected) ends the loop immediately.
func (c *Client) exchange(ctx context.Context, log *logrus.Entry, op, url, action string, body []byte, trackingID string) *Result {
	start := c.clock.Now()
	defer func() {
		c.metrics.ObserveDuration(op, c.clock.Since(start))
	}()

	attempts := c.policy.Attempts()
	malformed := 0
	var last *dian.TransportError

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && c.policy.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return c.failed(attempt-1, cancelled(ctx, attempt-1), trackingID)
			case <-c.clock.After(c.policy.RetryDelay):
			}
		}

		res, terr := c.attempt(ctx, attempt, url, action, body)
		if terr == nil {
			c.metrics.IncAttempt(op, res.Outcome.String())
			res.Attempts = attempt
			if res.TrackingID == "" {
				res.TrackingID = trackingID
			}
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"code":    res.Code,
				"outcome": res.Outcome,
			}).Info("DIAN answered")
			return res
		}

		c.metrics.IncAttempt(op, terr.Kind.String())
		last = terr
		if ctx.Err() != nil {
			return c.failed(attempt, cancelled(ctx, attempt), trackingID)
		}

		if terr.Kind == dian.KindMalformedResponse {
			malformed++
			if malformed > 1 {
				terr.Retryable = false
			}
		}

		entry := log.WithFields(logrus.Fields{
			"attempt": attempt,
			"of":      attempts,
			"kind":    terr.Kind,
		})
		if !terr.Retryable {
			entry.WithError(terr).Error("transmission failed, not retrying")
			return c.failed(attempt, terr, trackingID)
		}
		entry.WithError(terr).Warn("transmission attempt failed")
	}

	log.WithError(last).Error("transmission failed, retries exhausted")
	return c.failed(attempts, last, trackingID)
}

func (c *Client) failed(attempts int, err *dian.TransportError, trackingID string) *Result {
	r := &Result{
		TrackingID: trackingID,
		Outcome:    Failed,
		Attempts:   attempts,
		HTTPStatus: err.StatusCode,
		Err:        err,
	}
	return r
}

func cancelled(ctx context.Context, attempt int) *dian.TransportError {
	kind := dian.KindConnection
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = dian.KindTimeout
	}
	return &dian.TransportError{Kind: kind, Attempt: attempt, Err: ctx.Err()}
}

// attempt performs one HTTP exchange bounded by the policy timeout.
func (c *Client) attempt(ctx context.Context, n int, url, action string, body []byte) (*Result, *dian.TransportError) {
	actx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &dian.TransportError{Kind: dian.KindConnection, Attempt: n, Err: err}
	}
	req.Header.Set("Content-Type", `application/soap+xml;charset=UTF-8;action="`+action+`"`)
	req.Header.Set("Accept", "application/soap+xml, text/xml")

	if util.HttpTraceEnabled() {
		logger.WithFields(logrus.Fields{"url": url, "action": action}).Tracef("request: %s", body)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &dian.TransportError{Kind: kindOf(err), Attempt: n, Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &dian.TransportError{Kind: kindOf(err), Attempt: n, StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}

	if util.HttpTraceEnabled() {
		logger.WithField("status", resp.StatusCode).Tracef("response: %s", raw)
	}

	return c.classify(n, resp.StatusCode, raw)
}

func (c *Client) classify(n, status int, raw []byte) (*Result, *dian.TransportError) {
	parsed, fault, perr := parseResponse(raw)

	switch {
	case fault != nil:
		return nil, &dian.TransportError{
			Kind:       dian.KindConnection,
			Attempt:    n,
			StatusCode: status,
			Retryable:  fault.serverSide(),
			Err:        errors.Errorf("SOAP fault %s: %s", fault.Code, fault.Reason),
		}
	case status >= 500:
		return nil, &dian.TransportError{Kind: dian.KindConnection, Attempt: n, StatusCode: status, Retryable: true,
			Err: errors.Errorf("server error %s", http.StatusText(status))}
	case status >= 400:
		return nil, &dian.TransportError{Kind: dian.KindConnection, Attempt: n, StatusCode: status,
			Err: errors.Errorf("request refused: %s", http.StatusText(status))}
	case perr != nil:
		return nil, &dian.TransportError{Kind: dian.KindMalformedResponse, Attempt: n, StatusCode: status, Retryable: true, Err: perr}
	}

	res := &Result{
		TrackingID:  parsed.DocumentKey,
		HTTPStatus:  status,
		Code:        parsed.StatusCode,
		Description: parsed.StatusDescription,
		Errors:      parsed.Errors,
		Raw:         raw,
	}
	if res.Description == "" {
		res.Description = parsed.StatusMessage
	}

	switch c.catalog.ResponseOutcome(parsed.StatusCode) {
	case dian.ResponseAccepted:
		res.Outcome = Accepted
	case dian.ResponsePending:
		res.Outcome = Received
	case dian.ResponseRejected:
		res.Outcome = Rejected
		res.Err = &dian.AuthorityRejectedError{Code: parsed.StatusCode, Reason: res.Description, Errors: parsed.Errors}
	default:
		return nil, &dian.TransportError{Kind: dian.KindMalformedResponse, Attempt: n, StatusCode: status, Retryable: true,
			Err: errors.Errorf("unknown status code %q", parsed.StatusCode)}
	}
	return res, nil
}

func kindOf(err error) dian.TransportKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return dian.KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return dian.KindTimeout
	}
	return dian.KindConnection
}
