package transport

import "strings"

// Outcome classifies a finished submission or status query.
type Outcome int

const (
	// Received means the authority holds the document but has not decided yet.
	Received Outcome = iota + 1
	Accepted
	Rejected
	// Failed means retries were exhausted or a non-retryable transport
	// error occurred.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Received:
		return "received"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome of one Submit or QueryStatus call including all of
// its attempts. It is not persisted; the pipeline turns it into a lifecycle
// transition and an event.
type Result struct {
	TrackingID  string
	HTTPStatus  int
	Outcome     Outcome
	Code        string
	Description string
	Errors      []string
	Raw         []byte
	Attempts    int
	// Err is a *dian.AuthorityRejectedError when Rejected and a
	// *dian.TransportError when Failed.
	Err error
}

// Summary is a one line description suitable for an event record.
func (r *Result) Summary() string {
	if r.Description != "" {
		if len(r.Errors) > 0 {
			return r.Description + ": " + strings.Join(r.Errors, "; ")
		}
		return r.Description
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Outcome.String()
}
