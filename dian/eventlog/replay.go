package eventlog

import (
	"github.com/alapierre/go-dian-client/dian/lifecycle"
)

// Replay recomputes the lifecycle state from an insertion ordered record
// sequence. Only network interactions are recorded, so the local Built and
// Signed steps are implied by the first record: an invoice with no records
// is Built.
func Replay(records []Record) (lifecycle.State, error) {
	if len(records) == 0 {
		return lifecycle.Built, nil
	}

	l := lifecycle.New(records[0].InvoiceID)
	if _, err := l.Fire(lifecycle.SignSucceeded); err != nil {
		return 0, err
	}

	for _, r := range records {
		if r.Kind == KindSubmission && l.State() == lifecycle.Signed && r.State != lifecycle.TransmissionFailed {
			if _, err := l.Fire(lifecycle.TransportAccepted); err != nil {
				return l.State(), err
			}
		}
		if _, err := l.Fire(triggerFor(r)); err != nil {
			return l.State(), err
		}
	}
	return l.State(), nil
}

func triggerFor(r Record) lifecycle.Trigger {
	switch r.State {
	case lifecycle.Submitted:
		return lifecycle.StillProcessing
	case lifecycle.Accepted:
		return lifecycle.AuthorityAccepted
	case lifecycle.Rejected:
		return lifecycle.AuthorityRejected
	case lifecycle.TransmissionFailed:
		if r.Kind == KindStatusQuery {
			return lifecycle.StatusExhausted
		}
		return lifecycle.TransportFailed
	}
	// local states are never recorded, let the lifecycle reject them
	return lifecycle.Trigger("record_" + r.State.String())
}
