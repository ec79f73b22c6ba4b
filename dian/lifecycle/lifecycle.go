package lifecycle

import (
	"strings"

	"github.com/alapierre/go-dian-client/dian"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "dian.lifecycle")

// State is the position of an invoice in the build, sign, submit, resolve
// sequence.
type State int

const (
	Built State = iota + 1
	Signed
	Submitted
	Accepted
	Rejected
	TransmissionFailed
)

var stateNames = map[State]string{
	Built:              "Built",
	Signed:             "Signed",
	Submitted:          "Submitted",
	Accepted:           "Accepted",
	Rejected:           "Rejected",
	TransmissionFailed: "TransmissionFailed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Unknown"
}

// IsTerminal reports states no trigger may leave.
func (s State) IsTerminal() bool {
	switch s {
	case Accepted, Rejected, TransmissionFailed:
		return true
	}
	return false
}

// IsLocal reports pre-network states.
func (s State) IsLocal() bool {
	return s == Built || s == Signed
}

func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, errors.Errorf("unknown lifecycle state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState is case insensitive and accepts the snake case form used in
// storage ("transmission_failed").
func ParseState(s string) (State, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
	for st, name := range stateNames {
		if strings.ToLower(name) == key {
			return st, nil
		}
	}
	return 0, errors.Errorf("unknown lifecycle state %q", s)
}

type Trigger string

const (
	SignSucceeded     Trigger = "sign_succeeded"
	TransportAccepted Trigger = "transport_accepted"
	AuthorityAccepted Trigger = "authority_accepted"
	AuthorityRejected Trigger = "authority_rejected"
	StatusExhausted   Trigger = "status_exhausted"
	TransportFailed   Trigger = "transport_failed"
	StillProcessing   Trigger = "still_processing"
)

type edge struct {
	from    State
	trigger Trigger
}

var transitions = map[edge]State{
	{Built, SignSucceeded}:         Signed,
	{Signed, TransportAccepted}:    Submitted,
	{Signed, TransportFailed}:      TransmissionFailed,
	{Submitted, AuthorityAccepted}: Accepted,
	{Submitted, AuthorityRejected}: Rejected,
	{Submitted, StatusExhausted}:   TransmissionFailed,
	{Submitted, TransportFailed}:   TransmissionFailed,
	{Submitted, StillProcessing}:   Submitted,
}

// Next returns the state trigger t leads to from s without any side effect.
func Next(s State, t Trigger) (State, bool) {
	if s.IsTerminal() {
		return s, false
	}
	to, ok := transitions[edge{s, t}]
	return to, ok
}

// Lifecycle tracks one invoice. It is not safe for concurrent use; callers
// serialize access per invoice.
type Lifecycle struct {
	invoiceID string
	state     State
}

func New(invoiceID string) *Lifecycle {
	return &Lifecycle{invoiceID: invoiceID, state: Built}
}

// Restore resumes a lifecycle at a known state, e.g. after replaying events.
func Restore(invoiceID string, s State) (*Lifecycle, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, errors.Errorf("unknown lifecycle state %d", int(s))
	}
	return &Lifecycle{invoiceID: invoiceID, state: s}, nil
}

func (l *Lifecycle) InvoiceID() string { return l.invoiceID }
func (l *Lifecycle) State() State      { return l.state }

// Fire applies t. Terminal states and undefined pairs fail with
// *dian.IllegalTransitionError and leave the state untouched.
func (l *Lifecycle) Fire(t Trigger) (State, error) {
	to, ok := Next(l.state, t)
	if !ok {
		return l.state, &dian.IllegalTransitionError{
			InvoiceID: l.invoiceID,
			From:      l.state.String(),
			Trigger:   string(t),
		}
	}

	if to != l.state {
		logger.WithFields(logrus.Fields{
			"invoice": l.invoiceID,
			"from":    l.state.String(),
			"to":      to.String(),
		}).Info("invoice transition")
	}
	l.state = to
	return to, nil
}
