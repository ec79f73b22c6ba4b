package dian

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "dian")

type nitKey struct{}
type envKey struct{}

// Context stores the issuer NIT used for log correlation.
func Context(ctx context.Context, nit string) context.Context {
	return context.WithValue(ctx, nitKey{}, nit)
}

func ContextWithEnv(ctx context.Context, nit string, e Environment) context.Context {
	c := context.WithValue(ctx, nitKey{}, nit)
	return context.WithValue(c, envKey{}, e)
}

func NitFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(nitKey{}).(string)
	return v, ok
}

func EnvFromContext(ctx context.Context) (Environment, bool) {
	v, ok := ctx.Value(envKey{}).(Environment)
	return v, ok
}

var (
	ErrConfiguration     = errors.New("dian configuration error")
	ErrValidation        = errors.New("dian validation error")
	ErrSigning           = errors.New("dian signing error")
	ErrTimeout           = errors.New("dian timeout")
	ErrConnection        = errors.New("dian connection error")
	ErrMalformedResponse = errors.New("dian malformed response")
	ErrAuthorityRejected = errors.New("dian authority rejected document")
	ErrPersistence       = errors.New("dian event log persistence error")
	ErrIllegalTransition = errors.New("illegal invoice lifecycle transition")
	ErrNoNit             = errors.New("no NIT in context.Context")
	ErrNoEnv             = errors.New("no DIAN environment in context.Context")
)

// ConfigurationError reports an unknown environment, service kind or an
// invalid injected configuration value. It is never retried.
type ConfigurationError struct {
	Message string
	Err     error
}

func Configurationf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Message, e.Err)
	}
	return "configuration: " + e.Message
}

func (e *ConfigurationError) Unwrap() error        { return e.Err }
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ValidationError is returned when a document fails regulatory or shape
// checks. Documents failing validation never reach the network.
type ValidationError struct {
	Field   string
	Value   any
	Rule    string
	Message string
}

func NewValidationError(field string, value any, rule, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	}
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("validation failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	if e.Err == nil {
		return "signing: " + e.Op
	}
	return fmt.Sprintf("signing: %s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error        { return e.Err }
func (e *SigningError) Is(target error) bool { return target == ErrSigning }

// TransportKind classifies transport level failures.
type TransportKind int

const (
	KindTimeout TransportKind = iota + 1
	KindConnection
	KindMalformedResponse
)

func (k TransportKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection_error"
	case KindMalformedResponse:
		return "malformed_response"
	}
	return "unknown"
}

type TransportError struct {
	Kind       TransportKind
	Attempt    int
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "transport %s (attempt %d", e.Kind, e.Attempt)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ", http %d", e.StatusCode)
	}
	b.WriteString(")")
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrMalformedResponse:
		return e.Kind == KindMalformedResponse
	}
	return false
}

// AuthorityRejectedError is a structurally valid authority response that
// rejects the document. It is terminal and never retried.
type AuthorityRejectedError struct {
	Code   string
	Reason string
	Errors []string
}

func (e *AuthorityRejectedError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("DIAN rejected document with code %s: %s [%s]", e.Code, e.Reason, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("DIAN rejected document with code %s: %s", e.Code, e.Reason)
}

func (e *AuthorityRejectedError) Is(target error) bool { return target == ErrAuthorityRejected }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("event log %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

type IllegalTransitionError struct {
	InvoiceID string
	From      string
	Trigger   string
}

func (e *IllegalTransitionError) Error() string {
	if e.InvoiceID == "" {
		return fmt.Sprintf("illegal transition %q from state %s", e.Trigger, e.From)
	}
	return fmt.Sprintf("invoice %s: illegal transition %q from state %s", e.InvoiceID, e.Trigger, e.From)
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }
