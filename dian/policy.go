package dian

import "time"

// MaxDocumentSize is the largest signed document accepted for transmission.
const MaxDocumentSize = 5 * 1024 * 1024

// ConnectionPolicy controls a single submission or status query.
type ConnectionPolicy struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultConnectionPolicy() ConnectionPolicy {
	return ConnectionPolicy{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

func (p ConnectionPolicy) Validate() error {
	if p.Timeout <= 0 {
		return Configurationf("connection timeout must be positive, got %s", p.Timeout)
	}
	if p.MaxRetries < 0 {
		return Configurationf("max retries must not be negative, got %d", p.MaxRetries)
	}
	if p.RetryDelay < 0 {
		return Configurationf("retry delay must not be negative, got %s", p.RetryDelay)
	}
	return nil
}

// Attempts is the total number of sends a single operation may perform.
func (p ConnectionPolicy) Attempts() int {
	return p.MaxRetries + 1
}

// TotalBudget is the worst case wall clock time of one operation.
func (p ConnectionPolicy) TotalBudget() time.Duration {
	return p.Timeout*time.Duration(p.MaxRetries+1) + p.RetryDelay*time.Duration(p.MaxRetries)
}
