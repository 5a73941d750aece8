package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/target/pulse/internal/domain/model"
)

// RetryError marks a job error the queue will retry. The collector records it as retried.
type RetryError struct {
	Err error
}

func (e *RetryError) Error() string { return e.Err.Error() }

func (e *RetryError) Unwrap() error { return e.Err }

// MarkRetry wraps err so the collector records the run as retried. A nil err stays nil.
func MarkRetry(err error) error {
	if err == nil {
		return nil
	}
	return &RetryError{Err: err}
}

// PanicError carries a recovered panic value through the terminal update.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// StatusClassifierOptions configures which errors discard a unit of work.
type StatusClassifierOptions struct {
	// FatalKinds are error type names as printed by %T, e.g. "*json.SyntaxError".
	FatalKinds []string
	// FatalErrors are sentinels matched with errors.Is.
	FatalErrors []error
}

// StatusClassifier maps the outcome of a unit of work to its terminal status.
//
//   - nil error: success
//   - *PanicError: discarded
//   - *RetryError anywhere in the chain: retried
//   - a fatal sentinel or fatal kind anywhere in the chain: discarded
//   - anything else: failed
type StatusClassifier struct {
	fatalKinds  map[string]struct{}
	fatalErrors []error
}

// NewStatusClassifier builds a classifier from opts.
func NewStatusClassifier(opts StatusClassifierOptions) *StatusClassifier {
	kinds := make(map[string]struct{}, len(opts.FatalKinds))
	for _, k := range opts.FatalKinds {
		if k = strings.TrimSpace(k); k != "" {
			kinds[k] = struct{}{}
		}
	}
	return &StatusClassifier{fatalKinds: kinds, fatalErrors: opts.FatalErrors}
}

// Classify returns the terminal status for err.
func (c *StatusClassifier) Classify(err error) model.RunStatus {
	if err == nil {
		return model.RunStatusSuccess
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return model.RunStatusDiscarded
	}
	var re *RetryError
	if errors.As(err, &re) {
		return model.RunStatusRetried
	}
	if c == nil {
		return model.RunStatusFailed
	}
	for _, sentinel := range c.fatalErrors {
		if errors.Is(err, sentinel) {
			return model.RunStatusDiscarded
		}
	}
	if len(c.fatalKinds) > 0 && c.anyKindFatal(err) {
		return model.RunStatusDiscarded
	}
	return model.RunStatusFailed
}

func (c *StatusClassifier) anyKindFatal(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := c.fatalKinds[fmt.Sprintf("%T", err)]; ok {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if c.anyKindFatal(inner) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return c.anyKindFatal(u.Unwrap())
	}
	return false
}

// ErrorClass names the type of err for the error_class column. Retry markers are skipped so the
// class names the underlying failure; panics report the type of the panic value.
func ErrorClass(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%T", pe.Value)
	}
	var re *RetryError
	for errors.As(err, &re) {
		err = re.Err
	}
	return fmt.Sprintf("%T", err)
}
