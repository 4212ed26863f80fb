package retry

import "github.com/pkg/errors"

// Error chaining keeps every failed attempt reachable from the error a
// caller finally sees: the latest failure is the primary, earlier ones hang
// off it as suppressed siblings in temporal order.

type suppressedError struct {
	primary    error
	suppressed []error
}

func (e *suppressedError) Error() string {
	return e.primary.Error()
}

func (e *suppressedError) Unwrap() error {
	return e.primary
}

// Suppress combines the latest failure with prior ones. The result behaves
// like latest for errors.Is/As while GetSuppressed exposes the priors,
// oldest first. With no priors, latest is returned unchanged.
func Suppress(latest error, prior ...error) error {
	if latest == nil || len(prior) == 0 {
		return latest
	}
	if chained, ok := latest.(*suppressedError); ok {
		return &suppressedError{
			primary:    chained.primary,
			suppressed: append(append([]error{}, prior...), chained.suppressed...),
		}
	}
	return &suppressedError{primary: latest, suppressed: append([]error{}, prior...)}
}

// GetSuppressed returns the suppressed siblings carried anywhere on err's
// unwrap chain, oldest first.
func GetSuppressed(err error) []error {
	for e := err; e != nil; e = unwrapOne(e) {
		if chained, ok := e.(*suppressedError); ok {
			return chained.suppressed
		}
	}
	return nil
}

// RootCause walks both pkg/errors causers and standard wrappers to the
// innermost error.
func RootCause(err error) error {
	for err != nil {
		next := unwrapOne(err)
		if next == nil {
			return err
		}
		err = next
	}
	return err
}

// FirstCause returns the outermost error on the cause chain matching the
// predicate, or nil.
func FirstCause(err error, match func(error) bool) error {
	for e := err; e != nil; e = unwrapOne(e) {
		if match(e) {
			return e
		}
	}
	return nil
}

func unwrapOne(err error) error {
	type causer interface {
		Cause() error
	}
	if c, ok := err.(causer); ok {
		return c.Cause()
	}
	return errors.Unwrap(err)
}
