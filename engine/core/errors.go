package core

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExhausted = errors.New("capacity exhausted")
	ErrGPUFailure        = errors.New("gpu api failure")
	ErrMisuse            = errors.New("logical misuse")
	ErrUnknown           = errors.New("unknown")
)

// FatalError is the panic value raised on any unrecoverable condition of the
// submission engine. It unwraps to one of ErrCapacityExhausted, ErrGPUFailure
// or ErrMisuse.
type FatalError struct {
	Kind error
	Msg  string
	Err  error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *FatalError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Fatal logs the condition and panics. Pool and queue state is not usable
// after this point.
func Fatal(kind error, msg string, args ...interface{}) {
	err := &FatalError{Kind: kind, Msg: fmt.Sprintf(msg, args...)}
	LogError("%s", err)
	panic(err)
}

// Must aborts with ErrGPUFailure when a device call failed.
func Must(err error, op string) {
	if err == nil {
		return
	}
	fe := &FatalError{Kind: ErrGPUFailure, Msg: op, Err: err}
	LogError("%s", fe)
	panic(fe)
}

// AsFatal extracts a *FatalError from a recovered panic value.
func AsFatal(r interface{}) (*FatalError, bool) {
	if r == nil {
		return nil, false
	}
	err, ok := r.(error)
	if !ok {
		return nil, false
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
