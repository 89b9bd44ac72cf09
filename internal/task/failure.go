// SPDX-License-Identifier: MIT

package task

import (
	"errors"
	"fmt"
)

// Failure kinds. Validation failures are precondition misses (non-canonical
// name, missing target, asset already cataloged); external failures are
// collaborator errors (network, subprocess, decode). Both leave the task
// retryable unless a ledger says otherwise.
const (
	KindValidation = "validation"
	KindExternal   = "external"
)

// Failure classifies a task-level error. Workers attach it to the outcome;
// nothing above the worker inspects the wrapped error beyond its kind.
type Failure struct {
	Kind string
	Err  error
}

func (f *Failure) Error() string {
	return f.Kind + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Validation builds a validation failure.
func Validation(format string, a ...any) error {
	return &Failure{Kind: KindValidation, Err: fmt.Errorf(format, a...)}
}

// External builds an external failure.
func External(format string, a ...any) error {
	return &Failure{Kind: KindExternal, Err: fmt.Errorf(format, a...)}
}

// KindOf returns the failure kind of err, defaulting to external for
// unclassified errors.
func KindOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindExternal
}
