// Package errwrap contains small error helpers shared by the rest of the
// kernel. It exists so that every package builds its causal chains and its
// aggregates the same way instead of each picking its own convention.
package errwrap

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Wrapf adds a new error onto an existing chain of errors. If err is nil, nil
// is returned, so this is safe to call unconditionally.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Append safely appends an error onto an existing one. Either argument may be
// nil. This is meant for accumulating independent failures (for example, one
// per node in a pass report) into a single returnable error, as opposed to
// Wrapf's causal chaining.
func Append(reterr, err error) error {
	if reterr == nil {
		return err
	}
	if err == nil {
		return reterr
	}
	return multierror.Append(reterr, err)
}

// String returns a string representation of the error, or the empty string
// if err is nil.
func String(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
