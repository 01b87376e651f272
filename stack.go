package vhist

import (
	"errors"
	"fmt"
	"runtime/debug"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// StackOf renders the stack recorded closest to err's origin. Errors that
// never passed through a stack-capturing wrapper get the current stack.
func StackOf(err error) string {
	var deepest pkgerrors.StackTrace
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			deepest = st.StackTrace()
		}
	}
	if deepest != nil {
		return fmt.Sprintf("%+v", deepest)
	}
	return string(debug.Stack())
}
