package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-rod/rod"
	pkgerrors "github.com/pkg/errors"
)

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = errors.New("browser: element not found")

// ErrTransient marks navigation and connection faults worth one retry.
var ErrTransient = errors.New("browser: transient fault")

type transientError struct{ err error }

func (e *transientError) Error() string        { return e.err.Error() }
func (e *transientError) Unwrap() error        { return e.err }
func (e *transientError) Is(target error) bool { return target == ErrTransient }

// Transient marks err as a transient navigation/connection fault.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err carries ErrTransient.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// wrap attaches op context and the call stack to an automation error and
// classifies connection-level faults as transient.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := pkgerrors.WithStack(fmt.Errorf("browser: %s: %w", op, err))
	if isConnFault(err) {
		return Transient(wrapped)
	}
	return wrapped
}

func notFound(sel Selector, cause error) error {
	if cause != nil && !errors.Is(cause, context.DeadlineExceeded) {
		return wrap("find "+sel.String(), cause)
	}
	return pkgerrors.WithStack(fmt.Errorf("%w: %s", ErrNotFound, sel))
}

func isConnFault(err error) bool {
	var nav *rod.NavigationError
	if errors.As(err, &nav) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "net::ERR_")
}
