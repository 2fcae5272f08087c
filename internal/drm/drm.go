// Package drm defines the contract with the Adobe Adept connector and wraps
// its listener-callback style in a blocking call with an explicit deadline,
// so a lost callback can never hang a task.
package drm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReturnListener receives the terminal callback for a loan-return request.
// The connector invokes exactly one of the two methods, or neither if it
// wedges.
type ReturnListener interface {
	OnLoanReturnSuccess()
	OnLoanReturnFailure(code string)
}

// Connector is the DRM backend. LoanReturn is asynchronous: it reports its
// outcome through the listener on the connector's own execution context, and
// may panic instead of calling back.
type Connector interface {
	LoanReturn(listener ReturnListener, loanID string, userID string)
	DeviceActive() bool
}

// ErrNoResponse is returned when the connector never invokes the listener
// within the deadline.
var ErrNoResponse = errors.New("DRM connector did not respond")

// ReturnError is a failure the backend reported with its own code.
type ReturnError struct {
	Code string
}

func (e *ReturnError) Error() string {
	return "Adobe ACS: " + e.Code
}

type outcome struct {
	err error
}

type chanListener struct {
	ch chan outcome
}

func (l *chanListener) OnLoanReturnSuccess() {
	l.deliver(outcome{})
}

func (l *chanListener) OnLoanReturnFailure(code string) {
	l.deliver(outcome{err: &ReturnError{Code: code}})
}

func (l *chanListener) deliver(o outcome) {
	// Tolerate connectors that call back more than once.
	select {
	case l.ch <- o:
	default:
	}
}

// ReturnLoan submits a loan return and blocks until the connector calls back,
// the timeout expires, or ctx is done. A connector panic is converted into an
// error; nothing escapes as a panic.
func ReturnLoan(ctx context.Context, conn Connector, loanID, userID string, timeout time.Duration) error {
	listener := &chanListener{ch: make(chan outcome, 1)}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				listener.deliver(outcome{err: fmt.Errorf("DRM connector crashed: %v", r)})
			}
		}()
		conn.LoanReturn(listener, loanID, userID)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-listener.ch:
		return o.err
	case <-timer.C:
		return ErrNoResponse
	case <-ctx.Done():
		return ctx.Err()
	}
}
