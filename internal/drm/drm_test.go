package drm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnector drives the listener according to mode.
type fakeConnector struct {
	mode string // "success", "failure", "silent", "panic", "double"
	code string
}

func (f *fakeConnector) DeviceActive() bool { return true }

func (f *fakeConnector) LoanReturn(listener ReturnListener, loanID, userID string) {
	switch f.mode {
	case "success":
		listener.OnLoanReturnSuccess()
	case "failure":
		listener.OnLoanReturnFailure(f.code)
	case "double":
		listener.OnLoanReturnFailure(f.code)
		listener.OnLoanReturnSuccess()
	case "panic":
		panic("adept exploded")
	case "silent":
	}
}

func TestReturnLoan_Success(t *testing.T) {
	err := ReturnLoan(context.Background(), &fakeConnector{mode: "success"}, "loan-1", "user-1", time.Second)
	assert.NoError(t, err)
}

func TestReturnLoan_FailureCode(t *testing.T) {
	err := ReturnLoan(context.Background(), &fakeConnector{mode: "failure", code: "E_DEFECTIVE"}, "loan-1", "user-1", time.Second)

	var retErr *ReturnError
	require.ErrorAs(t, err, &retErr)
	assert.Equal(t, "E_DEFECTIVE", retErr.Code)
	assert.Equal(t, "Adobe ACS: E_DEFECTIVE", retErr.Error())
}

func TestReturnLoan_NoCallbackTimesOut(t *testing.T) {
	err := ReturnLoan(context.Background(), &fakeConnector{mode: "silent"}, "loan-1", "user-1", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestReturnLoan_PanicBecomesError(t *testing.T) {
	err := ReturnLoan(context.Background(), &fakeConnector{mode: "panic"}, "loan-1", "user-1", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adept exploded")
}

func TestReturnLoan_FirstCallbackWins(t *testing.T) {
	err := ReturnLoan(context.Background(), &fakeConnector{mode: "double", code: "E_LATE"}, "loan-1", "user-1", time.Second)
	var retErr *ReturnError
	require.ErrorAs(t, err, &retErr)
	assert.Equal(t, "E_LATE", retErr.Code)
}

func TestReturnLoan_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ReturnLoan(ctx, &fakeConnector{mode: "silent"}, "loan-1", "user-1", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
