package taskrec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_SuccessPath(t *testing.T) {
	rec := NewRecorder[string]()

	rec.BeginStep("first").Succeed("done")
	rec.BeginStep("second").Succeed("also done")

	result := rec.FinishSuccess("value")
	require.True(t, result.Succeeded())
	assert.Equal(t, "value", result.Value)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, Succeeded{Message: "done"}, result.Steps[0].Resolution)
	assert.Equal(t, "second", result.LastStep().Description)
}

func TestRecorder_FailureCarriesLastErrorCode(t *testing.T) {
	cause := errors.New("disk on fire")
	rec := NewRecorder[string]()

	rec.BeginStep("first").Succeed("ok")
	rec.BeginStep("second").Fail("could not delete", "ioError", cause)

	result := rec.FinishFailure()
	require.False(t, result.Succeeded())
	assert.Equal(t, "ioError", result.LastErrorCode)
	assert.Same(t, cause, result.Err)
	require.Len(t, result.Steps, 2)

	failed, ok := result.LastStep().Resolution.(Failed)
	require.True(t, ok)
	assert.Equal(t, "could not delete", failed.Message)
}

func TestRecorder_FirstResolutionSticks(t *testing.T) {
	rec := NewRecorder[int]()

	h := rec.BeginStep("only")
	h.Fail("boom", "ioError", nil)
	h.Succeed("never mind")

	result := rec.FinishFailure()
	assert.Equal(t, "ioError", result.LastErrorCode)
}

func TestRecorder_FinishFailureWithoutFailedStep(t *testing.T) {
	rec := NewRecorder[int]()
	rec.BeginStep("fine").Succeed("fine")

	result := rec.FinishFailure()
	require.False(t, result.Succeeded())
	assert.Equal(t, CodeUnexpectedException, result.LastErrorCode)
	// The synthetic step keeps the "steps never empty on failure" invariant.
	require.Len(t, result.Steps, 2)
}

func TestRecorder_FinishSuccessClosesOpenStep(t *testing.T) {
	rec := NewRecorder[int]()
	rec.BeginStep("left open")

	result := rec.FinishSuccess(7)
	require.True(t, result.Succeeded())
	assert.Equal(t, Succeeded{Message: "left open"}, result.Steps[0].Resolution)
}

func TestRecorder_FinishSuccessDowngradesOnFailedStep(t *testing.T) {
	rec := NewRecorder[int]()
	rec.BeginStep("bad").Fail("nope", "ioError", nil)

	result := rec.FinishSuccess(1)
	require.False(t, result.Succeeded())
	assert.Equal(t, "ioError", result.LastErrorCode)
}
