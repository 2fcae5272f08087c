package taskrec

// Recorder accumulates steps while a task runs. It is not safe for concurrent
// use; a task owns its recorder for the duration of a single invocation.
type Recorder[T any] struct {
	steps []*step
}

type step struct {
	description string
	resolution  Resolution
}

// StepHandle resolves a single open step. The first resolution sticks; later
// calls on the same handle are ignored so that failure recording is total.
type StepHandle struct {
	s *step
}

// NewRecorder creates an empty recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// BeginStep opens a new step. The caller must eventually resolve it through
// the returned handle.
func (r *Recorder[T]) BeginStep(description string) *StepHandle {
	s := &step{description: description}
	r.steps = append(r.steps, s)
	return &StepHandle{s: s}
}

// Succeed closes the step as succeeded.
func (h *StepHandle) Succeed(message string) {
	if h.s.resolution != nil {
		return
	}
	h.s.resolution = Succeeded{Message: message}
}

// Fail closes the step as failed. err may be nil when there is no underlying
// error to attach.
func (h *StepHandle) Fail(message, errorCode string, err error) {
	if h.s.resolution != nil {
		return
	}
	h.s.resolution = Failed{Message: message, ErrorCode: errorCode, Err: err}
}

// FinishSuccess freezes the step log and returns a success result. A step
// left open is closed as succeeded with its own description; a recorder that
// contains a failed step must use FinishFailure instead, so a failed step
// found here is treated as a programming error and downgrades the result.
func (r *Recorder[T]) FinishSuccess(value T) Result[T] {
	for _, s := range r.steps {
		if s.resolution == nil {
			s.resolution = Succeeded{Message: s.description}
		}
		if _, failed := s.resolution.(Failed); failed {
			return r.FinishFailure()
		}
	}
	return Result[T]{Value: value, Steps: r.snapshot(), ok: true}
}

// FinishFailure freezes the step log using the last failed step's error code
// and error as the result's top-level fields. If no step failed, a synthetic
// failed step is appended so the failure invariants hold.
func (r *Recorder[T]) FinishFailure() Result[T] {
	var last *step
	for _, s := range r.steps {
		if s.resolution == nil {
			s.resolution = Succeeded{Message: s.description}
		}
		if _, failed := s.resolution.(Failed); failed {
			last = s
		}
	}
	if last == nil {
		last = &step{
			description: "Task failed",
			resolution:  Failed{Message: "task finished as a failure with no failed step", ErrorCode: CodeUnexpectedException},
		}
		r.steps = append(r.steps, last)
	}
	failed := last.resolution.(Failed)
	return Result[T]{
		Steps:         r.snapshot(),
		Err:           failed.Err,
		LastErrorCode: failed.ErrorCode,
	}
}

func (r *Recorder[T]) snapshot() []Step {
	out := make([]Step, len(r.steps))
	for i, s := range r.steps {
		out[i] = Step{Description: s.description, Resolution: s.resolution}
	}
	return out
}

// CodeUnexpectedException is the error code attached to failures that no step
// explicitly produced, including recovered panics.
const CodeUnexpectedException = "unexpectedException"
