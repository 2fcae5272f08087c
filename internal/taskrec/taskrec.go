// Package taskrec records the execution of multi-step tasks as an ordered,
// immutable step log. A task owns exactly one Recorder; the final Result is a
// snapshot that callers can inspect for diagnostics without the task ever
// raising an error across its public boundary.
package taskrec

// Resolution is the outcome of a single step. Exactly one of Succeeded or
// Failed is the active variant.
type Resolution interface {
	isResolution()
}

// Succeeded marks a step that completed normally.
type Succeeded struct {
	Message string
}

// Failed marks a step that terminated the task. ErrorCode is a short
// caller-defined token used for programmatic branching; Err carries the
// underlying error when one exists.
type Failed struct {
	Message   string
	ErrorCode string
	Err       error
}

func (Succeeded) isResolution() {}
func (Failed) isResolution()    {}

// Step pairs a human-readable description with its resolution. Resolution is
// nil while the step is still open.
type Step struct {
	Description string
	Resolution  Resolution
}

// Result is the frozen outcome of a task run.
type Result[T any] struct {
	Value T
	Steps []Step

	// Failure-only fields.
	Err           error
	LastErrorCode string

	ok bool
}

// Succeeded reports whether the task completed all of its steps.
func (r Result[T]) Succeeded() bool {
	return r.ok
}

// LastStep returns the final recorded step. The step log is never empty on a
// finished result.
func (r Result[T]) LastStep() Step {
	return r.Steps[len(r.Steps)-1]
}
