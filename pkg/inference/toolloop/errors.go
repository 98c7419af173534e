package toolloop

import "github.com/pkg/errors"

var (
	// ErrInvocation marks a failed model call. Nothing is persisted.
	ErrInvocation = errors.New("model invocation failed")
	// ErrInvalidResume marks continuation state whose results do not answer its calls.
	ErrInvalidResume = errors.New("invalid resume state")
	// ErrNotConfigured is returned when a required collaborator is missing.
	ErrNotConfigured = errors.New("tool loop is not configured")
)

// invocationError keeps the provider error as cause while matching ErrInvocation.
type invocationError struct {
	cause error
}

func (e *invocationError) Error() string { return ErrInvocation.Error() + ": " + e.cause.Error() }
func (e *invocationError) Unwrap() error { return e.cause }
func (e *invocationError) Cause() error  { return e.cause }

func (e *invocationError) Is(target error) bool { return target == ErrInvocation }

func newInvocationError(err error) error {
	if err == nil {
		return nil
	}
	return &invocationError{cause: err}
}

type resumeError struct{ cause error }

func (e *resumeError) Error() string        { return ErrInvalidResume.Error() + ": " + e.cause.Error() }
func (e *resumeError) Unwrap() error        { return e.cause }
func (e *resumeError) Is(target error) bool { return target == ErrInvalidResume }
