package engine

import "fmt"

// Startup phases reported by StartupError.
const (
	PhaseConfiguration = "configuration"
	PhaseRegistration  = "registration"
)

// StartupError is returned by New when the engine cannot start. The cause is
// available through errors.Is / errors.As.
type StartupError struct {
	Phase string
	Err   error
}

func (e *StartupError) Error() string { return fmt.Sprintf("%s error: %v", e.Phase, e.Err) }

func (e *StartupError) Unwrap() error { return e.Err }

func configErr(err error) error { return &StartupError{Phase: PhaseConfiguration, Err: err} }

func registrationErr(err error) error { return &StartupError{Phase: PhaseRegistration, Err: err} }
