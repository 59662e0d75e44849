package cli

import "fmt"

// ExitNotRunning is the status reported when no server process matches. It is
// what `exit -1` becomes in a POSIX shell.
const ExitNotRunning = 255

// ExitError carries a specific process exit status out of a command. Err, when
// set, is printed before exiting.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
