package sandbox

import "fmt"

// Error is a sandbox failure: a parse, compile, or runtime problem in
// operator-authored logic, or a blown evaluation budget. Failures are
// always contained to the request being evaluated.
type Error struct {
	// Stage names where evaluation stopped: "prepare" or "branch N".
	Stage string

	// Timeout marks budget overruns.
	Timeout bool

	Err error
}

func (e *Error) Error() string {
	msg := "sandbox error"
	if e.Timeout {
		msg = "sandbox timeout"
	}
	if e.Stage != "" {
		msg += " in " + e.Stage
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
