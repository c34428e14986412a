package gitops

import "fmt"

// TransportError reports a failure to reach or mutate the remote repository
// (clone of an unreachable remote, rejected push, authentication failure).
// It is fatal to a mirror run and triggers compensation.
type TransportError struct {
	Op  string // "clone", "commit" or "push"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("git %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RollbackError reports a failed compensation attempt, typically a missing
// backup artifact. The orchestrator does not convert it into a mirror result;
// it escapes the run as a plain error.
type RollbackError struct {
	Path string
	Err  error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback of %s failed: %v", e.Path, e.Err)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}
