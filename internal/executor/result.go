// File: internal/executor/result.go
package executor

import "fmt"

// ErrorKind classifies a failed action for loop-control purposes. The loop
// controller branches on this, never on message substrings.
type ErrorKind string

const (
	ErrNone ErrorKind = ""
	// ErrNotFound means the target could not be resolved within the bounded wait.
	ErrNotFound ErrorKind = "not_found"
	// ErrTimeout means a wait condition did not hold before its deadline.
	ErrTimeout ErrorKind = "timeout"
	// ErrDOM means the page interaction itself failed.
	ErrDOM ErrorKind = "dom"
	// ErrScript means an evaluated script threw.
	ErrScript ErrorKind = "script"
	// ErrUnsupported means the action kind is disabled or not executable here.
	ErrUnsupported ErrorKind = "unsupported"
	// ErrPermission means the browser denied a capability (e.g. screenshots).
	ErrPermission ErrorKind = "permission"
)

// Result is the outcome of one executed action. Message is the human-readable
// string fed back to the LLM; OK and Kind carry the machine-readable signal.
type Result struct {
	OK      bool
	Message string
	Kind    ErrorKind
}

// Successf builds a successful result.
func Successf(format string, args ...any) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

// Failf builds a failed result of the given kind.
func Failf(kind ErrorKind, format string, args ...any) Result {
	return Result{OK: false, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound is the canonical result for an unresolvable target.
func NotFound(target string) Result {
	return Failf(ErrNotFound, "Element not found: %s", target)
}
