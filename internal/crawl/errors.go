package crawl

import (
	"errors"
	"fmt"
)

// Task-level error taxonomy. Every per-task failure is caught at the task
// boundary and converted into a dropped task plus a log entry; only
// configuration errors may terminate the run, and only before it starts.
// Network-level classes (soft block, auth rejection, transient) live in the
// fetch package, next to the classifier.
var (
	// ErrRetriesExhausted is returned once a task has used up its retry
	// budget. The task is dropped; the rest of the frontier is unaffected.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ParseError marks a payload that came back with a success status but could
// not be decoded. Retrying will not help; the task is skipped.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("unparseable payload: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ConfigError is fatal at startup; the run does not begin.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// IsParse reports whether err is a corrupt-payload skip.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
