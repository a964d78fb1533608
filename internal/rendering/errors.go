package rendering

import (
	"errors"
	"fmt"
)

// ErrNilDocument is returned when there is nothing to render
var ErrNilDocument = errors.New("resume document is nil")

// Error reports a template that could not be loaded, parsed or executed
type Error struct {
	Op       string // load, parse or execute
	Template string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rendering %s %s: %v", e.Op, e.Template, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
