// Package compile runs an external LaTeX compiler over a typeset document in an isolated scratch directory.
package compile

import "fmt"

// Kind classifies a compilation failure
type Kind string

// Compilation failure kinds
const (
	KindTimeout         Kind = "timeout"
	KindSyntax          Kind = "syntax"
	KindExit            Kind = "exit"
	KindNoOutput        Kind = "no_output"
	KindUnsafeSource    Kind = "unsafe_source"
	KindMissingCompiler Kind = "missing_compiler"
	KindWorkspace       Kind = "workspace"
)

// CompilationError represents a LaTeX compilation failure
type CompilationError struct {
	Kind      Kind
	Message   string
	LogOutput string
	Cause     error
}

func (e *CompilationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("LaTeX compilation error (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("LaTeX compilation error (%s): %s", e.Kind, e.Message)
}

func (e *CompilationError) Unwrap() error {
	return e.Cause
}

// Transient reports whether retrying the same source could succeed
func (e *CompilationError) Transient() bool {
	return e.Kind == KindTimeout || e.Kind == KindWorkspace
}
