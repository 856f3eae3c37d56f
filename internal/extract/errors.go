package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/egx/internal/egraph"
)

// Error is returned when an extraction fails or produces an invalid result.
//
// Error includes structured fields for diagnostics:
//   - Cycle holds the classes on a cycle, in traversal order
//   - Class names the class a per-class violation refers to
//   - Details carries extractor-specific context such as solver paths
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Class is the offending class, when the error is about one class.
	Class *egraph.ClassID

	// Cycle lists the classes on a detected cycle.
	Cycle []egraph.ClassID

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes extraction errors.
type ErrorCode string

const (
	// ErrCodeInvalidResult indicates a missing choice, a choice in the wrong
	// class, or a root without a choice.
	ErrCodeInvalidResult ErrorCode = "INVALID_RESULT"

	// ErrCodeCycleDetected indicates the choices reachable from the roots
	// contain a cycle.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"

	// ErrCodeInfeasible indicates no acyclic selection can cover the roots.
	ErrCodeInfeasible ErrorCode = "INFEASIBLE"

	// ErrCodeSolverFailed indicates the external solver exited with an error
	// or produced no solution file.
	ErrCodeSolverFailed ErrorCode = "SOLVER_FAILED"

	// ErrCodeSolverTimeout indicates the solver did not finish within the
	// configured time budget.
	ErrCodeSolverTimeout ErrorCode = "SOLVER_TIMEOUT"

	// ErrCodeBadSolution indicates the solver output could not be parsed or
	// chose more than one node for a class.
	ErrCodeBadSolution ErrorCode = "BAD_SOLUTION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Class != nil {
		fmt.Fprintf(&sb, " (class=%s)", *e.Class)
	}
	if len(e.Cycle) > 0 {
		sb.WriteString(" (cycle=")
		sb.WriteString(FormatCycle(e.Cycle))
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCycleError returns true if err is or wraps a cycle error.
func IsCycleError(err error) bool {
	return hasCode(err, ErrCodeCycleDetected)
}

// IsInfeasible returns true if err is or wraps an infeasibility error.
func IsInfeasible(err error) bool {
	return hasCode(err, ErrCodeInfeasible)
}

// IsSolverTimeout returns true if err is or wraps a solver timeout.
func IsSolverTimeout(err error) bool {
	return hasCode(err, ErrCodeSolverTimeout)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	// Walk every *Error in the tree; multierror chains hold several.
	found := false
	walkErrors(err, func(e *Error) {
		if e.Code == code {
			found = true
		}
	})
	return found
}

func walkErrors(err error, fn func(*Error)) {
	if err == nil {
		return
	}
	if e, ok := err.(*Error); ok {
		fn(e)
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			walkErrors(inner, fn)
		}
	case interface{ WrappedErrors() []error }:
		for _, inner := range u.WrappedErrors() {
			walkErrors(inner, fn)
		}
	case interface{ Unwrap() error }:
		walkErrors(u.Unwrap(), fn)
	}
}

// NewCycleError creates an Error for a cycle among chosen nodes.
func NewCycleError(cycle []egraph.ClassID) *Error {
	return &Error{
		Code:    ErrCodeCycleDetected,
		Message: "chosen nodes form a cycle",
		Cycle:   cycle,
	}
}

// NewInfeasibleError creates an Error for roots that cannot be covered.
func NewInfeasibleError(roots []egraph.ClassID) *Error {
	parts := make([]string, len(roots))
	for i, r := range roots {
		parts[i] = r.String()
	}
	return &Error{
		Code:    ErrCodeInfeasible,
		Message: "no acyclic selection covers every root",
		Details: map[string]string{"roots": strings.Join(parts, ",")},
	}
}

func newClassError(code ErrorCode, class egraph.ClassID, format string, args ...any) *Error {
	c := class
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Class: &c}
}

// FormatCycle renders a cycle as "a -> b -> a".
func FormatCycle(cycle []egraph.ClassID) string {
	if len(cycle) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cycle)+1)
	for _, c := range cycle {
		parts = append(parts, c.String())
	}
	parts = append(parts, cycle[0].String())
	return strings.Join(parts, " -> ")
}
