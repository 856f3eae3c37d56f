package egraph

import "fmt"

// Load error codes.
const (
	ErrCodeMalformed     = "E001" // Document is not valid JSON or has the wrong shape
	ErrCodeDuplicateNode = "E002" // Two nodes share an id
	ErrCodeClassMismatch = "E003" // Node id class ordinal differs from its e-class
	ErrCodeMissingClass  = "E004" // Child or root reference to a class with no nodes
	ErrCodeInvalidCost   = "E005" // Negative, NaN or infinite cost
	ErrCodeIO            = "E006" // File could not be read or written
)

// LoadError is returned when a serialized e-graph cannot be turned into an
// EGraph. Callers can switch on Code.
type LoadError struct {
	Code    string
	Message string
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
