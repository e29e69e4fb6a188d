package compatibility

import "fmt"

// Result is the outcome of checking one schema against its predecessors.
// An empty message list means compatible.
type Result struct {
	IsCompatible bool     `json:"is_compatible"`
	Messages     []string `json:"messages,omitempty"`
}

// NewCompatibleResult returns a passing Result.
func NewCompatibleResult() *Result {
	return &Result{
		IsCompatible: true,
	}
}

// NewIncompatibleResult returns a failing Result carrying messages.
func NewIncompatibleResult(messages ...string) *Result {
	return &Result{
		IsCompatible: false,
		Messages:     messages,
	}
}

// AddMessage records one incompatibility and marks the result failed.
func (r *Result) AddMessage(format string, args ...interface{}) {
	r.Messages = append(r.Messages, fmt.Sprintf(format, args...))
	r.IsCompatible = false
}

// Merge folds other into r; a failure on either side fails the merged result.
func (r *Result) Merge(other *Result) {
	if !other.IsCompatible {
		r.IsCompatible = false
		r.Messages = append(r.Messages, other.Messages...)
	}
}
