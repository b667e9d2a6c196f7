package worker

import "fmt"

// UnexpectedError wraps a panic recovered while processing a job.
type UnexpectedError struct {
	Value any
	Stack []byte
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected worker error: %v", e.Value)
}
