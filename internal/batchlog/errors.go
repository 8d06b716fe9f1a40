package batchlog

import "fmt"

// CorruptionError reports an artifact that cannot be decoded as a batch.
type CorruptionError struct {
	Name string
	Err  error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("batchlog: corrupt artifact %s: %v", e.Name, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}
