package scd2

import (
	"fmt"

	"github.com/sells-group/cdc-cli/internal/model"
)

// TransitionError reports a failed transition for one natural key. The
// transaction was rolled back and the key's prior state is intact.
type TransitionError struct {
	NaturalKey int64
	Operation  model.Operation
	Err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("scd2: transition %s for key %d: %v", e.Operation, e.NaturalKey, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
