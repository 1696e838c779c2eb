package embargo

import (
	"errors"
	"fmt"
)

// ErrDataIntegrity matches every *DataIntegrityError via errors.Is
var ErrDataIntegrity = errors.New("data integrity error")

// DataIntegrityError reports an artifact whose embargo cannot be evaluated: a
// missing timestamp, a missing project or a negative embargo period. It is never
// retried and never defaulted to allow or deny.
type DataIntegrityError struct {
	Artifact string // artifact kind
	ID       int64
	Field    string
	Reason   string
}

func (e *DataIntegrityError) Error() string {
	if e.Artifact == "" {
		return fmt.Sprintf("data integrity: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("data integrity: %s %d: %s %s", e.Artifact, e.ID, e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrDataIntegrity) match
func (e *DataIntegrityError) Unwrap() error {
	return ErrDataIntegrity
}
