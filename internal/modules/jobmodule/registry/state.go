package registry

import (
	"fmt"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

// transitions is the job state machine. Complete and error are terminal.
// idle -> error only happens when a queued job is cancelled before dispatch.
var transitions = map[types.Status][]types.Status{
	types.StatusIdle:       {types.StatusProcessing, types.StatusError},
	types.StatusProcessing: {types.StatusComplete, types.StatusError},
	types.StatusComplete:   {},
	types.StatusError:      {},
}

// IsValidTransition reports whether from -> to is allowed.
func IsValidTransition(from, to types.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError describes a rejected state change.
type TransitionError struct {
	JobID string
	From  types.Status
	To    types.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for job %s: %s -> %s", e.JobID, e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return joberrors.ErrInvalidTransition
}
