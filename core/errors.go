package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEpisodeDone signals ordinary completion of the turn driver sequence.
	ErrEpisodeDone = errors.New("episode done")

	ErrNotReady             = errors.New("environment has no pending decision point, call Reset")
	ErrLearningAgentSeated  = errors.New("both agents must be in inference mode")
	ErrNoObservationBuilder = errors.New("learning agent cannot build observations")
	ErrTooManyFailures      = errors.New("too many consecutive step failures")
)

// StepFailedError is raised by the turn driver when applying an action or
// advancing the game was invalid. It ends the episode but not the process.
type StepFailedError struct {
	Turn  int
	Cause error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("game step failed at turn %d: %v", e.Turn, e.Cause)
}

func (e *StepFailedError) Unwrap() error {
	return e.Cause
}

func StepFailed(turn int, cause error) error {
	return errors.WithStack(&StepFailedError{Turn: turn, Cause: cause})
}

func IsStepFailed(err error) bool {
	var sf *StepFailedError
	return errors.As(err, &sf)
}
