package capture

import (
	"errors"
	"fmt"

	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

var (
	// ErrBusy is returned when every capture slot is in use
	ErrBusy = errors.New("capture limit reached, try again later")
	// ErrArtifactNotFound is returned when the recording is missing after finalization
	ErrArtifactNotFound = errors.New("recorded video not found")
	// ErrNotFound is returned for an unknown capture ID
	ErrNotFound = errors.New("capture not found")
)

// OpError is a failed browser operation during a capture
type OpError struct {
	State models.CaptureState
	Op    string
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.State, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
