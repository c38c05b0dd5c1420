package conversation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("conversation: not found")
	ErrAgentMismatch  = errors.New("conversation: conversation belongs to a different agent")
	ErrModeConflict   = errors.New("conversation: mode changed concurrently")
	ErrNotHumanMode   = errors.New("conversation: operator replies require human mode")
	ErrInvalidRequest = errors.New("conversation: invalid request")
	ErrJobNotFound    = errors.New("conversation: job not found")
	ErrUnknownAgent   = errors.New("conversation: agent not found")
	ErrReplyFailed    = errors.New("conversation: reply generation failed")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}
