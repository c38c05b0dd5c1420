package agents

import "errors"

var (
	ErrNotFound        = errors.New("agents: agent not found")
	ErrInvalidInput    = errors.New("agents: invalid input")
	ErrUnsupportedFile = errors.New("agents: unsupported knowledge file")
	ErrFileTooLarge    = errors.New("agents: knowledge file too large")
)
