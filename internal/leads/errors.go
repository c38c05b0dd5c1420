package leads

import "errors"

var (
	ErrLeadNotFound  = errors.New("leads: lead not found")
	ErrInvalidStatus = errors.New("leads: invalid status")
	ErrMissingKeys   = errors.New("leads: org and conversation are required")
)
