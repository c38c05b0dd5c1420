package notify

import "errors"

var (
	ErrNotFound     = errors.New("notify: notification not found")
	ErrMissingOwner = errors.New("notify: org and user are required")
)
