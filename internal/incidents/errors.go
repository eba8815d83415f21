package incidents

import "errors"

// Service errors.
var (
	ErrNotFound          = errors.New("incident not found")
	ErrEmptyTitle        = errors.New("title is required")
	ErrTitleTooLong      = errors.New("title must not exceed 200 characters")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("illegal status transition")
	ErrEmptyAssignee     = errors.New("assignee is required")
	ErrConflict          = errors.New("incident was modified concurrently")
)
