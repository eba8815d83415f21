package notifications

import "errors"

// Repository errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrDuplicateDelivery    = errors.New("delivery already recorded for this event and channel")
)
