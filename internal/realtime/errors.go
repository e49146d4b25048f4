package realtime

import "errors"

var (
	ErrSubscriptionLimit   = errors.New("subscription limit reached")
	ErrCollectionNotFound  = errors.New("form not found")
	ErrForbidden           = errors.New("not permitted to view this form's responses")
	ErrSubscriptionExists  = errors.New("subscription already exists")
	ErrSubscriptionMissing = errors.New("subscription not found")
)
