package approval

import "errors"

// Gate errors.
var (
	ErrDispatchFailed = errors.New("approval request dispatch failed")
)
