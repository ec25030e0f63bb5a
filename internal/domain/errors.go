package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrMissingField    = errors.New("required field missing")
	ErrProviderFailure = errors.New("provider failure")
	ErrStatusConflict  = errors.New("status conflict")
	ErrTimeout         = errors.New("timed out waiting for provider")
	ErrNoScenes        = errors.New("no scenes generated")
)
