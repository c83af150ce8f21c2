package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidCount    = errors.New("count must be a positive integer")
	ErrInvalidConfig   = errors.New("invalid generation config")
	ErrNotRetryable    = errors.New("only failed jobs can be retried")
	ErrNoCredential    = errors.New("no api key configured")
	ErrProviderFailure = errors.New("provider failure")
)
