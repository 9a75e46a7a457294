package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotProcessing is returned when completing or failing a job that is not in processing status
	ErrJobNotProcessing = errors.New("job is not in processing status")

	// ErrInvalidPayloadRef is returned when enqueueing with an empty payload reference
	ErrInvalidPayloadRef = errors.New("invalid payload reference")
)
