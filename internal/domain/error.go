package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("job not found")
	ErrAlreadyExists   = errors.New("job already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrJobNotTerminal  = errors.New("job is not in a terminal status")
	ErrSchedulerClosed = errors.New("scheduler is closed")
)
