package domain

import "errors"

var (
	ErrEntryNotFound     = errors.New("glucose entry not found")
	ErrStateNotFound     = errors.New("simulation state not found")
	ErrInvalidConfig     = errors.New("invalid simulation configuration")
	ErrInvalidTimeRange  = errors.New("invalid time range")
	ErrBackfillInFlight  = errors.New("backfill already in progress")
)
