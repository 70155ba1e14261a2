package domain

import "errors"

// Configuration errors. These are the only failures that abort a run.
var (
	ErrNoVehicles     = errors.New("no vehicles configured")
	ErrInvalidVehicle = errors.New("invalid vehicle entry")
)
