package sentinel

import "errors"

// Sentinel dependency errors. Stores and other dependencies should return
// these (optionally wrapped) so services can translate them into domain
// errors exactly once.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidState    = errors.New("invalid state")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
	ErrAuditInProgress = errors.New("audit already in progress")
)
