package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors without the
// stores knowing anything about the error taxonomy exposed to callers.
//
// These represent factual states about stored records, not validation
// failures:
// - ErrNotFound: record does not exist within the tenant scope
// - ErrConflict: a uniqueness constraint rejected the write
// - ErrVersionConflict: optimistic version check failed, record changed underneath
// - ErrInvalidState: record in wrong state for the requested operation
// - ErrUnavailable: the store itself is unreachable or failing
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnavailable     = errors.New("unavailable")
)
