package models

import "errors"

// Error taxonomy for the detection pipeline. Per-record errors
// (normalization, enrichment, duplicates) are recoverable and never abort a
// batch; persistence and configuration errors propagate to the caller.
var (
	// ErrNormalization marks a title that could not be parsed. The record is
	// skipped, the rest of the batch continues.
	ErrNormalization = errors.New("title normalization failed")

	// ErrEnrichmentUnavailable marks a metadata lookup that failed after
	// retries. Matching proceeds without enrichment.
	ErrEnrichmentUnavailable = errors.New("metadata enrichment unavailable")

	// ErrRateLimited marks a provider call deferred by the rate limiter.
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrDuplicateEntry marks a direct insert that hit an existing row.
	// The deduplicating upserts absorb the conflict instead of raising it.
	ErrDuplicateEntry = errors.New("entry already exists")

	// ErrAlreadyDispatched marks a monitoring entry another sweep finalized
	// first.
	ErrAlreadyDispatched = errors.New("entry already dispatched")

	// ErrPersistence marks a storage failure. Fatal for the current record
	// and surfaced to batch-level retry logic.
	ErrPersistence = errors.New("persistence failure")

	// ErrConfiguration marks missing or invalid startup configuration.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)
