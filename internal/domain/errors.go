package domain

import "errors"

// Failure taxonomy for the pipeline. Data-quality failures
// (ErrInvalidCoordinate, ErrUnparseableTimestamp) apply per record: the record
// is dropped, a skip counter is incremented, and the batch continues.
// ErrSchemaMismatch and ErrInsufficientData are fatal to the operation that
// raises them. ErrUnknownTimeWindow signals a bad query, not bad data.
// All are wrapped with context at the failure site; match with errors.Is.
var (
	// ErrInvalidCoordinate marks a latitude/longitude that is non-finite or
	// outside valid WGS-84 range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrUnparseableTimestamp marks a record timestamp that does not parse.
	ErrUnparseableTimestamp = errors.New("unparseable timestamp")

	// ErrSchemaMismatch marks a feature vector whose layout disagrees with the
	// schema a model was trained with. Never degraded to best-effort.
	ErrSchemaMismatch = errors.New("feature schema mismatch")

	// ErrInsufficientData marks a training or validation attempt with fewer
	// observations than the configured minimum.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrUnknownTimeWindow marks a day or period label that is not part of the
	// window vocabulary.
	ErrUnknownTimeWindow = errors.New("unknown time window")
)
