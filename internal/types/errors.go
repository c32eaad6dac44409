package types

import "errors"

// Sentinel errors for the core's error taxonomy (spec §7). Classify with
// errors.Is, matching the teacher's internal/storage/sqlite/errors.go idiom.
var (
	// ErrInvalidIdentifier indicates a schema/name/column failed the
	// identifier regex.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrDuplicateModel indicates two model files produced the same
	// full_name.
	ErrDuplicateModel = errors.New("duplicate model")

	// ErrCycleDetected indicates the model DAG contains a cycle.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrExecution wraps a warehouse-level failure during model DDL/DML.
	ErrExecution = errors.New("execution error")

	// ErrAssertionFailed indicates an assertion returned false.
	ErrAssertionFailed = errors.New("assertion failed")
)
