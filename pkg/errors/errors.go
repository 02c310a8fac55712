// Package errors provides the error taxonomy of the minutes engine.
//
// Every failure that crosses a package boundary is either one of the sentinel
// errors below or a *MinutesError carrying a classified ErrorCode. Callers use
// the IsX helpers (which understand both forms) instead of comparing codes.
//
// Usage:
//
//	import merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
//
//	if merrors.IsQualityBelowThreshold(err) {
//	    // respond with 422
//	}
package errors

import "errors"

// Sentinel errors, one per error kind.
var (
	// ErrInvalidInput indicates empty or malformed input, or an out-of-range option.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStageFailure indicates an analysis stage could not produce a result.
	ErrStageFailure = errors.New("stage failure")

	// ErrQualityBelowThreshold indicates a completed result failed the quality gate.
	ErrQualityBelowThreshold = errors.New("quality below threshold")

	// ErrModelUpdateFailure indicates a hot-swap was rejected and rolled back.
	ErrModelUpdateFailure = errors.New("model update failure")

	// ErrCacheInconsistency indicates corrupt cache bookkeeping. It is
	// internal only and must be absorbed before reaching a caller.
	ErrCacheInconsistency = errors.New("cache inconsistency")

	// ErrUpdateInProgress indicates another update holds the stage.
	ErrUpdateInProgress = errors.New("model update in progress")

	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("not found")
)

// IsInvalidInput reports whether err is an invalid-input failure.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsStageFailure reports whether err is a stage failure.
func IsStageFailure(err error) bool {
	return errors.Is(err, ErrStageFailure)
}

// IsQualityBelowThreshold reports whether err is a quality gate rejection.
func IsQualityBelowThreshold(err error) bool {
	return errors.Is(err, ErrQualityBelowThreshold)
}

// IsModelUpdateFailure reports whether err is a rolled-back model update.
func IsModelUpdateFailure(err error) bool {
	return errors.Is(err, ErrModelUpdateFailure)
}

// IsCacheInconsistency reports whether err is a cache bookkeeping failure.
func IsCacheInconsistency(err error) bool {
	return errors.Is(err, ErrCacheInconsistency)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
