package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinutesError is a structured, classified failure.
type MinutesError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *MinutesError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Round(time.Millisecond), e.Timeout)
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MinutesError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrStageFailure) and friends match on the code.
func (e *MinutesError) Is(target error) bool {
	s := sentinelFor(e.Code)
	return s != nil && target == s
}

// Public returns a message safe to show to callers. Only invalid-input and
// quality failures carry their message; everything else is reduced to the
// code description so model identifiers and internal state never leak.
func (e *MinutesError) Public() string {
	switch e.Code {
	case CodeInvalidInput, CodeQualityBelowThreshold:
		return e.Message
	default:
		return GetDescription(e.Code)
	}
}

// InvalidInput returns a CodeInvalidInput error.
func InvalidInput(format string, args ...interface{}) *MinutesError {
	return &MinutesError{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// StageFailure wraps cause as a failure of stage.
func StageFailure(stage string, cause error) *MinutesError {
	msg := "stage failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &MinutesError{Code: CodeStageFailure, Stage: stage, Message: msg, Cause: cause}
}

// StageTimeout reports that stage exceeded its time limit.
func StageTimeout(stage string, elapsed, limit time.Duration, cause error) *MinutesError {
	return &MinutesError{
		Code:     CodeStageFailure,
		Stage:    stage,
		Message:  "stage timed out",
		Duration: elapsed,
		Timeout:  limit,
		Cause:    cause,
	}
}

// QualityBelowThreshold reports a quality gate rejection with its reasons.
func QualityBelowThreshold(reasons []string) *MinutesError {
	msg := "output quality below threshold"
	if len(reasons) > 0 {
		msg += ": " + strings.Join(reasons, "; ")
	}
	return &MinutesError{Code: CodeQualityBelowThreshold, Message: msg}
}

// ModelUpdateFailure reports a rolled-back update of stage.
func ModelUpdateFailure(stage, message string, cause error) *MinutesError {
	return &MinutesError{Code: CodeModelUpdateFailure, Stage: stage, Message: message, Cause: cause}
}

// CacheInconsistency reports corrupt cache bookkeeping for key.
func CacheInconsistency(key, message string) *MinutesError {
	return &MinutesError{Code: CodeCacheInconsistency, Message: fmt.Sprintf("%s (key %s)", message, key)}
}

// ClassifyError inspects an error raised inside stage and returns a
// *MinutesError. Errors that are already classified are returned as is, with
// the stage filled in when missing. Anything else becomes a stage failure.
func ClassifyError(err error, stage string) *MinutesError {
	if err == nil {
		return nil
	}

	var me *MinutesError
	if errors.As(err, &me) {
		if me.Stage == "" && stage != "" {
			cp := *me
			cp.Stage = stage
			return &cp
		}
		return me
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return &MinutesError{Code: CodeInvalidInput, Stage: stage, Message: err.Error(), Cause: err}
	case errors.Is(err, ErrModelUpdateFailure), errors.Is(err, ErrUpdateInProgress):
		return &MinutesError{Code: CodeModelUpdateFailure, Stage: stage, Message: err.Error(), Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &MinutesError{Code: CodeStageFailure, Stage: stage, Message: "operation timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &MinutesError{Code: CodeStageFailure, Stage: stage, Message: "operation cancelled", Cause: err}
	}

	if stage == "" {
		return &MinutesError{Code: CodeInternal, Message: err.Error(), Cause: err}
	}
	return StageFailure(stage, err)
}

// CodeOf returns the classified code of err, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var me *MinutesError
	if errors.As(err, &me) {
		return me.Code
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrQualityBelowThreshold):
		return CodeQualityBelowThreshold
	case errors.Is(err, ErrModelUpdateFailure):
		return CodeModelUpdateFailure
	case errors.Is(err, ErrStageFailure):
		return CodeStageFailure
	}
	return CodeInternal
}

// IsTimeout returns true if the error is a stage timeout.
func IsTimeout(err error) bool {
	var me *MinutesError
	if errors.As(err, &me) {
		return me.Timeout > 0 || errors.Is(me.Cause, context.DeadlineExceeded)
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsErrorRetryable returns true if the error is likely transient.
func IsErrorRetryable(err error) bool {
	return IsRetryable(CodeOf(err))
}
