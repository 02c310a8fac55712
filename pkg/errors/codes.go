package errors

import "net/http"

// ErrorCode is the machine-readable kind of a failure.
type ErrorCode string

const (
	CodeInvalidInput          ErrorCode = "INVALID_INPUT"
	CodeStageFailure          ErrorCode = "STAGE_FAILURE"
	CodeQualityBelowThreshold ErrorCode = "QUALITY_BELOW_THRESHOLD"
	CodeModelUpdateFailure    ErrorCode = "MODEL_UPDATE_FAILURE"
	CodeCacheInconsistency    ErrorCode = "CACHE_INCONSISTENCY"
	CodeInternal              ErrorCode = "INTERNAL"
)

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	HTTPStatus      int
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	CodeInvalidInput: {
		Code:            CodeInvalidInput,
		Retryable:       false,
		HTTPStatus:      http.StatusBadRequest,
		Description:     "Transcript text, meeting id or processing options are invalid",
		SuggestedAction: "Send a non-empty transcript and meeting id with options in range (0, 1]",
	},
	CodeStageFailure: {
		Code:            CodeStageFailure,
		Retryable:       true,
		HTTPStatus:      http.StatusInternalServerError,
		Description:     "An analysis stage failed or timed out",
		SuggestedAction: "Check inference backend health: minutes model status",
	},
	CodeQualityBelowThreshold: {
		Code:            CodeQualityBelowThreshold,
		Retryable:       false,
		HTTPStatus:      http.StatusUnprocessableEntity,
		Description:     "Generated minutes did not meet the configured quality targets",
		SuggestedAction: "Review stage performance targets: minutes config show",
	},
	CodeModelUpdateFailure: {
		Code:            CodeModelUpdateFailure,
		Retryable:       false,
		HTTPStatus:      http.StatusConflict,
		Description:     "Model update was rejected and rolled back",
		SuggestedAction: "Inspect update history: minutes model status",
	},
	CodeCacheInconsistency: {
		Code:            CodeCacheInconsistency,
		Retryable:       true,
		HTTPStatus:      http.StatusInternalServerError,
		Description:     "Pattern cache bookkeeping was inconsistent; value recomputed",
		SuggestedAction: "No action needed",
	},
	CodeInternal: {
		Code:            CodeInternal,
		Retryable:       false,
		HTTPStatus:      http.StatusInternalServerError,
		Description:     "Unclassified internal error",
		SuggestedAction: "Check service logs",
	},
}

// IsRetryable returns true if the given error code represents a transient failure.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// HTTPStatus returns the HTTP status for the given error code.
func HTTPStatus(code ErrorCode) int {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Check service logs"
}

func sentinelFor(code ErrorCode) error {
	switch code {
	case CodeInvalidInput:
		return ErrInvalidInput
	case CodeStageFailure:
		return ErrStageFailure
	case CodeQualityBelowThreshold:
		return ErrQualityBelowThreshold
	case CodeModelUpdateFailure:
		return ErrModelUpdateFailure
	case CodeCacheInconsistency:
		return ErrCacheInconsistency
	default:
		return nil
	}
}
