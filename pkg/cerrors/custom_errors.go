package cerrors

import (
	"context"
	"errors"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly     ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric             ErrorType = "GENERIC_ERROR"
	ErrorTypeConfiguration       ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeTemplate            ErrorType = "TEMPLATE_ERROR"
	ErrorTypeClusterApply        ErrorType = "CLUSTER_APPLY_ERROR"
	ErrorTypeClusterDelete       ErrorType = "CLUSTER_DELETE_ERROR"
	ErrorTypeClusterQuery        ErrorType = "CLUSTER_QUERY_ERROR"
	ErrorTypeTimeout             ErrorType = "TIMEOUT_ERROR"
	ErrorTypeMeasurementTimeout  ErrorType = "MEASUREMENT_TIMEOUT"
	ErrorTypeInvalidMeasurement  ErrorType = "INVALID_MEASUREMENT"
	ErrorTypeTrigger             ErrorType = "TRIGGER_ERROR"
	ErrorTypeObjectStore         ErrorType = "OBJECT_STORE_ERROR"
	ErrorTypeResultWrite         ErrorType = "RESULT_WRITE_ERROR"
	ErrorTypeCancelled           ErrorType = "CANCELLED"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present in the run summary
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

// GetRootCauseAndErrorCode unwraps the stacktrace chain and returns the
// message and code of the innermost typed error
func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}

// Classify returns the error code used by the repeat policy. A cancelled or
// expired context at the root of the chain is reported as CANCELLED.
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}
	if isContextError(err) || isContextError(stacktrace.RootCause(err)) {
		return ErrorTypeCancelled
	}
	_, code := GetRootCauseAndErrorCode(err)
	return code
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
