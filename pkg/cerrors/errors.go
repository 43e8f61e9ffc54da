package cerrors

import (
	"encoding/json"
	"fmt"
)

// Error is the single typed error of the harness. Phase names the
// orchestrator state the failure happened in and Target the resource
// (manifest, pod selector, bucket/key) it concerns.
type Error struct {
	ErrorCode ErrorType `json:"errorCode"`
	Phase     string    `json:"phase,omitempty"`
	Reason    string    `json:"reason"`
	Target    string    `json:"target,omitempty"`
}

func (e Error) Error() string {
	return e.userFriendly()
}

func (e Error) userFriendly() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("[%s]: %s", e.ErrorCode, e.Reason)
	}
	return string(b)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}

// Configuration reports an unusable run configuration
func Configuration(reason string) Error {
	return Error{ErrorCode: ErrorTypeConfiguration, Reason: reason}
}
