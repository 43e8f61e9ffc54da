package lib

import (
	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/types"
)

// Decide maps a repeat or phase failure to what the orchestrator does next.
// Failures without a known code abort the baseline.
func Decide(err error) types.Decision {
	if err == nil {
		return types.Continue
	}
	switch cerrors.Classify(err) {
	case cerrors.ErrorTypeMeasurementTimeout, cerrors.ErrorTypeTrigger, cerrors.ErrorTypeInvalidMeasurement:
		return types.SkipRepeat
	case cerrors.ErrorTypeConfiguration, cerrors.ErrorTypeResultWrite, cerrors.ErrorTypeCancelled:
		return types.AbortRun
	default:
		return types.AbortBaseline
	}
}
