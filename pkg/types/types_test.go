package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBaseline(t *testing.T) {
	tests := []struct {
		input   string
		want    Baseline
		wantErr bool
	}{
		{input: "knative", want: Knative},
		{input: "cc-knative", want: CcKnative},
		{input: "confidential-knative", want: CcKnative},
		{input: "protected-knative", want: TlessKnative},
		{input: " Faasm ", want: Faasm},
		{input: "lambda", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBaseline(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuntimeClass(t *testing.T) {
	tests := []struct {
		baseline Baseline
		want     string
		ok       bool
	}{
		{Knative, "kata-qemu", true},
		{CcKnative, "kata-qemu-sev", true},
		{TlessKnative, "kata-qemu-sev", true},
		{Faasm, "", false},
		{SgxFaasm, "", false},
		{TlessFaasm, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.baseline.String(), func(t *testing.T) {
			got, ok := tt.baseline.RuntimeClass()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutionResult(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r := ExecutionResult{StartTime: start, EndTime: start.Add(1234*time.Millisecond + 900*time.Microsecond)}
	assert.True(t, r.Valid())
	assert.Equal(t, int64(1234), r.DurationMs())

	r = ExecutionResult{StartTime: start, EndTime: start}
	assert.True(t, r.Valid())
	assert.Equal(t, int64(0), r.DurationMs())

	r = ExecutionResult{StartTime: start, EndTime: start.Add(-time.Millisecond)}
	assert.False(t, r.Valid())
}

func TestNewRunDetails(t *testing.T) {
	a := NewRunDetails(E2eLatency, []Baseline{Knative})
	b := NewRunDetails(E2eLatency, []Baseline{Knative})
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, "SkipRepeat", SkipRepeat.String())
}
