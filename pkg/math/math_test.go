package math

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestMaximumMinimum(t *testing.T) {
	tests := []struct {
		name     string
		a, b     int64
		max, min int64
	}{
		{"First number is greater", 10, 5, 10, 5},
		{"Second number is greater", 3, 8, 8, 3},
		{"Numbers are equal", 5, 5, 5, 5},
		{"Negative numbers", -5, -2, -2, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.max, Maximum(tt.a, tt.b))
			assert.Equal(t, tt.min, Minimum(tt.a, tt.b))
		})
	}
}

func TestAdjustment(t *testing.T) {
	assert.Equal(t, 50, Adjustment(100, 50))
	assert.Equal(t, 4, Adjustment(9, 50))
	assert.Equal(t, 0, Adjustment(3, 10))
}

func TestPercentile(t *testing.T) {
	latencies := []int64{120, 80, 100, 300, 90}
	tests := []struct {
		name   string
		values []int64
		p      int
		want   int64
	}{
		{"empty", nil, 50, 0},
		{"single", []int64{42}, 95, 42},
		{"median of odd count", latencies, 50, 100},
		{"median of even count", []int64{1, 2, 3, 4}, 50, 2},
		{"p95", latencies, 95, 300},
		{"p0 is the minimum", latencies, 0, 80},
		{"p100 is the maximum", latencies, 100, 300},
		{"out of range is clamped", latencies, 250, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentile(tt.values, tt.p))
		})
	}
	assert.Equal(t, []int64{120, 80, 100, 300, 90}, latencies)
}

func TestPercentileProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("percentile is one of the values", prop.ForAll(
		func(values []int64, p int) bool {
			got := Percentile(values, p)
			for _, v := range values {
				if v == got {
					return true
				}
			}
			return false
		},
		gen.SliceOf(gen.Int64Range(0, 600000)).SuchThat(func(v []int64) bool { return len(v) > 0 }),
		gen.IntRange(0, 100),
	))

	properties.Property("percentile is monotonic in p", prop.ForAll(
		func(values []int64, p int) bool {
			return Percentile(values, p) <= Percentile(values, p+1)
		},
		gen.SliceOf(gen.Int64Range(0, 600000)),
		gen.IntRange(0, 99),
	))

	properties.TestingRun(t)
}
