package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestRender(t *testing.T) {
	model := progress.New(progress.WithWidth(10), progress.WithoutPercentage())
	tests := []struct {
		pos, total int
		suffix     string
	}{
		{0, 4, " 0/4 (0%)"},
		{2, 4, " 2/4 (50%)"},
		{4, 4, " 4/4 (100%)"},
		{0, 0, " 0/0 (100%)"},
	}
	for _, tt := range tests {
		line := Render(model, "e2e-latency/word-count", tt.pos, tt.total)
		assert.True(t, strings.HasPrefix(line, "e2e-latency/word-count "), line)
		assert.True(t, strings.HasSuffix(line, tt.suffix), line)
	}
}

func TestTerminalBar(t *testing.T) {
	var out bytes.Buffer
	bar := NewTerminal(&out).Start("e2e-latency/word-count", 2)
	bar.Inc()
	bar.Inc()
	bar.Inc()
	bar.Finish()
	bar.Finish()

	text := out.String()
	assert.Equal(t, 4, strings.Count(text, "\r"))
	assert.Contains(t, text, "2/2 (100%)")
	assert.NotContains(t, text, "3/2")
	assert.True(t, strings.HasSuffix(text, "\n"))
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	PrintSummary(&out, []BaselineSummary{
		{Baseline: "knative", Recorded: 3, LatenciesMs: []int64{110, 90, 100}},
		{Baseline: "cc-knative", Recorded: 2, Skipped: 1},
		{Baseline: "tless-knative", Recorded: 0, Err: errors.New("apply failed")},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "knative: 3 repeats recorded (median 100ms, p95 110ms)")
	assert.Contains(t, lines[1], "1 skipped")
	assert.Contains(t, lines[2], "aborted after 0 recorded repeats: apply failed")
}

func TestNop(t *testing.T) {
	bar := Nop{}.Start("x", 1)
	bar.Inc()
	bar.Finish()
}
