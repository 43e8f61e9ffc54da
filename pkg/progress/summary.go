package progress

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/kyokomi/emoji"

	"github.com/tless/tless-bench/pkg/math"
)

// BaselineSummary is the outcome of one baseline
type BaselineSummary struct {
	Baseline string
	Recorded int
	Skipped  int
	// LatenciesMs are the recorded durations in recording order
	LatenciesMs []int64
	Err         error
}

// PrintSummary writes one line per baseline
func PrintSummary(w io.Writer, summaries []BaselineSummary) {
	for _, s := range summaries {
		if s.Err != nil {
			fmt.Fprintf(w, "%s %s: aborted after %d recorded repeats: %v\n",
				emoji.Sprint(":thumbsdown:"), color.RedString(s.Baseline), s.Recorded, s.Err)
			continue
		}
		line := fmt.Sprintf("%s %s: %d repeats recorded", emoji.Sprint(":thumbsup:"), color.GreenString(s.Baseline), s.Recorded)
		if s.Skipped > 0 {
			line += color.YellowString(", %d skipped", s.Skipped)
		}
		if len(s.LatenciesMs) > 0 {
			line += fmt.Sprintf(" (median %dms, p95 %dms)", math.Median(s.LatenciesMs), math.Percentile(s.LatenciesMs, 95))
		}
		fmt.Fprintln(w, line)
	}
}
