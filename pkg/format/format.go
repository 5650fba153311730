package format

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
)

const neverChecked = "never"

// Bytes renders a byte count in binary units (KiB, MiB) for logs.
func Bytes(n int64) string {
	return units.BytesSize(float64(n))
}

// Duration renders a coarse human duration, "1 minute", "3 hours".
func Duration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return units.HumanDuration(d)
}

func Latency(d time.Duration) string {
	ms := d.Milliseconds()
	if ms >= 1000 {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", ms)
}

func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return neverChecked
	}
	return units.HumanDuration(time.Since(t)) + " ago"
}

// BackendsUp renders "healthy/total" for status summaries.
func BackendsUp(healthy, total int) string {
	return fmt.Sprintf("%d/%d", healthy, total)
}

// Progress renders a pull progress fraction, empty when the total is not
// known yet.
func Progress(completed, total int64) string {
	if total <= 0 {
		return ""
	}
	return fmt.Sprintf("%s/%s (%.0f%%)", units.BytesSize(float64(completed)), units.BytesSize(float64(total)), float64(completed)/float64(total)*100)
}
