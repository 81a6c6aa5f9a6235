package subtitle

import (
	"fmt"
	"strings"
	"time"
)

// Serialize renders entries back into SRT text.
//
// Entries are renumbered 1..N in slice order. When an entry carries no end
// time (a record rebuilt from cache stores only the start), the start time is
// emitted for both timecodes.
func Serialize(entries []Entry) string {
	var sb strings.Builder

	for i, entry := range entries {
		end := entry.End
		if end == 0 {
			end = entry.Start
		}

		fmt.Fprintf(&sb, "%d\n", i+1)
		fmt.Fprintf(&sb, "%s --> %s\n", formatDuration(entry.Start), formatDuration(end))
		fmt.Fprintf(&sb, "%s\n\n", entry.DisplayText())
	}

	return sb.String()
}

// formatDuration formats time.Duration to SRT time format
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
