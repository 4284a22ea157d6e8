package database

import (
	"fmt"
	"time"
)

// FormatWindow formats the search window of a run for display,
// e.g. "Feb 01 - Feb 08, 2026".
func FormatWindow(startedAt time.Time, daysBack int) string {
	end := startedAt.UTC()
	if daysBack <= 0 {
		return "all dates up to " + end.Format("Jan 02, 2006")
	}
	start := end.AddDate(0, 0, -daysBack)
	if start.Year() != end.Year() {
		return fmt.Sprintf("%s - %s", start.Format("Jan 02, 2006"), end.Format("Jan 02, 2006"))
	}
	return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
}
