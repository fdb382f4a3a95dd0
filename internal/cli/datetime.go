package cli

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	reDateOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reDateTime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}(?::\d{2})?$`)
)

// parseDeadline parses:
// - YYYY-MM-DD (end of that day, local time)
// - YYYY-MM-DD HH:MM[:SS] (local date+time)
// - RFC3339 / RFC3339Nano (timezone-aware)
// - "none" (clears the deadline; returned as the zero time)
//
// Results are in UTC.
func parseDeadline(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty deadline")
	}
	if strings.EqualFold(s, "none") {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}

	if reDateOnly.MatchString(s) {
		d, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return time.Time{}, err
		}
		return d.Add(24*time.Hour - time.Second).UTC(), nil
	}
	if reDateTime.MatchString(s) {
		s = strings.Replace(s, "T", " ", 1)
		layout := "2006-01-02 15:04"
		if len(s) > len(layout) {
			layout = "2006-01-02 15:04:05"
		}
		d, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return time.Time{}, err
		}
		return d.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("invalid deadline %q (expected YYYY-MM-DD, YYYY-MM-DD HH:MM, RFC3339, or none)", s)
}
