package model

import (
	"strings"
	"time"
)

var (
	dateLayouts = []string{"2006-01-02", "2006-1-2", "2006/01/02", "2006/1/2"}
	timeLayouts = []string{"15:04", "15:04:05", "3:04PM", "3:04 PM", "3PM", "3 PM"}
)

// CanonicalDate rewrites a stored date as YYYY-MM-DD.  Values in an
// unknown layout come back trimmed but otherwise untouched.
func CanonicalDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// CanonicalTime rewrites a stored time such as "9:30", "17:30:00" or
// "5:30 pm" as HH:MM.  Values in an unknown layout come back trimmed but
// otherwise untouched.
func CanonicalTime(s string) string {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return t.Format("15:04")
		}
	}
	return s
}
