package chat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	clockRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	digitRe = regexp.MustCompile(`\d`)
	// weekdays, month names and relative phrases normalizeDate cannot resolve
	vagueDateRe = regexp.MustCompile(`(?i)\b(mon|tue|wed|thu|fri|sat|sun|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b|\bnext\b|\bweekend\b`)
)

// normalizeDate accepts YYYY-MM-DD, "today" and "tomorrow".
func normalizeDate(s string, now time.Time) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return ""
	case "today", "tonight":
		return now.Format("2006-01-02")
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	}
	if m := dateRe.FindStringSubmatch(s); m != nil {
		if _, err := time.Parse("2006-01-02", m[1]); err == nil {
			return m[1]
		}
	}
	return ""
}

// normalizeTime converts "17:30", "5:30 pm" or "5pm" to HH:MM.  A bare
// number without minutes or am/pm is not treated as a time.
func normalizeTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, m := range clockRe.FindAllStringSubmatch(s, -1) {
		if m[2] == "" && m[3] == "" {
			continue
		}
		h, _ := strconv.Atoi(m[1])
		min := 0
		if m[2] != "" {
			min, _ = strconv.Atoi(m[2])
		}
		switch strings.ToLower(m[3]) {
		case "pm":
			if h < 12 {
				h += 12
			}
		case "am":
			if h == 12 {
				h = 0
			}
		}
		if h > 23 || min > 59 {
			continue
		}
		return fmt.Sprintf("%02d:%02d", h, min)
	}
	return ""
}

// splitShowtime reads a free form descriptor such as "2024-12-15 17:30",
// "tomorrow 6pm" or "17:30" into a date and a time, either of which may be
// empty.
func splitShowtime(desc string, now time.Time) (date, clock string) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "", ""
	}
	lower := strings.ToLower(desc)
	switch {
	case dateRe.MatchString(lower):
		date = normalizeDate(dateRe.FindString(lower), now)
		lower = strings.Replace(lower, dateRe.FindString(lower), " ", 1)
	case strings.Contains(lower, "tomorrow"):
		date = normalizeDate("tomorrow", now)
	case strings.Contains(lower, "today"), strings.Contains(lower, "tonight"):
		date = normalizeDate("today", now)
	}
	return date, normalizeTime(lower)
}

// unreadShowtime reports whether desc names a date or a time that
// splitShowtime could not turn into date or clock.
func unreadShowtime(desc, date, clock string) (dateUnread, timeUnread bool) {
	lower := strings.ToLower(strings.TrimSpace(desc))
	if lower == "" {
		return false, false
	}
	lower = dateRe.ReplaceAllString(lower, " ")
	dateUnread = date == "" && vagueDateRe.MatchString(lower)
	timeUnread = clock == "" && digitRe.MatchString(lower)
	return dateUnread, timeUnread
}
