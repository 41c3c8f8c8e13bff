package sources

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dateRule parses one family of date formats.
type dateRule func(s string, now time.Time, loc *time.Location) (time.Time, bool)

// dateChain is tried in order; the first successful parse wins.
var dateChain = []dateRule{
	parseISO,
	parseLocaleDigits,
	parseRelativeAgo,
	parseLenient,
}

// ParseDate parses a listing date string relative to now in loc.
func ParseDate(s string, now time.Time, loc *time.Location) (time.Time, bool) {
	s = collapseSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, rule := range dateChain {
		if t, ok := rule(s, now, loc); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseISO(s string, _ time.Time, loc *time.Location) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	koreanDateRe = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
	longDigitRe  = regexp.MustCompile(`(\d{4})\s*[./-]\s*(\d{1,2})\s*[./-]\s*(\d{1,2})\.?(?:\s+(\d{1,2}):(\d{2}))?`)
	shortDigitRe = regexp.MustCompile(`^(\d{2})[./-](\d{1,2})[./-](\d{1,2})\.?$`)
	monthDayRe   = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})$`)
	clockRe      = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

func parseLocaleDigits(s string, now time.Time, loc *time.Location) (time.Time, bool) {
	if m := koreanDateRe.FindStringSubmatch(s); m != nil {
		return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), 0, 0, loc)
	}
	if m := longDigitRe.FindStringSubmatch(s); m != nil {
		return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]), loc)
	}
	if m := shortDigitRe.FindStringSubmatch(s); m != nil {
		return civil(2000+atoi(m[1]), atoi(m[2]), atoi(m[3]), 0, 0, loc)
	}
	local := now.In(loc)
	if m := monthDayRe.FindStringSubmatch(s); m != nil {
		return civil(local.Year(), atoi(m[1]), atoi(m[2]), 0, 0, loc)
	}
	if m := clockRe.FindStringSubmatch(s); m != nil {
		return civil(local.Year(), int(local.Month()), local.Day(), atoi(m[1]), atoi(m[2]), loc)
	}
	return time.Time{}, false
}

// parseRelativeAgo handles "N일전", "3시간 전", "2 days ago", "어제".
func parseRelativeAgo(s string, now time.Time, _ *time.Location) (time.Time, bool) {
	switch {
	case strings.Contains(s, "방금"), strings.EqualFold(s, "just now"):
		return now, true
	case strings.Contains(s, "그제"):
		return now.AddDate(0, 0, -2), true
	case strings.Contains(s, "어제"), strings.EqualFold(s, "yesterday"):
		return now.AddDate(0, 0, -1), true
	}
	if !strings.Contains(s, "전") && !strings.Contains(strings.ToLower(s), "ago") {
		return time.Time{}, false
	}
	return ParseRelative(s, now)
}

func parseLenient(s string, _ time.Time, loc *time.Location) (time.Time, bool) {
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// relativeUnit maps unit markers to a "now minus n units" conversion.
type relativeUnit struct {
	markers []string
	back    func(now time.Time, n int) time.Time
}

// relativeUnits is checked in priority order: minutes, hours, days, weeks,
// months. The first unit whose marker appears wins.
var relativeUnits = []relativeUnit{
	{[]string{"분", "minute", "min"}, func(t time.Time, n int) time.Time { return t.Add(-time.Duration(n) * time.Minute) }},
	{[]string{"시간", "hour"}, func(t time.Time, n int) time.Time { return t.Add(-time.Duration(n) * time.Hour) }},
	{[]string{"일", "day"}, func(t time.Time, n int) time.Time { return t.AddDate(0, 0, -n) }},
	{[]string{"주", "week"}, func(t time.Time, n int) time.Time { return t.AddDate(0, 0, -7*n) }},
	{[]string{"개월", "달", "month"}, func(t time.Time, n int) time.Time { return t.AddDate(0, -n, 0) }},
}

var firstNumberRe = regexp.MustCompile(`\d+`)

// ParseRelative converts a localized relative-time string to an absolute
// time. A string without a number counts as one unit ("a day ago").
func ParseRelative(s string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(s)
	n := 1
	if m := firstNumberRe.FindString(lower); m != "" {
		n = atoi(m)
	}
	for _, u := range relativeUnits {
		for _, marker := range u.markers {
			if strings.Contains(lower, marker) {
				return u.back(now, n), true
			}
		}
	}
	return time.Time{}, false
}

// civil builds a date and rejects out-of-range fields instead of normalizing them.
func civil(y, mo, d, h, mi int, loc *time.Location) (time.Time, bool) {
	if mo < 1 || mo > 12 || d < 1 || d > 31 || h > 23 || mi > 59 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, h, mi, 0, 0, loc)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
