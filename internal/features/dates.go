package features

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"02.01.2006",
	"2006/01/02",
}

// Excel counts days from 1899-12-30 once the 1900 leap-year bug is folded in.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const maxExcelSerial = 2958465 // 9999-12-31

// ParseDate parses a complaint date in one of the accepted layouts or as an
// Excel serial day number.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial >= 1 && serial <= maxExcelSerial {
		days := int(serial)
		return excelEpoch.AddDate(0, 0, days), true
	}
	return time.Time{}, false
}

// DayOfWeek numbers Monday as 0 through Sunday as 6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
