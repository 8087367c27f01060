package eventlog

import (
	"errors"
	"strconv"
	"time"
)

// ErrInvalidTimestamp indicates a timestamp parsing error.
var ErrInvalidTimestamp = errors.New("eventlog: invalid timestamp format")

// Common timestamp layouts ordered by likelihood
var commonLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00", // ISO 8601 with millis
	"2006-01-02T15:04:05Z07:00",     // ISO 8601
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	time.RFC3339Nano,
	time.RFC1123Z,
}

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp parses a timestamp cell. ISO 8601 is tried first through a
// byte-level fast path, then numeric spreadsheet serials, then common
// layouts and finally the optional extra layout. Values without a zone are UTC.
func ParseTimestamp(s, layout string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}

	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		if t, ok := parseISO8601Fast(s); ok {
			return t, nil
		}
	}

	if isNumeric(s) {
		if t, ok := parseExcelSerial(s); ok {
			return t, nil
		}
	}

	for _, l := range commonLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}

	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

// parseISO8601Fast parses YYYY-MM-DD[(T| )hh:mm:ss[.frac]][Z|±hh[:]mm]
// using direct byte arithmetic. Anything else reports ok=false.
func parseISO8601Fast(s string) (time.Time, bool) {
	year := parseDigits(s[0:4])
	month := parseDigits(s[5:7])
	day := parseDigits(s[8:10])
	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	var hour, minute, second, nsec int
	loc := time.UTC
	i := 10

	if len(s) > 10 {
		if s[10] != 'T' && s[10] != ' ' || len(s) < 19 || s[13] != ':' || s[16] != ':' {
			return time.Time{}, false
		}
		hour = parseDigits(s[11:13])
		minute = parseDigits(s[14:16])
		second = parseDigits(s[17:19])
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 60 {
			return time.Time{}, false
		}
		i = 19

		if i < len(s) && s[i] == '.' {
			end := i + 1
			for end < len(s) && s[end] >= '0' && s[end] <= '9' {
				end++
			}
			nsec = parseFraction(s[i+1 : end])
			i = end
		}

		if i < len(s) {
			switch s[i] {
			case 'Z':
				i++
			case '+', '-':
				off, n, ok := parseOffset(s[i:])
				if !ok {
					return time.Time{}, false
				}
				loc = time.FixedZone("", off)
				i += n
			default:
				return time.Time{}, false
			}
		}
	}

	if i != len(s) {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc)
	if t.Day() != day {
		// Date normalisation moved the day, e.g. 2024-02-31.
		return time.Time{}, false
	}
	return t, true
}

// parseOffset parses ±hh:mm or ±hhmm and returns seconds east of UTC.
func parseOffset(s string) (offset, n int, ok bool) {
	var hh, mm int
	switch {
	case len(s) >= 6 && s[3] == ':':
		hh, mm, n = parseDigits(s[1:3]), parseDigits(s[4:6]), 6
	case len(s) >= 5:
		hh, mm, n = parseDigits(s[1:3]), parseDigits(s[3:5]), 5
	case len(s) == 3:
		hh, mm, n = parseDigits(s[1:3]), 0, 3
	default:
		return 0, 0, false
	}
	if hh < 0 || mm < 0 {
		return 0, 0, false
	}
	offset = hh*3600 + mm*60
	if s[0] == '-' {
		offset = -offset
	}
	return offset, n, true
}

// parseExcelSerial parses a spreadsheet serial date (days since 1899-12-30).
func parseExcelSerial(s string) (time.Time, bool) {
	val, err := strconv.ParseFloat(s, 64)
	if err != nil || val <= 0 {
		return time.Time{}, false
	}
	days := int(val)
	frac := val - float64(days)
	t := excelEpoch.AddDate(0, 0, days)
	if frac > 0 {
		t = t.Add(time.Duration(frac * 24 * float64(time.Hour)).Round(time.Millisecond))
	}
	return t, true
}

// parseDigits parses an all-digit string, or returns -1.
func parseDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// parseFraction parses fractional seconds to nanoseconds.
func parseFraction(s string) int {
	var result int
	multiplier := 100000000
	for i := 0; i < len(s) && i < 9; i++ {
		result += int(s[i]-'0') * multiplier
		multiplier /= 10
	}
	return result
}

// isNumeric checks if a string contains only digits and at most one dot.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '.' && dots == 0 {
			dots++
			continue
		}
		return false
	}
	return true
}
