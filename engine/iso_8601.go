package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var iso8601DurationDateRegexp = regexp.MustCompile(`^P(\d+Y)?(\d+M)?(\d+W)?(\d+D)?$`)
var iso8601DurationTimeRegexp = regexp.MustCompile(`^(\d+H)?(\d+M)?(\d+S)?$`)

// NewISO8601Duration parses a duration like P1D, PT5M or P1DT12H.
func NewISO8601Duration(v string) (ISO8601Duration, error) {
	if v == "" {
		return ISO8601Duration(v), nil
	}

	date, clock, hasTime := strings.Cut(v, "T")

	var valid bool
	switch {
	case !hasTime:
		valid = len(date) >= 3 && iso8601DurationDateRegexp.MatchString(date) // e.g. P1D
	case len(clock) < 2:
		valid = false // e.g. P1DT
	case date == "P":
		valid = iso8601DurationTimeRegexp.MatchString(clock) // e.g. PT1S
	default:
		valid = iso8601DurationDateRegexp.MatchString(date) && iso8601DurationTimeRegexp.MatchString(clock)
	}

	if !valid || strings.Contains(clock, "T") {
		return "", fmt.Errorf("failed to parse ISO 8601 duration %s", v)
	}

	return ISO8601Duration(v), nil
}

// ISO8601Duration is a duration in ISO 8601 format, used for timer delays and periods.
// The zero value has a duration of 0 seconds.
//
// see https://en.wikipedia.org/wiki/ISO_8601#Durations
type ISO8601Duration string

// Calculate adds the duration to a point in time.
func (d ISO8601Duration) Calculate(t time.Time) time.Time {
	if d.IsZero() {
		return t
	}

	v := string(d)

	var isTime bool
	var l, n int
	for i, r := range v {
		if unicode.IsLetter(r) && l != 0 {
			n, _ = strconv.Atoi(v[i-l : i])
			l = 0
		} else if unicode.IsDigit(r) {
			l++
		}

		switch r {
		case 'Y':
			t = t.AddDate(n, 0, 0)
		case 'M':
			if isTime {
				t = t.Add(time.Duration(n) * time.Minute)
			} else {
				t = t.AddDate(0, n, 0)
			}
		case 'W':
			t = t.AddDate(0, 0, n*7)
		case 'D':
			t = t.AddDate(0, 0, n)
		case 'T':
			isTime = true
		case 'H':
			t = t.Add(time.Duration(n) * time.Hour)
		case 'S':
			t = t.Add(time.Duration(n) * time.Second)
		}
	}

	return t
}

// IsPositive determines if the duration moves a point in time forward.
// A period must be positive, otherwise a timer would fire endlessly at the same time.
func (d ISO8601Duration) IsPositive() bool {
	t := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return d.Calculate(t).After(t)
}

func (d ISO8601Duration) IsZero() bool {
	return d == ""
}

func (d ISO8601Duration) String() string {
	return string(d)
}
