package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"site-timelapse/pkg/errs"
)

// Validate rejects empty tags and tags that would escape the archive layout.
func (t Tags) Validate() error {
	for _, tag := range []struct{ name, value string }{
		{"owner", t.Owner},
		{"collection", t.Collection},
		{"device", t.Device},
	} {
		name, v := tag.name, tag.value
		if strings.TrimSpace(v) == "" {
			return errs.Validation("%s tag is required", name)
		}
		if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
			return errs.Validation("%s tag %q is invalid", name, v)
		}
	}
	return nil
}

// NormalizeDate accepts YYYYMMDD or YYYY-MM-DD and returns YYYYMMDD.
func NormalizeDate(s string) (string, error) {
	d := strings.ReplaceAll(strings.TrimSpace(s), "-", "")
	if len(d) != 8 {
		return "", errs.Validation("date %q must be YYYYMMDD", s)
	}
	if _, err := time.Parse(DateLayout, d); err != nil {
		return "", errs.Validation("date %q is not a calendar date", s)
	}
	return d, nil
}

// NormalizeDateRange validates both bounds and their order.
func NormalizeDateRange(start, end string) (DateRange, error) {
	s, err := NormalizeDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := NormalizeDate(end)
	if err != nil {
		return DateRange{}, err
	}
	if s > e {
		return DateRange{}, errs.Validation("start date %s is after end date %s", s, e)
	}
	return DateRange{Start: s, End: e}, nil
}

// NormalizeHour accepts 0..23 with or without a leading zero and returns HH.
func NormalizeHour(s string) (string, error) {
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || h < 0 || h > 23 {
		return "", errs.Validation("hour %q must be between 0 and 23", s)
	}
	return fmt.Sprintf("%02d", h), nil
}

// NormalizeHourRange validates both bounds and their order. Empty bounds
// default to the whole day.
func NormalizeHourRange(start, end string) (HourRange, error) {
	if strings.TrimSpace(start) == "" {
		start = "0"
	}
	if strings.TrimSpace(end) == "" {
		end = "23"
	}
	s, err := NormalizeHour(start)
	if err != nil {
		return HourRange{}, err
	}
	e, err := NormalizeHour(end)
	if err != nil {
		return HourRange{}, err
	}
	if s > e {
		return HourRange{}, errs.Validation("start hour %s is after end hour %s", s, e)
	}
	return HourRange{Start: s, End: e}, nil
}

// NormalizeTimePrefix validates a comparison time. Empty means noon; up to six
// digits are allowed and a single digit is padded to two.
func NormalizeTimePrefix(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "120000", nil
	}
	if len(s) > 6 {
		return "", errs.Validation("time %q must have at most 6 digits", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", errs.Validation("time %q must be numeric", s)
		}
	}
	if len(s) < 2 {
		s = "0" + s
	}
	return s, nil
}
