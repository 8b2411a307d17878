package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// MonthKeyLayout is the YYYY-MM layout of month keys.
	MonthKeyLayout = "2006-01"
	// DateLayout is the DD-MM-YYYY layout of expense dates.
	DateLayout = "02-01-2006"
	// DisplayLayout is the "January 2026" layout shown to users.
	DisplayLayout = "January 2006"
)

// MonthOption pairs a month key with its display name.
type MonthOption struct {
	Display string
	Key     string
}

// MonthKey returns the YYYY-MM key of t.
func MonthKey(t time.Time) string {
	return t.Format(MonthKeyLayout)
}

// DateString returns t in DD-MM-YYYY form.
func DateString(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseMonthKey parses a YYYY-MM key.
func ParseMonthKey(key string) (time.Time, error) {
	t, err := time.Parse(MonthKeyLayout, strings.TrimSpace(key))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidMonthKey, key)
	}
	return t, nil
}

// ParseDate parses a DD-MM-YYYY date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidDate, s)
	}
	return t, nil
}

// MonthDisplayName maps "2026-01" to "January 2026".
func MonthDisplayName(key string) (string, error) {
	t, err := ParseMonthKey(key)
	if err != nil {
		return "", err
	}
	return t.Format(DisplayLayout), nil
}

// MonthKeyFromDisplay maps "January 2026" back to "2026-01".
func MonthKeyFromDisplay(name string) (string, error) {
	t, err := time.Parse(DisplayLayout, strings.TrimSpace(name))
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidMonthKey, name)
	}
	return MonthKey(t), nil
}

// MonthMapping lists the months of the document, newest first. Keys that
// are not valid YYYY-MM values are skipped.
func MonthMapping(doc *Document) []MonthOption {
	if doc == nil {
		return nil
	}
	keys := make([]string, 0, len(doc.Months))
	for k := range doc.Months {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	out := make([]MonthOption, 0, len(keys))
	for _, k := range keys {
		name, err := MonthDisplayName(k)
		if err != nil {
			continue
		}
		out = append(out, MonthOption{Display: name, Key: k})
	}
	return out
}

// MonthOptions is MonthMapping plus the current month when it has no
// record yet, so it can always be selected.
func MonthOptions(doc *Document, now time.Time) []MonthOption {
	opts := MonthMapping(doc)
	current := MonthKey(now)
	if _, ok := doc.Month(current); ok {
		return opts
	}
	return append(opts, MonthOption{Display: now.Format(DisplayLayout), Key: current})
}
