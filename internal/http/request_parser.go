// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// It reduces code duplication by providing reusable functions for month
// selection, numeric form fields and path values.

package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"household/internal/core"
)

// ErrMissingField is returned when a required form field is empty.
var ErrMissingField = errors.New("missing field")

// ParseMonthParam returns the month key selected in values. It accepts the
// YYYY-MM key or the "January 2026" display name and falls back to
// fallback when the parameter is missing or malformed.
func ParseMonthParam(values url.Values, fallback string) string {
	v := strings.TrimSpace(values.Get("month"))
	if v == "" {
		return fallback
	}
	if _, err := core.ParseMonthKey(v); err == nil {
		return v
	}
	if key, err := core.MonthKeyFromDisplay(v); err == nil {
		return key
	}
	return fallback
}

// ParseNumberField parses a decimal form field. Both dot and comma
// separators are accepted.
func ParseNumberField(values url.Values, name string) (core.Number, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return core.Zero, fmt.Errorf("%s: %w", name, ErrMissingField)
	}
	n, err := core.ParseNumber(raw)
	if err != nil {
		return core.Zero, fmt.Errorf("%s: not a number", name)
	}
	return n, nil
}

// ParseNumberFieldOr parses a decimal form field, returning def when the
// field is empty.
func ParseNumberFieldOr(values url.Values, name string, def core.Number) (core.Number, error) {
	if strings.TrimSpace(values.Get(name)) == "" {
		return def, nil
	}
	return ParseNumberField(values, name)
}

// ParseIndexPath reads a non-negative integer path value.
func ParseIndexPath(r *http.Request, name string) (int, error) {
	i, err := strconv.Atoi(r.PathValue(name))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, r.PathValue(name))
	}
	return i, nil
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *ResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
