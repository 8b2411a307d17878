package http

import (
	"net"
	"net/http"
	"strings"
	"time"

	"household/internal/core"
)

// dateInputLayout is the layout of <input type="date"> values.
const dateInputLayout = "2006-01-02"

// formatAmount renders n with the currency symbol and thousands separators.
// Whole values have no decimals; anything else shows two.
//
// Examples:
//
//	formatAmount("Rs", 5000)    -> "Rs 5,000"
//	formatAmount("Rs", 80.25)   -> "Rs 80.25"
//	formatAmount("Rs", -1200.5) -> "Rs -1,200.50"
func formatAmount(symbol string, n core.Number) string {
	s := n.StringFixed(2)
	if n.IsInteger() {
		s = n.StringFixed(0)
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := b.String()
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	if symbol == "" {
		return out
	}
	return symbol + " " + out
}

// sanitizeInput removes potentially dangerous characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	// Remove control characters except tab, newline, carriage return
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// clientIP extracts the client address, considering proxies.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ledgerDate converts a YYYY-MM-DD date input, or a typed DD-MM-YYYY date,
// into the DD-MM-YYYY form stored on expenses.
func ledgerDate(input string) (string, error) {
	t, err := time.Parse(dateInputLayout, strings.TrimSpace(input))
	if err != nil {
		// browsers without a date picker submit what was typed
		if t, err = core.ParseDate(input); err != nil {
			return "", err
		}
	}
	return core.DateString(t), nil
}
