package materialize

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

// invariantLayouts are tried after spf13/cast's ISO and RFC layouts.
var invariantLayouts = []string{
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseFloat parses text as a culture-invariant real number. It accepts
// surrounding whitespace, a leading or trailing sign, parentheses for
// negatives, ',' group separators in the integer part, a decimal point and an
// exponent, plus NaN and Infinity.
func ParseFloat(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if n := len(s); n > 1 && (s[n-1] == '-' || s[n-1] == '+') {
		s = string(s[n-1]) + strings.TrimSpace(s[:n-1])
	}

	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "nan", "infinity":
	default:
		var ok bool
		if s, ok = stripGroups(s); !ok {
			return 0, false
		}
	}

	v, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, false
	}
	if neg {
		if v < 0 {
			return 0, false
		}
		v = -v
	}
	return v, true
}

// stripGroups removes group separators from the integer part and rejects
// anything outside the invariant number grammar.
func stripGroups(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	intPart := true
	digits := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
			b.WriteRune(r)
		case r == ',':
			if !intPart || !digits {
				return "", false
			}
		case r == '.':
			if !intPart {
				return "", false
			}
			intPart = false
			b.WriteRune(r)
		case r == 'e' || r == 'E':
			if !digits {
				return "", false
			}
			intPart = false
			b.WriteRune(r)
		case r == '+' || r == '-':
			if i != 0 && !strings.ContainsAny(s[i-1:i], "eE") {
				return "", false
			}
			b.WriteRune(r)
		default:
			return "", false
		}
	}
	return b.String(), digits
}

// ParseBool recognises "True" and "False" in any case.
func ParseBool(text string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	default:
		return 0, false
	}
}

// ParseNumeric is the numeric interpretation of a cell: a real number,
// otherwise True/False as 1/0.
func ParseNumeric(text string) (float64, bool) {
	if v, ok := ParseFloat(text); ok {
		return v, true
	}
	return ParseBool(text)
}

// ParseDateTime parses text as a culture-invariant date/time literal.
// Values without a zone are taken as UTC. Plain numbers are never dates.
func ParseDateTime(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	if _, isNumber := ParseFloat(s); isNumber {
		return time.Time{}, false
	}
	if t, err := cast.ToTimeInDefaultLocationE(s, time.UTC); err == nil {
		return t, true
	}
	for _, layout := range invariantLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
