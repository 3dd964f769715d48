// Package phone canonicalizes destination numbers and matches stored numbers
// against incoming webhook numbers. The only locale heuristic implemented is
// the Brazilian mobile ninth digit, which WhatsApp includes on some channels
// and omits on others; the rule set is table-driven so other locales can be
// added without touching the matcher.
package phone

import "strings"

// ninthDigitRule describes a locale where a filler digit may appear at a fixed
// position of the national number.
type ninthDigitRule struct {
	CountryCode string
	// Digit expected at Position for the long form.
	Digit byte
	// WithCCLen / Position apply when the number carries the country code.
	WithCCLen  int
	WithCCPos  int
	BareLen    int
	BarePos    int
}

var ninthDigitRules = []ninthDigitRule{
	// BR: 55 + DDD(2) + 9 + 8 digits, or DDD(2) + 9 + 8 digits.
	{CountryCode: "55", Digit: '9', WithCCLen: 13, WithCCPos: 4, BareLen: 11, BarePos: 2},
}

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeE164 produces a +<digits> form, prefixing defaultCC when the number
// does not already carry it. International "00" prefixes are dropped.
func NormalizeE164(s, defaultCC string) string {
	d := DigitsOnly(s)
	if d == "" {
		return ""
	}
	d = strings.TrimPrefix(d, "00")
	if defaultCC != "" && !strings.HasPrefix(d, defaultCC) && len(d) <= 11 {
		d = defaultCC + d
	}
	return "+" + d
}

// stripNinth removes the locale filler digit when the number is in long form.
func stripNinth(d string) string {
	for _, r := range ninthDigitRules {
		if len(d) == r.WithCCLen && strings.HasPrefix(d, r.CountryCode) && d[r.WithCCPos] == r.Digit {
			return d[:r.WithCCPos] + d[r.WithCCPos+1:]
		}
		if len(d) == r.BareLen && d[r.BarePos] == r.Digit {
			return d[:r.BarePos] + d[r.BarePos+1:]
		}
	}
	return d
}

func tail10(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[len(s)-10:]
}

// suffix10 compares the trailing ten digits, letting the shorter side match as
// a suffix of the longer one.
func suffix10(a, b string) bool {
	ta, tb := tail10(a), tail10(b)
	return strings.HasSuffix(ta, tb) || strings.HasSuffix(tb, ta)
}

// Match reports whether stored and incoming refer to the same destination.
// Exact digit equality, mutual 10-digit suffix, and ninth-digit-stripped
// suffix are all accepted. The relation is symmetric and reflexive.
func Match(stored, incoming string) bool {
	a := DigitsOnly(stored)
	b := DigitsOnly(incoming)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if suffix10(a, b) {
		return true
	}
	return suffix10(stripNinth(a), stripNinth(b))
}

// Last11 returns the trailing 11 digits, used as the forgiving report-join key.
func Last11(s string) string {
	d := DigitsOnly(s)
	if len(d) <= 11 {
		return d
	}
	return d[len(d)-11:]
}
