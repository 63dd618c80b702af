// Package normalize canonicalizes raw phone and email cell values into
// comparable keys. An empty string result means "no usable value".
package normalize

import (
	"regexp"
	"strings"
)

var (
	nonDigit = regexp.MustCompile(`\D+`)

	// A 10-digit Indian mobile (6-9 start) not adjacent to other digits.
	// Legacy cells often pack several numbers into one value, e.g.
	// "9848360170(M) 08468 229462" — the bare mobile must win over any
	// landline suffix.
	bareMobile = regexp.MustCompile(`(?:^|[^0-9])([6-9][0-9]{9})(?:[^0-9]|$)`)

	// The same mobile prefixed with a lone 0, e.g. "09444107443".
	zeroMobile = regexp.MustCompile(`(?:^|[^0-9])0([6-9][0-9]{9})(?:[^0-9]|$)`)
)

var emptyTokens = map[string]struct{}{
	"": {}, "nan": {}, "none": {}, "null": {},
	"n/a": {}, "na": {}, "-": {}, "nil": {},
}

// Phone canonicalizes a raw phone value. Priority:
//  1. bare 10-digit mobile embedded anywhere in the string
//  2. 10-digit mobile behind a lone leading zero
//  3. country-code (91) or STD (0) prefix stripping on the digit string
//  4. exact 10 digits as-is
//  5. area-code + landline combos up to 12 digits: last 10
//  6. more than 12 digits with no extractable mobile: discarded
//  7. 7-9 digit landlines as-is
func Phone(raw string) string {
	s := strings.TrimSpace(raw)
	if _, empty := emptyTokens[strings.ToLower(s)]; empty {
		return ""
	}
	// Numeric-to-text conversion artifact.
	s = strings.TrimSuffix(s, ".0")

	digits := nonDigit.ReplaceAllString(s, "")
	if digits == "" {
		return ""
	}

	if m := bareMobile.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := zeroMobile.FindStringSubmatch(s); m != nil {
		return m[1]
	}

	if len(digits) >= 10 {
		if strings.HasPrefix(digits, "91") && len(digits) == 12 && isMobileStart(digits[2]) {
			return digits[2:]
		}
		if digits[0] == '0' && len(digits) == 11 && isMobileStart(digits[1]) {
			return digits[1:]
		}
		if len(digits) == 10 {
			return digits
		}
		if len(digits) <= 12 {
			return digits[len(digits)-10:]
		}
		// Multi-number cell with no safe canonical form.
		return ""
	}

	if len(digits) >= 7 {
		return digits
	}
	return ""
}

func isMobileStart(b byte) bool {
	return b >= '6' && b <= '9'
}

// Email trims and lowercases a raw email value. Placeholder tokens that
// spreadsheets use for "no value" map to empty. Format validation is
// deliberately permissive: dropping unusual but legitimate addresses during
// grouping is worse than carrying them.
func Email(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if _, empty := emptyTokens[v]; empty {
		return ""
	}
	return v
}

// EmptyCell reports whether a raw cell value is one of the placeholder
// tokens (or a literal zero) that should not survive column coalescing.
func EmptyCell(raw string) bool {
	v := strings.ToLower(strings.TrimSpace(raw))
	if _, empty := emptyTokens[v]; empty {
		return true
	}
	return v == "0"
}
