package profile

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Type descriptions reported for a field, in classification order.
const (
	TypeEmpty    = "Empty"
	TypeFreeText = "Free text"
	TypeDate     = "Date"
	TypeInteger  = "Integer"
	TypeReal     = "Real"
	TypeVarChar  = "VarChar"
)

// isNumber reports whether s parses as a finite decimal number.
// Hex floats and the NaN/Inf spellings strconv accepts are rejected.
func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9', c == '.', c == '-', c == '+', c == 'e', c == 'E':
		default:
			return false
		}
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// isInteger reports whether s is a whole number within int64 range.
func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isDate accepts yyyy<sep>MM<sep>dd (10 chars) and MM<sep>dd<sep>yy (8 chars).
// The separator is taken from position 4 (resp. 2) and must repeat at
// position 7 (resp. 5). Anything carrying a time component is rejected.
func isDate(s string) bool {
	if strings.ContainsRune(s, ':') {
		return false
	}
	switch len(s) {
	case 10:
		sep := s[4]
		if isDigit(sep) || s[7] != sep {
			return false
		}
		year, ok1 := atoiDigits(s[0:4])
		month, ok2 := atoiDigits(s[5:7])
		day, ok3 := atoiDigits(s[8:10])
		if !ok1 || !ok2 || !ok3 {
			return false
		}
		return year >= 1700 && year <= 2200 && validMonthDay(month, day)
	case 8:
		sep := s[2]
		if isDigit(sep) || s[5] != sep {
			return false
		}
		month, ok1 := atoiDigits(s[0:2])
		day, ok2 := atoiDigits(s[3:5])
		_, ok3 := atoiDigits(s[6:8])
		if !ok1 || !ok2 || !ok3 {
			return false
		}
		return validMonthDay(month, day)
	default:
		return false
	}
}

// ParseDate converts a value recognized as a date into a UTC midnight time.
// Two-digit years follow time.Parse: 69-99 are 19xx, 00-68 are 20xx. Days past
// the end of the month roll over as in time.Date, so 2020-02-31 is 2020-03-02.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !isDate(s) {
		return time.Time{}, false
	}
	var y, m, d int
	if len(s) == 10 {
		y, _ = atoiDigits(s[0:4])
		m, _ = atoiDigits(s[5:7])
		d, _ = atoiDigits(s[8:10])
	} else {
		m, _ = atoiDigits(s[0:2])
		d, _ = atoiDigits(s[3:5])
		y, _ = atoiDigits(s[6:8])
		if y >= 69 {
			y += 1900
		} else {
			y += 2000
		}
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), true
}

func validMonthDay(month, day int) bool {
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func atoiDigits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

// Words splits s into lower-case words. Every rune that is not a letter or a
// digit separates words.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func parseFloat(s string) (float64, bool) {
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return x, true
}
