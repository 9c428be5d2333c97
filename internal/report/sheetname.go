package report

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// sheetNamer hands out unique, Excel-safe sheet names.
type sheetNamer struct {
	used map[string]bool // lower-cased
}

func newSheetNamer(reserved ...string) *sheetNamer {
	n := &sheetNamer{used: map[string]bool{}}
	for _, r := range reserved {
		n.used[strings.ToLower(r)] = true
	}
	return n
}

// name returns a safe variant of want: characters Excel rejects are dropped,
// the result is cut to 31 runes, and clashes get a "_<n>" suffix.
func (n *sheetNamer) name(want string) string {
	base := cleanSheetName(want)
	if base == "" {
		base = "table"
	}
	candidate := truncateRunes(base, maxSheetName)
	for i := 1; n.used[strings.ToLower(candidate)]; i++ {
		suffix := "_" + strconv.Itoa(i)
		candidate = truncateRunes(base, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	n.used[strings.ToLower(candidate)] = true
	return candidate
}

func cleanSheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	return strings.Trim(strings.TrimSpace(s), "'")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
