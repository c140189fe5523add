// Package textnorm cleans raw article text before it is vectorized.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// urlPattern matches http(s) links and bare www. hosts up to the next whitespace.
var urlPattern = regexp.MustCompile(`https?://\S*|www\.\S*`)

// Normalize lower-cases text, strips URLs and digit runs, and collapses
// whitespace. It never fails; text that is nothing but links, numbers or
// whitespace comes back empty.
//
// Stripping is repeated until nothing changes: removing digits can splice a
// new link together ("h1ttp://x"), and the output must already be clean.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// Casers carry state and are not safe to share between goroutines.
	out := cases.Lower(language.Und).String(text)

	for {
		stripped := stripDigits(urlPattern.ReplaceAllString(out, ""))
		if stripped == out {
			break
		}
		out = stripped
	}

	return strings.Join(strings.Fields(out), " ")
}

// WordCount returns the number of whitespace-separated words in cleaned text.
func WordCount(cleaned string) int {
	return len(strings.Fields(cleaned))
}

func stripDigits(s string) string {
	if strings.IndexFunc(s, unicode.IsDigit) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, s)
}
