package links

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultKeywords is the number of keywords used for a search query.
const DefaultKeywords = 5

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "been": true, "be": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "must": true,
	"can": true, "this": true, "that": true, "these": true, "those": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "what": true, "which": true, "who": true, "when": true,
	"where": true, "why": true, "how": true,
}

// Keywords picks up to limit distinct words from text for a search query:
// lower-cased, purely alphabetic, longer than three letters, not a stop word,
// in order of first appearance. Words with attached punctuation or digits are
// skipped.
func Keywords(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultKeywords
	}

	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(word) <= 3 || stopWords[word] || !isAlpha(word) || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) == limit {
			break
		}
	}
	return strings.Join(out, " ")
}

func isAlpha(word string) bool {
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return word != ""
}
