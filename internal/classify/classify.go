// ABOUTME: Pure keyword classification of visitor messages
// ABOUTME: Accent and case insensitive whole-word matching over an ordered rule table

package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LongMessageRunes is the length above which a message always goes to a human.
const LongMessageRunes = 200

// Result is the outcome of classifying one message.
type Result struct {
	Category         Category  `json:"category"`
	Confidence       int       `json:"confidence"`
	SuggestedReplies [3]string `json:"suggested_replies"`
	RequiresHuman    bool      `json:"requires_human"`
}

// Classify maps any text to exactly one Result. It has no error path.
func Classify(text string) Result {
	if strings.TrimSpace(text) == "" {
		return resultFor(otherRule, false)
	}
	long := utf8.RuneCountInString(text) > LongMessageRunes

	normalized := Normalize(text)
	if normalized == "" {
		return resultFor(otherRule, long)
	}

	matched := otherRule
	for _, r := range rules {
		if containsAny(normalized, r.keywords) {
			matched = r
			break
		}
	}

	requiresHuman := matched.requiresHuman ||
		long ||
		containsAny(normalized, humanRequestPhrases)

	return resultFor(matched, requiresHuman)
}

func resultFor(r rule, requiresHuman bool) Result {
	return Result{
		Category:         r.category,
		Confidence:       r.confidence,
		SuggestedReplies: r.replies,
		RequiresHuman:    requiresHuman,
	}
}

// Normalize folds accents and case and reduces the text to single-space
// separated words of letters and digits.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(folded)

	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}

// containsAny reports whether any phrase occurs in normalized text on word
// boundaries, so "oi" does not match "oito".
func containsAny(normalized string, phrases []string) bool {
	padded := " " + normalized + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
