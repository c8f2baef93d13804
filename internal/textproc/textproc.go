// Package textproc turns page text into index terms: normalization,
// tokenization, stop-word removal, suffix stemming and n-grams.
package textproc

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MinTokenLength is the shortest token kept by Tokenize.
	MinTokenLength = 3
	// StemThreshold is the longest word Stem leaves untouched.
	StemThreshold = 5
)

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	emailPattern  = regexp.MustCompile(`\S+@\S+`)
	digitPattern  = regexp.MustCompile(`\d+`)
	spacePattern  = regexp.MustCompile(`\s+`)
	nonAlphaRunes = regexp.MustCompile(`[^a-z]`)
)

// suffixes are tried in order; the first one that fits is removed.
var suffixes = []string{"ing", "ed", "ly", "er", "est", "tion", "ness", "ment", "able", "ible"}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be by for from has he in is it its of on
		that the to was were will with this but they have had what when where who which why
		how all each every both few more most other some such than too very can just should
		now been being would could also into only your our their not you we`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether word is in the fixed stop-word list.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// Preprocess lower-cases text, folds diacritics, removes URLs, e-mail
// addresses and digits, and collapses whitespace.
func Preprocess(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(foldDiacritics(text))
	s = urlPattern.ReplaceAllString(s, " ")
	s = emailPattern.ReplaceAllString(s, " ")
	s = digitPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokenize preprocesses text and returns its stemmed index terms in order.
func Tokenize(text string) []string {
	clean := Preprocess(text)
	if clean == "" {
		return nil
	}

	fields := strings.FieldsFunc(clean, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		word := nonAlphaRunes.ReplaceAllString(f, "")
		if len(word) < MinTokenLength || IsStopWord(word) {
			continue
		}
		stem := Stem(word)
		if len(stem) < MinTokenLength {
			continue
		}
		tokens = append(tokens, stem)
	}
	return tokens
}

// Stem strips the first matching suffix from words longer than
// StemThreshold, keeping at least four characters of the word.
func Stem(word string) string {
	if len(word) <= StemThreshold {
		return word
	}
	for _, suffix := range suffixes {
		if strings.HasSuffix(word, suffix) && len(word) > len(suffix)+3 {
			return word[:len(word)-len(suffix)]
		}
	}
	return word
}

// ExtractNgrams returns every run of n consecutive tokens joined by "_".
func ExtractNgrams(tokens []string, n int) []string {
	if n <= 0 || len(tokens) < n {
		return nil
	}
	grams := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		grams = append(grams, strings.Join(tokens[i:i+n], "_"))
	}
	return grams
}

// TermFrequency counts occurrences of each token.
func TermFrequency(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}
