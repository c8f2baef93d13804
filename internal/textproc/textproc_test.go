package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercase and spaces", "  Hello\t\tWORLD \n", "hello world"},
		{"urls removed", "see https://example.com/a?b=1 now", "see now"},
		{"emails removed", "mail me@example.com today", "mail today"},
		{"digits removed", "version 42 released in 2024", "version released in"},
		{"diacritics folded", "Café Naïve résumé", "cafe naive resume"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preprocess(tt.in))
		})
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The quick brown foxes are running, and the dogs jumped! Visit http://x.io")
	assert.Equal(t, []string{"quick", "brown", "foxes", "runn", "dogs", "jump", "visit"}, got)

	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("a an the of 123"))
}

func TestTokenizeSplitsOnPunctuation(t *testing.T) {
	assert.Equal(t, []string{"don", "stop"}, Tokenize("don't stop"))
	assert.Equal(t, []string{"crawl", "index"}, Tokenize("crawl/index"))
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"programming": "programm",
		"connected":   "connect",
		"happiness":   "happi",
		"quickly":     "quick",
		"running":     "runn",
		"faster":      "fast",
		"station":     "station",
		"management":  "manage",
		"readable":    "read",
		"cat":         "cat",
		"jumps":       "jumps",
	}
	for in, want := range tests {
		assert.Equal(t, want, Stem(in), in)
	}
}

func TestStemDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		assert.Equal(t, "connect", Stem("connected"))
	}
}

func TestExtractNgrams(t *testing.T) {
	tokens := []string{"web", "crawler", "engine", "design"}

	assert.Equal(t, []string{"web_crawler", "crawler_engine", "engine_design"}, ExtractNgrams(tokens, 2))
	assert.Equal(t, []string{"web_crawler_engine", "crawler_engine_design"}, ExtractNgrams(tokens, 3))
	assert.Equal(t, tokens, ExtractNgrams(tokens, 1))
	assert.Empty(t, ExtractNgrams(tokens, 5))
	assert.Empty(t, ExtractNgrams(tokens, 0))
}

func TestTermFrequency(t *testing.T) {
	freq := TermFrequency([]string{"go", "crawl", "go", "index", "go"})
	assert.Equal(t, map[string]int{"go": 3, "crawl": 1, "index": 1}, freq)
	assert.Empty(t, TermFrequency(nil))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.True(t, IsStopWord("Which"))
	assert.False(t, IsStopWord("crawler"))
}
