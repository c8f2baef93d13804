// Package relevance combines content, title, length and link-popularity
// signals into a single [0,1] score used to rank pages and order the
// frontier.
package relevance

import (
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/masahif/rankcrawler/internal/textproc"
	"github.com/masahif/rankcrawler/internal/tfidf"
)

// Weights are the coefficients of the four page signals. They should sum
// to 1.
type Weights struct {
	Content float64
	Title   float64
	Length  float64
	Links   float64
}

// DefaultWeights favour content relevance over the structural signals.
var DefaultWeights = Weights{Content: 0.40, Title: 0.25, Length: 0.15, Links: 0.20}

const (
	// DefaultOptimalLength is the content length, in characters, that scores
	// highest on the length signal.
	DefaultOptimalLength = 3000

	rarityTopTerms = 5

	linkParentWeight     = 0.5
	linkAnchorWeight     = 0.3
	linkPopularityWeight = 0.2
)

type keyword struct {
	raw   string
	stems []string
}

type keywordSet struct {
	keywords []keyword
}

// Scorer is safe for concurrent use. Target keywords are swapped as a whole
// and incoming-link counters are atomic.
type Scorer struct {
	calc          *tfidf.Calculator
	weights       Weights
	optimalLength int
	logger        *slog.Logger

	keywords atomic.Pointer[keywordSet]

	incoming    sync.Map // url -> *atomic.Int64
	tracked     atomic.Int64
	maxIncoming atomic.Int64
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithWeights overrides DefaultWeights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

// WithOptimalLength sets the content length that maximizes the length signal.
func WithOptimalLength(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.optimalLength = n
		}
	}
}

// WithLogger sets the logger for per-page score breakdowns.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scorer) { s.logger = l }
}

// NewScorer creates a scorer reading corpus statistics from calc.
func NewScorer(calc *tfidf.Calculator, opts ...Option) *Scorer {
	s := &Scorer{
		calc:          calc,
		weights:       DefaultWeights,
		optimalLength: DefaultOptimalLength,
		logger:        slog.Default(),
	}
	s.keywords.Store(&keywordSet{})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTargetKeywords replaces the keyword set. Keywords are matched against
// titles verbatim (case-insensitive) and against index terms after the same
// stemming the indexer applies.
func (s *Scorer) SetTargetKeywords(keywords []string) {
	set := &keywordSet{}
	seen := make(map[string]struct{})
	for _, kw := range keywords {
		raw := strings.ToLower(strings.TrimSpace(kw))
		if raw == "" {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		set.keywords = append(set.keywords, keyword{raw: raw, stems: textproc.Tokenize(raw)})
	}
	s.keywords.Store(set)
}

// TargetKeywords returns the current keywords, lower-cased.
func (s *Scorer) TargetKeywords() []string {
	set := s.keywords.Load()
	out := make([]string, 0, len(set.keywords))
	for _, k := range set.keywords {
		out = append(out, k.raw)
	}
	return out
}

// RecordIncomingLink counts one more link pointing at url.
func (s *Scorer) RecordIncomingLink(url string) {
	v, loaded := s.incoming.Load(url)
	if !loaded {
		v, loaded = s.incoming.LoadOrStore(url, new(atomic.Int64))
		if !loaded {
			s.tracked.Add(1)
		}
	}
	n := v.(*atomic.Int64).Add(1)

	for {
		cur := s.maxIncoming.Load()
		if n <= cur || s.maxIncoming.CompareAndSwap(cur, n) {
			return
		}
	}
}

// IncomingLinks returns the number of links recorded for url.
func (s *Scorer) IncomingLinks(url string) int {
	if v, ok := s.incoming.Load(url); ok {
		return int(v.(*atomic.Int64).Load())
	}
	return 0
}

// TrackedURLs returns how many distinct URLs have incoming links.
func (s *Scorer) TrackedURLs() int {
	return int(s.tracked.Load())
}

// Score rates a fetched page. docID must be the id its terms were
// registered under in the calculator. Empty content scores 0.
func (s *Scorer) Score(docID, title, content string, terms []string) float64 {
	if strings.TrimSpace(content) == "" {
		return 0
	}
	set := s.keywords.Load()

	contentScore := s.contentSignal(docID, set)
	titleScore := titleSignal(title, set)
	lengthScore := s.lengthSignal(len(content))
	linkScore := s.popularity(docID)

	total := s.weights.Content*contentScore +
		s.weights.Title*titleScore +
		s.weights.Length*lengthScore +
		s.weights.Links*linkScore
	total = clamp(total)

	s.logger.Debug("scored page",
		"url", docID,
		"score", total,
		"content", contentScore,
		"title", titleScore,
		"length", lengthScore,
		"links", linkScore,
		"terms", len(terms))
	return total
}

// ScoreLink estimates the priority of an unfetched link from the score of
// the page it was found on, its anchor text and its popularity so far.
func (s *Scorer) ScoreLink(targetURL, anchorText string, parentScore float64) float64 {
	set := s.keywords.Load()
	anchor := strings.ToLower(anchorText)

	var anchorScore float64
	if len(set.keywords) == 0 {
		if len(textproc.Tokenize(anchor)) > 0 {
			anchorScore = 0.5
		}
	} else {
		matches := 0
		for _, k := range set.keywords {
			if strings.Contains(anchor, k.raw) {
				matches++
			}
		}
		anchorScore = float64(matches) / float64(len(set.keywords))
	}

	return clamp(linkParentWeight*clamp(parentScore) +
		linkAnchorWeight*anchorScore +
		linkPopularityWeight*s.popularity(targetURL))
}

func (s *Scorer) contentSignal(docID string, set *keywordSet) float64 {
	if len(set.keywords) == 0 {
		return s.rarity(docID)
	}

	var total float64
	for _, k := range set.keywords {
		if len(k.stems) == 0 {
			continue
		}
		var sum float64
		for _, stem := range k.stems {
			sum += s.calc.TFIDF(docID, stem)
		}
		total += sum / float64(len(k.stems))
	}
	return clamp(total / float64(len(set.keywords)))
}

// rarity is the mean IDF of the document's top terms relative to the
// largest IDF the corpus can produce.
func (s *Scorer) rarity(docID string) float64 {
	n := s.calc.DocumentCount()
	if n <= 1 {
		return 0
	}
	top := s.calc.TopTerms(docID, rarityTopTerms)
	if len(top) == 0 {
		return 0
	}
	var sum float64
	for _, ts := range top {
		sum += s.calc.IDF(ts.Term)
	}
	return clamp(sum / float64(len(top)) / math.Log(float64(n)))
}

func titleSignal(title string, set *keywordSet) float64 {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0
	}

	if len(set.keywords) == 0 {
		n := len([]rune(title))
		switch {
		case n >= 30 && n <= 70:
			return 1
		case n >= 10 && n <= 100:
			return 0.7
		default:
			return 0.3
		}
	}

	lower := strings.ToLower(title)
	matches := 0
	for _, k := range set.keywords {
		if strings.Contains(lower, k.raw) {
			matches++
		}
	}
	return float64(matches) / float64(len(set.keywords))
}

// lengthSignal is a log-normal bump centred on the optimal length.
func (s *Scorer) lengthSignal(n int) float64 {
	if n <= 0 {
		return 0
	}
	x := math.Log(float64(n) / float64(s.optimalLength))
	return math.Exp(-x * x / 2)
}

func (s *Scorer) popularity(url string) float64 {
	peak := s.maxIncoming.Load()
	if peak <= 0 {
		return 0
	}
	c := s.IncomingLinks(url)
	if c <= 0 {
		return 0
	}
	return clamp(math.Log1p(float64(c)) / math.Log1p(float64(peak)))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
