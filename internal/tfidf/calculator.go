// Package tfidf maintains corpus statistics and computes TF-IDF vectors.
package tfidf

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// TermScore pairs a term with its TF-IDF weight.
type TermScore struct {
	Term  string
	Score float64
}

// TermCount is a raw occurrence count for one term of one document.
type TermCount struct {
	Term  string
	Count int
}

type document struct {
	counts map[string]int
	order  []string
	length int
}

func newDocument(terms []string) *document {
	d := &document{counts: make(map[string]int), length: len(terms)}
	for _, t := range terms {
		if d.counts[t] == 0 {
			d.order = append(d.order, t)
		}
		d.counts[t]++
	}
	return d
}

// Calculator holds document frequencies for the corpus seen by one crawl.
// Counters are atomic so IDF lookups never take a lock; registering or
// removing a document is serialized so its counter updates apply as a unit.
type Calculator struct {
	docCount atomic.Int64
	df       sync.Map // term -> *atomic.Int64

	mu   sync.RWMutex
	docs map[string]*document
}

// NewCalculator returns an empty calculator.
func NewCalculator() *Calculator {
	return &Calculator{docs: make(map[string]*document)}
}

func (c *Calculator) counter(term string) *atomic.Int64 {
	if v, ok := c.df.Load(term); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.df.LoadOrStore(term, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// AddDocument registers the term list of document id. Each distinct term
// bumps its document frequency once. Registering an id again replaces the
// earlier document.
func (c *Calculator) AddDocument(id string, terms []string) {
	c.put(id, newDocument(terms))
}

// AddTermCounts registers a document from precomputed counts, in the order
// the terms first appeared.
func (c *Calculator) AddTermCounts(id string, counts []TermCount) {
	d := &document{counts: make(map[string]int, len(counts))}
	for _, tc := range counts {
		if tc.Count <= 0 {
			continue
		}
		if d.counts[tc.Term] == 0 {
			d.order = append(d.order, tc.Term)
		}
		d.counts[tc.Term] += tc.Count
		d.length += tc.Count
	}
	c.put(id, d)
}

func (c *Calculator) put(id string, d *document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.docs[id]; ok {
		for _, t := range old.order {
			c.counter(t).Add(-1)
		}
	} else {
		c.docCount.Add(1)
	}
	c.docs[id] = d
	for _, t := range d.order {
		c.counter(t).Add(1)
	}
}

// RemoveDocument undoes AddDocument for id. It reports whether id was known.
func (c *Calculator) RemoveDocument(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.docs[id]
	if !ok {
		return false
	}
	for _, t := range d.order {
		c.counter(t).Add(-1)
	}
	delete(c.docs, id)
	c.docCount.Add(-1)
	return true
}

// DocumentCount returns the number of registered documents.
func (c *Calculator) DocumentCount() int {
	return int(c.docCount.Load())
}

// DocumentFrequency returns how many documents contain term.
func (c *Calculator) DocumentFrequency(term string) int {
	if v, ok := c.df.Load(term); ok {
		return int(v.(*atomic.Int64).Load())
	}
	return 0
}

// UniqueTermCount returns the number of terms present in at least one
// document.
func (c *Calculator) UniqueTermCount() int {
	n := 0
	c.df.Range(func(_, v any) bool {
		if v.(*atomic.Int64).Load() > 0 {
			n++
		}
		return true
	})
	return n
}

// HasDocument reports whether id is registered.
func (c *Calculator) HasDocument(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.docs[id]
	return ok
}

// CalculateTF maps each term to its count divided by len(terms).
func CalculateTF(terms []string) map[string]float64 {
	tf := make(map[string]float64)
	if len(terms) == 0 {
		return tf
	}
	n := float64(len(terms))
	for _, t := range terms {
		tf[t] += 1 / n
	}
	return tf
}

// IDF returns ln(N/df) for term, or 0 for unseen terms.
func (c *Calculator) IDF(term string) float64 {
	df := c.DocumentFrequency(term)
	n := c.DocumentCount()
	if df <= 0 || n <= 0 {
		return 0
	}
	return math.Log(float64(n) / float64(df))
}

// TFIDF returns the weight of term within document id.
func (c *Calculator) TFIDF(id, term string) float64 {
	c.mu.RLock()
	d, ok := c.docs[id]
	c.mu.RUnlock()
	if !ok || d.length == 0 {
		return 0
	}
	count := d.counts[term]
	if count == 0 {
		return 0
	}
	return float64(count) / float64(d.length) * c.IDF(term)
}

func (c *Calculator) scores(id string) []TermScore {
	c.mu.RLock()
	d, ok := c.docs[id]
	c.mu.RUnlock()
	if !ok || d.length == 0 {
		return nil
	}
	out := make([]TermScore, 0, len(d.order))
	for _, t := range d.order {
		tf := float64(d.counts[t]) / float64(d.length)
		out = append(out, TermScore{Term: t, Score: tf * c.IDF(t)})
	}
	return out
}

// Vector returns the non-zero TF-IDF weights of document id.
func (c *Calculator) Vector(id string) map[string]float64 {
	vec := make(map[string]float64)
	for _, ts := range c.scores(id) {
		if ts.Score > 0 {
			vec[ts.Term] = ts.Score
		}
	}
	return vec
}

// TopTerms returns the k highest-weighted terms of document id. Equal
// weights keep the order in which the terms first appeared.
func (c *Calculator) TopTerms(id string, k int) []TermScore {
	if k <= 0 {
		return nil
	}
	all := c.scores(id)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// CosineSimilarity compares the TF-IDF vectors of two documents. The result
// is in [0,1] and is 0 when either vector is empty or they share no terms.
func (c *Calculator) CosineSimilarity(a, b string) float64 {
	va, vb := c.Vector(a), c.Vector(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}

	var dot, na, nb float64
	for t, wa := range va {
		na += wa * wa
		if wb, ok := vb[t]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range vb {
		nb += wb * wb
	}
	if dot == 0 || na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}
