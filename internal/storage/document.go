package storage

import (
	"context"
	"time"

	"github.com/masahif/rankcrawler/internal/parser"
	"github.com/masahif/rankcrawler/internal/textproc"
	"github.com/masahif/rankcrawler/internal/urlnorm"
)

// Save stores a parsed document under url, indexing its body text unless
// the page asked not to be indexed. The relevance score is left at zero;
// callers that score pages use SavePage.
func (s *SQLiteStorage) Save(ctx context.Context, url string, doc *parser.Document, statusCode int) (int64, error) {
	p := &Page{
		URL:        url,
		Domain:     urlnorm.ExtractDomain(url),
		StatusCode: statusCode,
		FetchedAt:  time.Now(),
	}
	var terms []string
	if doc != nil {
		p.Title = doc.Title
		p.ContentHash = doc.ContentHash
		p.ContentLength = len(doc.BodyText)
		if !doc.NoIndex {
			terms = textproc.Tokenize(doc.Title + " " + doc.BodyText)
		}
	}
	p.TermCount = len(terms)
	return s.SavePage(ctx, p, PostingsFor(terms))
}

// PostingsFor counts terms in first-occurrence order.
func PostingsFor(terms []string) []Posting {
	freq := textproc.TermFrequency(terms)
	postings := make([]Posting, 0, len(freq))
	for _, t := range terms {
		if n, ok := freq[t]; ok {
			postings = append(postings, Posting{Term: t, Frequency: n})
			delete(freq, t)
		}
	}
	return postings
}
