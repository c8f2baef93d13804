// Package robots parses robots.txt files and caches the resulting policies
// per host.
package robots

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Rule is a single Allow or Disallow directive.
type Rule struct {
	Pattern string `json:"pattern"`
	Allow   bool   `json:"allow"`
}

// Policy is the parsed view of one robots.txt for one user agent. A Policy is
// never modified after Parse returns it.
type Policy struct {
	rules      []Rule
	crawlDelay time.Duration
	sitemaps   []string
}

var allowAll = &Policy{}

// AllowAll returns a policy with no rules and no crawl delay.
func AllowAll() *Policy {
	return allowAll
}

// group is one block of consecutive User-agent lines and the directives that
// follow them.
type group struct {
	agents     []string
	rules      []Rule
	crawlDelay time.Duration
	hasDelay   bool
}

// Parse builds the policy that applies to userAgent.
//
// The most specific group wins: a group naming the agent's product token
// beats a group whose name is contained in the user agent string, which beats
// "*". Groups of equal specificity are merged.
func Parse(content, userAgent string) *Policy {
	var (
		groups   []*group
		current  *group
		sitemaps []string
		inAgents bool
	)

	for _, line := range strings.Split(content, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if !inAgents || current == nil {
				current = &group{}
				groups = append(groups, current)
			}
			current.agents = append(current.agents, strings.ToLower(value))
			inAgents = true
			continue
		case "sitemap":
			if value != "" {
				sitemaps = append(sitemaps, value)
			}
		case "allow", "disallow":
			if current != nil && value != "" {
				current.rules = append(current.rules, Rule{Pattern: value, Allow: key == "allow"})
			}
		case "crawl-delay":
			if current != nil && !current.hasDelay {
				if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
					current.crawlDelay = time.Duration(secs * float64(time.Second))
					current.hasDelay = true
				}
			}
		}
		inAgents = false
	}

	policy := &Policy{sitemaps: sitemaps}
	best := 0
	var chosen []*group
	for _, g := range groups {
		score := g.specificity(userAgent)
		switch {
		case score == 0 || score < best:
		case score > best:
			best = score
			chosen = []*group{g}
		default:
			chosen = append(chosen, g)
		}
	}

	delaySet := false
	for _, g := range chosen {
		policy.rules = append(policy.rules, g.rules...)
		if g.hasDelay && !delaySet {
			policy.crawlDelay = g.crawlDelay
			delaySet = true
		}
	}
	return policy
}

func (g *group) specificity(userAgent string) int {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	token := ua
	if i := strings.IndexAny(token, "/ "); i >= 0 {
		token = token[:i]
	}

	best := 0
	for _, agent := range g.agents {
		score := 0
		switch {
		case agent == "*":
			score = 1
		case agent == "":
		case agent == token:
			score = 3
		case strings.Contains(ua, agent):
			score = 2
		}
		if score > best {
			best = score
		}
	}
	return best
}

// IsAllowed reports whether path may be fetched. The longest matching pattern
// decides; on equal length Allow wins. A path matching nothing is allowed.
func (p *Policy) IsAllowed(path string) bool {
	if path == "" {
		path = "/"
	}
	if path == "/robots.txt" {
		return true
	}

	bestLen := -1
	allowed := true
	for _, r := range p.rules {
		if !matchPattern(r.Pattern, path) {
			continue
		}
		n := len(r.Pattern)
		if n > bestLen || (n == bestLen && r.Allow) {
			bestLen = n
			allowed = r.Allow
		}
	}
	return allowed
}

// CrawlDelay returns the Crawl-delay directive of the chosen group, or zero.
func (p *Policy) CrawlDelay() time.Duration {
	return p.crawlDelay
}

// Sitemaps returns the Sitemap URLs declared anywhere in the file.
func (p *Policy) Sitemaps() []string {
	return append([]string(nil), p.sitemaps...)
}

// Rules returns the rules of the chosen group in file order.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// matchPattern matches a robots path pattern where '*' matches any run of
// characters and a trailing '$' anchors the end of the path. Unanchored
// patterns match as prefixes.
func matchPattern(pattern, path string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = pattern[:len(pattern)-1]
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	pos := len(parts[0])
	if len(parts) == 1 {
		return !anchored || pos == len(path)
	}

	for i := 1; i < len(parts); i++ {
		part := parts[i]
		if anchored && i == len(parts)-1 {
			return strings.HasSuffix(path[pos:], part)
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}
	return true
}

type policyJSON struct {
	Rules        []Rule   `json:"rules"`
	CrawlDelayMs int64    `json:"crawl_delay_ms"`
	Sitemaps     []string `json:"sitemaps,omitempty"`
}

// MarshalJSON encodes the policy for the persistent robots cache.
func (p *Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(policyJSON{
		Rules:        p.rules,
		CrawlDelayMs: p.crawlDelay.Milliseconds(),
		Sitemaps:     p.sitemaps,
	})
}

// UnmarshalJSON decodes a policy written by MarshalJSON.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var raw policyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.rules = raw.Rules
	p.crawlDelay = time.Duration(raw.CrawlDelayMs) * time.Millisecond
	p.sitemaps = raw.Sitemaps
	return nil
}
