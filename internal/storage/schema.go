package storage

const schemaSQL = `
-- One row per canonical URL; re-fetching overwrites the row
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    domain TEXT NOT NULL,
    status_code INTEGER NOT NULL DEFAULT 0,
    title TEXT,
    content_hash TEXT,
    content_length INTEGER NOT NULL DEFAULT 0,
    term_count INTEGER NOT NULL DEFAULT 0,
    relevance_score REAL NOT NULL DEFAULT 0,
    fetched_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_domain ON pages(domain, fetched_at);
CREATE INDEX IF NOT EXISTS idx_pages_relevance ON pages(relevance_score DESC);

-- Document frequency per term across stored pages
CREATE TABLE IF NOT EXISTS index_terms (
    term TEXT PRIMARY KEY,
    document_frequency INTEGER NOT NULL DEFAULT 0 CHECK (document_frequency >= 0)
);

-- Inverted index postings; zero frequencies are rejected
CREATE TABLE IF NOT EXISTS page_terms (
    page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
    term TEXT NOT NULL,
    term_frequency INTEGER NOT NULL CHECK (term_frequency >= 1),
    PRIMARY KEY (page_id, term)
);

CREATE INDEX IF NOT EXISTS idx_page_terms_term ON page_terms(term);

-- Append-only frontier snapshots; the newest row is the resume point
CREATE TABLE IF NOT EXISTS crawl_state (
    id TEXT PRIMARY KEY,
    frontier_snapshot TEXT NOT NULL,
    aux_state TEXT,
    saved_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_crawl_state_saved ON crawl_state(saved_at);

CREATE TABLE IF NOT EXISTS robots_cache (
    domain TEXT PRIMARY KEY,
    policy_blob TEXT NOT NULL,
    fetched_at DATETIME NOT NULL,
    ttl_ms INTEGER NOT NULL
);

-- Pages ranked for reporting
CREATE VIEW IF NOT EXISTS ranked_pages AS
SELECT id, url, domain, status_code, title, relevance_score, term_count, fetched_at
FROM pages
WHERE status_code BETWEEN 200 AND 299
ORDER BY relevance_score DESC;
`
