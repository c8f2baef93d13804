package config

import "errors"

var (
	// ErrNoSeedURLs is returned when no seed URLs are provided and there is nothing to resume
	ErrNoSeedURLs = errors.New("no seed URLs provided")
	// ErrInvalidThreads is returned when the worker count is not greater than 0
	ErrInvalidThreads = errors.New("crawler.threads must be greater than 0")
	// ErrInvalidMaxConnections is returned when the connection cap is not greater than 0
	ErrInvalidMaxConnections = errors.New("crawler.maxConnections must be greater than 0")
	// ErrInvalidMaxPages is returned when the page budget is negative
	ErrInvalidMaxPages = errors.New("crawler.maxPages cannot be negative")
	// ErrInvalidMaxDepth is returned when the depth limit is negative
	ErrInvalidMaxDepth = errors.New("crawler.maxDepth cannot be negative")
	// ErrInvalidDelay is returned when a delay is negative
	ErrInvalidDelay = errors.New("delays cannot be negative")
	// ErrInvalidTimeout is returned when request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("crawler.requestTimeoutMs must be greater than 0")
	// ErrInvalidRetries is returned when the retry count is negative
	ErrInvalidRetries = errors.New("crawler.maxRetries cannot be negative")
	// ErrEmptyUserAgent is returned when the user agent is blank
	ErrEmptyUserAgent = errors.New("crawler.userAgent cannot be empty")
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("db.path cannot be empty")
	// ErrInvalidPort is returned when the server port is out of range
	ErrInvalidPort = errors.New("server.port must be between 0 and 65535")
)
