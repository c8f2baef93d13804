package crawler

import "time"

// State is the lifecycle phase of a Crawler.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
)

// Status is a point-in-time view of the engine for the status endpoint.
type Status struct {
	State            State     `json:"state"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	ElapsedTime      string    `json:"elapsed_time"`
	PagesProcessed   int64     `json:"pages_processed"`
	PagesAdmitted    int64     `json:"pages_admitted"`
	MaxPages         int       `json:"max_pages"`
	Errors           int64     `json:"errors"`
	FrontierSize     int       `json:"frontier_size"`
	InFlight         int       `json:"in_flight"`
	Visited          int       `json:"visited"`
	IndexedDocuments int       `json:"indexed_documents"`
	UniqueTerms      int       `json:"unique_terms"`
	TargetKeywords   []string  `json:"target_keywords"`
	PagesPerMinute   float64   `json:"pages_per_minute"`
	BytesDownloaded  string    `json:"bytes_downloaded"`
}

// snapshotEntry is the per-URL detail kept in a snapshot's aux state.
type snapshotEntry struct {
	Depth    int     `json:"depth"`
	Priority float64 `json:"priority"`
}

// auxState is the JSON blob saved alongside each frontier snapshot.
type auxState struct {
	Entries  map[string]snapshotEntry `json:"entries"`
	Admitted int64                    `json:"admitted"`
	Keywords []string                 `json:"keywords,omitempty"`
}
