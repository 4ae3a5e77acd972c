package store

// Status is the lifecycle state of a scan session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a status ends the session lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is one persisted orchestration run. CompletedAt is zero until the
// session reaches a terminal status; ErrorMessage is set only when failed.
type Session struct {
	ID           string   `json:"id"`
	Target       string   `json:"target"`
	TargetKind   string   `json:"target_kind"`
	Platforms    string   `json:"platforms"`
	Categories   []string `json:"categories"`
	Status       Status   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	CreatedAt    int64    `json:"created_at"`
	CompletedAt  int64    `json:"completed_at,omitempty"`
}

// Result is one classified finding, append-only during a run. The
// false-positive flag and notes are only touched by human review afterwards.
type Result struct {
	ID              int64  `json:"id"`
	SessionID       string `json:"session_id"`
	Dork            string `json:"dork"`
	Platform        string `json:"platform"`
	Category        string `json:"category"`
	ResultURL       string `json:"result_url"`
	Snippet         string `json:"snippet,omitempty"`
	Severity        string `json:"severity"`
	IsFalsePositive bool   `json:"is_false_positive"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       int64  `json:"created_at"`
}

// SeverityCounts summarizes a session's results for listings.
type SeverityCounts struct {
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	FalsePositive int `json:"false_positive"`
}
