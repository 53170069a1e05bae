package history

import "time"

// Status is the outcome of a backup attempt.
type Status string

const (
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Entry is one recorded backup attempt.
type Entry struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Target        string    `json:"target"`
	VolumeID      string    `json:"volume_id"`
	DiscID        string    `json:"disc_id,omitempty"`
	OutputPath    string    `json:"output_path,omitempty"`
	Sectors       int       `json:"sectors"`
	Scrambled     bool      `json:"scrambled"`
	Titles        int       `json:"titles"`
	Status        Status    `json:"status"`
	ErrorCategory string    `json:"error_category,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Duration is the time the attempt took.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() || e.StartedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// RecentTarget is a previously opened device and the directory its last
// backup went to.
type RecentTarget struct {
	Target    string    `json:"target"`
	OutputDir string    `json:"output_dir,omitempty"`
	LastUsed  time.Time `json:"last_used"`
}
