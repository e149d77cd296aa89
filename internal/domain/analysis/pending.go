package analysis

import "time"

// Status is the lifecycle state of a tracked analysis.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Pending is the runtime's bookkeeping record for one triggered analysis.
// Entries are owned by the event-loop runtime and garbage-collected after a
// fixed retention window by the periodic tick.
type Pending struct {
	ID        string    `json:"id"`
	Repo      string    `json:"repo"`
	PRNumber  int       `json:"pr_number"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
