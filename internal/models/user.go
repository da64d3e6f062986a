package models

import "time"

// UserRecord holds cross-guild modmail state for one user. Records are
// created lazily on first reference and never hard-deleted.
type UserRecord struct {
	UserID       string     `json:"user_id"`
	Blocked      bool       `json:"blocked"`
	BlockReason  string     `json:"block_reason,omitempty"`
	BlockedAt    *time.Time `json:"blocked_at,omitempty"`
	BlockedBy    string     `json:"blocked_by,omitempty"`
	TotalThreads int        `json:"total_threads"`
	LastThreadAt *time.Time `json:"last_thread_at,omitempty"`
	Notes        []string   `json:"notes,omitempty"`
}

// UserProfile is externally-supplied account/membership data used by
// eligibility checks and the user-info header. The core never fetches it
// itself.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	IsMember  bool      `json:"is_member"`
	JoinedAt  time.Time `json:"joined_at,omitempty"`
}

// UserSummary is the first-contact header shown to staff on a fresh thread.
type UserSummary struct {
	Profile      UserProfile `json:"profile"`
	TotalThreads int         `json:"total_threads"`
	LastThreadAt *time.Time  `json:"last_thread_at,omitempty"`
}
