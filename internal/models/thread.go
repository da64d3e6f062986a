package models

import "time"

// ThreadStatus is the lifecycle state of a modmail thread. Transitions only
// move forward: open -> closed -> archived.
type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "open"
	ThreadClosed   ThreadStatus = "closed"
	ThreadArchived ThreadStatus = "archived"
)

// Priority of a thread, set by staff after triage.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Thread is one tracked conversation between a user and the staff of a guild.
type Thread struct {
	ID               string       `json:"id"`
	GuildID          string       `json:"guild_id"`
	UserID           string       `json:"user_id"`
	ChannelID        string       `json:"channel_id"`
	CreatedAt        time.Time    `json:"created_at"`
	ClosedAt         *time.Time   `json:"closed_at,omitempty"`
	LastMessageAt    *time.Time   `json:"last_message_at,omitempty"`
	Status           ThreadStatus `json:"status"`
	Priority         Priority     `json:"priority"`
	Category         string       `json:"category"`
	Participants     []string     `json:"participants"`
	MessageCount     int          `json:"message_count"`
	CloseReason      string       `json:"close_reason,omitempty"`
	ClosedBy         string       `json:"closed_by,omitempty"`
	Escalated        bool         `json:"escalated"`
	EscalatedBy      string       `json:"escalated_by,omitempty"`
	EscalatedAt      *time.Time   `json:"escalated_at,omitempty"`
	EscalationReason string       `json:"escalation_reason,omitempty"`
	Tags             []string     `json:"tags,omitempty"`
	Notes            []string     `json:"notes,omitempty"`
}

// IdleSince is the reference time for inactivity checks. Threads that never
// recorded a message fall back to their creation time.
func (t *Thread) IdleSince() time.Time {
	if t.LastMessageAt != nil {
		return *t.LastMessageAt
	}
	return t.CreatedAt
}

// Clone returns a deep copy so callers can hand snapshots to observers
// without sharing mutable slices.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	c := *t
	c.Participants = append([]string(nil), t.Participants...)
	c.Tags = append([]string(nil), t.Tags...)
	c.Notes = append([]string(nil), t.Notes...)
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		c.ClosedAt = &v
	}
	if t.LastMessageAt != nil {
		v := *t.LastMessageAt
		c.LastMessageAt = &v
	}
	if t.EscalatedAt != nil {
		v := *t.EscalatedAt
		c.EscalatedAt = &v
	}
	return &c
}

// ConversationPointer tracks, per (guild, user), the single open thread and
// the append-only history of thread ids, most recent last.
type ConversationPointer struct {
	GuildID        string   `json:"guild_id"`
	UserID         string   `json:"user_id"`
	ActiveThreadID string   `json:"active_thread_id,omitempty"`
	ThreadHistory  []string `json:"thread_history"`
}

// Actor identifies who performed an operation: a staff member, a user, or
// the system itself (background reclamation).
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SystemActor is the sentinel closer used by background reclamation.
func SystemActor() Actor {
	return Actor{ID: "system", Name: "System"}
}

// InboundMessage is a user-authored message before routing.
type InboundMessage struct {
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Snippet is a named canned staff reply, per guild.
type Snippet struct {
	GuildID    string    `json:"guild_id"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UsageCount int       `json:"usage_count"`
}
