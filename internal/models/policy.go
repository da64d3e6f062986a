package models

import "time"

// GuildPolicy is the per-guild configuration consumed read-only by the
// routing core. Staff roles and channel ids are opaque here; only the
// transport layer interprets them.
type GuildPolicy struct {
	GuildID        string             `json:"guild_id"`
	Name           string             `json:"name"`
	Enabled        bool               `json:"enabled"`
	CategoryID     string             `json:"category_id,omitempty"`
	LogChannelID   string             `json:"log_channel_id,omitempty"`
	StaffRoles     []string           `json:"staff_roles"`
	BlockedUsers   []string           `json:"blocked_users"`
	AnonymousStaff bool               `json:"anonymous_staff"`
	ShowUserInfo   bool               `json:"show_user_info"`
	AutoResponse   AutoResponsePolicy `json:"auto_response"`
	Threads        ThreadPolicy       `json:"thread_settings"`
	Requirements   Requirements       `json:"user_requirements"`
	RateLimit      RateLimitPolicy    `json:"rate_limiting"`
	Priorities     []string           `json:"thread_priorities"`
	Categories     []string           `json:"categories"`
}

// AutoResponsePolicy controls the first-contact acknowledgement.
type AutoResponsePolicy struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// ThreadPolicy controls closing behavior.
type ThreadPolicy struct {
	AutoCloseAfter     time.Duration `json:"auto_close_after"`
	RequireCloseReason bool          `json:"require_close_reason"`
	NotifyOnClose      bool          `json:"notify_user_on_close"`
	DeleteOnClose      bool          `json:"delete_on_close"`
}

// Requirements gates who may open a thread.
type Requirements struct {
	MinAccountAge time.Duration `json:"min_account_age"`
	MinServerAge  time.Duration `json:"min_server_age"`
	RequireMember bool          `json:"require_server_member"`
}

// RateLimitPolicy carries the sliding-window admission parameters.
type RateLimitPolicy struct {
	Enabled         bool          `json:"enabled"`
	MaxMessages     int           `json:"max_messages"`
	Window          time.Duration `json:"time_window"`
	CooldownMessage string        `json:"cooldown_message"`
}

// DefaultGuildPolicy returns the policy a guild starts with when modmail is
// first enabled for it.
func DefaultGuildPolicy(guildID string) *GuildPolicy {
	return &GuildPolicy{
		GuildID:      guildID,
		Enabled:      false,
		StaffRoles:   []string{},
		BlockedUsers: []string{},
		ShowUserInfo: true,
		AutoResponse: AutoResponsePolicy{
			Enabled: true,
			Message: "Thank you for contacting us! A staff member will be with you shortly.",
		},
		Threads: ThreadPolicy{
			AutoCloseAfter:     2 * time.Hour,
			RequireCloseReason: true,
			NotifyOnClose:      true,
			DeleteOnClose:      false,
		},
		Requirements: Requirements{
			MinAccountAge: 24 * time.Hour,
			MinServerAge:  0,
			RequireMember: false,
		},
		RateLimit: RateLimitPolicy{
			Enabled:         true,
			MaxMessages:     5,
			Window:          5 * time.Minute,
			CooldownMessage: "You're sending messages too quickly. Please wait before sending another message.",
		},
		Priorities: []string{"low", "normal", "high", "urgent"},
		Categories: []string{"general", "technical", "billing", "moderation", "other"},
	}
}
