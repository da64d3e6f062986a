package storage

import (
	"context"

	"github.com/xaenox/modmail/internal/models"
)

// Storage is the durable source of truth for threads, conversation pointers,
// user records, guild policies, snippets and global counters.
//
// Lookup methods return (nil, nil) when the entity does not exist. Update
// methods are atomic per record: the mutation fn runs under whatever locking
// the backend needs so that concurrent writers of the same record never lose
// an update. No cross-record transactions are offered or required.
type Storage interface {
	// Threads
	GetThread(ctx context.Context, guildID, threadID string) (*models.Thread, error)
	PutThread(ctx context.Context, thread *models.Thread) error
	UpdateThread(ctx context.Context, guildID, threadID string, fn func(*models.Thread) error) (*models.Thread, error)
	ListThreads(ctx context.Context, guildID string, status models.ThreadStatus) ([]*models.Thread, error)

	// Conversation pointers
	GetConversation(ctx context.Context, guildID, userID string) (*models.ConversationPointer, error)
	PutConversation(ctx context.Context, ptr *models.ConversationPointer) error

	// User records, created lazily on first reference
	GetUserRecord(ctx context.Context, userID string) (*models.UserRecord, error)
	UpdateUserRecord(ctx context.Context, userID string, fn func(*models.UserRecord) error) (*models.UserRecord, error)

	// Guild policies
	GetGuildPolicy(ctx context.Context, guildID string) (*models.GuildPolicy, error)
	PutGuildPolicy(ctx context.Context, policy *models.GuildPolicy) error
	ListEnabledGuilds(ctx context.Context) ([]string, error)

	// Global block map
	GloballyBlocked(ctx context.Context, userID string) (bool, error)
	SetGlobalBlock(ctx context.Context, userID string, blocked bool) error

	// Snippets
	GetSnippet(ctx context.Context, guildID, name string) (*models.Snippet, error)
	PutSnippet(ctx context.Context, snippet *models.Snippet) error
	DeleteSnippet(ctx context.Context, guildID, name string) error
	ListSnippets(ctx context.Context, guildID string) ([]*models.Snippet, error)
	IncrementSnippetUsage(ctx context.Context, guildID, name string) error

	// Global counters
	IncrementThreadsCreated(ctx context.Context) (int64, error)

	Close() error
}
