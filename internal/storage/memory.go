package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/xaenox/modmail/internal/models"
)

// MemoryStorage keeps everything in process memory. Used for tests and for
// running without a database.
type MemoryStorage struct {
	mu             sync.RWMutex
	threads        map[string]*models.Thread              // guildID:threadID
	conversations  map[string]*models.ConversationPointer // guildID:userID
	users          map[string]*models.UserRecord
	policies       map[string]*models.GuildPolicy
	globalBlocks   map[string]bool
	snippets       map[string]*models.Snippet // guildID:name
	threadsCreated int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		threads:       make(map[string]*models.Thread),
		conversations: make(map[string]*models.ConversationPointer),
		users:         make(map[string]*models.UserRecord),
		policies:      make(map[string]*models.GuildPolicy),
		globalBlocks:  make(map[string]bool),
		snippets:      make(map[string]*models.Snippet),
	}
}

func scopedKey(guildID, id string) string {
	return fmt.Sprintf("%s:%s", guildID, id)
}

func (s *MemoryStorage) GetThread(ctx context.Context, guildID, threadID string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, exists := s.threads[scopedKey(guildID, threadID)]; exists {
		return t.Clone(), nil
	}
	return nil, nil
}

func (s *MemoryStorage) PutThread(ctx context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[scopedKey(thread.GuildID, thread.ID)] = thread.Clone()
	return nil
}

func (s *MemoryStorage) UpdateThread(ctx context.Context, guildID, threadID string, fn func(*models.Thread) error) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.threads[scopedKey(guildID, threadID)]
	if !exists {
		return nil, fmt.Errorf("thread %s not found in guild %s", threadID, guildID)
	}

	updated := t.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	s.threads[scopedKey(guildID, threadID)] = updated
	return updated.Clone(), nil
}

func (s *MemoryStorage) ListThreads(ctx context.Context, guildID string, status models.ThreadStatus) ([]*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Thread
	for _, t := range s.threads {
		if t.GuildID != guildID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *MemoryStorage) GetConversation(ctx context.Context, guildID, userID string) (*models.ConversationPointer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ptr, exists := s.conversations[scopedKey(guildID, userID)]; exists {
		cp := *ptr
		cp.ThreadHistory = append([]string(nil), ptr.ThreadHistory...)
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStorage) PutConversation(ctx context.Context, ptr *models.ConversationPointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ptr
	cp.ThreadHistory = append([]string(nil), ptr.ThreadHistory...)
	s.conversations[scopedKey(ptr.GuildID, ptr.UserID)] = &cp
	return nil
}

func (s *MemoryStorage) GetUserRecord(ctx context.Context, userID string) (*models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, exists := s.users[userID]; exists {
		r := *rec
		r.Notes = append([]string(nil), rec.Notes...)
		return &r, nil
	}
	return &models.UserRecord{UserID: userID}, nil
}

func (s *MemoryStorage) UpdateUserRecord(ctx context.Context, userID string, fn func(*models.UserRecord) error) (*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.users[userID]
	if !exists {
		rec = &models.UserRecord{UserID: userID}
	}
	updated := *rec
	updated.Notes = append([]string(nil), rec.Notes...)
	if err := fn(&updated); err != nil {
		return nil, err
	}
	s.users[userID] = &updated

	out := updated
	out.Notes = append([]string(nil), updated.Notes...)
	return &out, nil
}

func (s *MemoryStorage) GetGuildPolicy(ctx context.Context, guildID string) (*models.GuildPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, exists := s.policies[guildID]; exists {
		cp := *p
		cp.StaffRoles = append([]string(nil), p.StaffRoles...)
		cp.BlockedUsers = append([]string(nil), p.BlockedUsers...)
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStorage) PutGuildPolicy(ctx context.Context, policy *models.GuildPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *policy
	cp.StaffRoles = append([]string(nil), policy.StaffRoles...)
	cp.BlockedUsers = append([]string(nil), policy.BlockedUsers...)
	s.policies[policy.GuildID] = &cp
	return nil
}

func (s *MemoryStorage) ListEnabledGuilds(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, p := range s.policies {
		if p.Enabled {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStorage) GloballyBlocked(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.globalBlocks[userID], nil
}

func (s *MemoryStorage) SetGlobalBlock(ctx context.Context, userID string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if blocked {
		s.globalBlocks[userID] = true
	} else {
		delete(s.globalBlocks, userID)
	}
	return nil
}

func (s *MemoryStorage) GetSnippet(ctx context.Context, guildID, name string) (*models.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sn, exists := s.snippets[scopedKey(guildID, name)]; exists {
		cp := *sn
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStorage) PutSnippet(ctx context.Context, snippet *models.Snippet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *snippet
	s.snippets[scopedKey(snippet.GuildID, snippet.Name)] = &cp
	return nil
}

func (s *MemoryStorage) DeleteSnippet(ctx context.Context, guildID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snippets, scopedKey(guildID, name))
	return nil
}

func (s *MemoryStorage) ListSnippets(ctx context.Context, guildID string) ([]*models.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Snippet
	for _, sn := range s.snippets {
		if sn.GuildID != guildID {
			continue
		}
		cp := *sn
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStorage) IncrementSnippetUsage(ctx context.Context, guildID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sn, exists := s.snippets[scopedKey(guildID, name)]; exists {
		sn.UsageCount++
		return nil
	}
	return fmt.Errorf("snippet %s not found in guild %s", name, guildID)
}

func (s *MemoryStorage) IncrementThreadsCreated(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threadsCreated++
	return s.threadsCreated, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
