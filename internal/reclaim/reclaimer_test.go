package reclaim

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/audit"
	"github.com/xaenox/modmail/internal/hooks"
	"github.com/xaenox/modmail/internal/models"
	"github.com/xaenox/modmail/internal/storage"
	"github.com/xaenox/modmail/internal/thread"
	"github.com/xaenox/modmail/internal/transport"
)

type fakeTransport struct{}

func (f *fakeTransport) ProvisionSurface(ctx context.Context, policy *models.GuildPolicy, user models.UserProfile) (string, error) {
	return "surface", nil
}

func (f *fakeTransport) SurfaceExists(ctx context.Context, guildID, surfaceRef string) bool {
	return true
}

func (f *fakeTransport) ForwardToSurface(ctx context.Context, surfaceRef string, msg models.InboundMessage, from models.UserProfile, header *models.UserSummary) error {
	return nil
}

func (f *fakeTransport) DeliverToUser(ctx context.Context, userID string, notice transport.Notice) error {
	return nil
}

func (f *fakeTransport) ArchiveSurface(ctx context.Context, guildID, surfaceRef string) error {
	return nil
}

func (f *fakeTransport) DeleteSurface(ctx context.Context, guildID, surfaceRef, reason string) error {
	return nil
}

func (f *fakeTransport) Profile(ctx context.Context, guildID, userID string) (models.UserProfile, error) {
	return models.UserProfile{UserID: userID}, nil
}

func newTestReclaimer(t *testing.T) (*Reclaimer, *storage.MemoryStorage) {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStorage()
	dispatcher := hooks.NewDispatcher(logger)
	threads := thread.NewManager(store, &fakeTransport{}, dispatcher, audit.NewLogSink(logger), logger)
	return NewReclaimer(store, threads, logger), store
}

func seedGuild(t *testing.T, store *storage.MemoryStorage, guildID string, autoClose time.Duration) {
	t.Helper()
	policy := models.DefaultGuildPolicy(guildID)
	policy.Enabled = true
	policy.Threads.AutoCloseAfter = autoClose
	if err := store.PutGuildPolicy(context.Background(), policy); err != nil {
		t.Fatal(err)
	}
}

func seedThread(t *testing.T, store *storage.MemoryStorage, guildID, id string, lastActivity time.Time) {
	t.Helper()
	if err := store.PutThread(context.Background(), &models.Thread{
		ID:            id,
		GuildID:       guildID,
		UserID:        "u-" + id,
		ChannelID:     "ch-" + id,
		CreatedAt:     lastActivity.Add(-time.Hour),
		LastMessageAt: &lastActivity,
		Status:        models.ThreadOpen,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSweep_ClosesIdleThreadsOnly(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReclaimer(t)
	seedGuild(t, store, "g1", time.Hour)

	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	seedThread(t, store, "g1", "idle", now.Add(-2*time.Hour))
	seedThread(t, store, "g1", "fresh", now.Add(-time.Minute))

	closed := r.Sweep(ctx)
	if closed != 1 {
		t.Fatalf("expected 1 thread closed, got %d", closed)
	}

	idle, _ := store.GetThread(ctx, "g1", "idle")
	if idle.Status != models.ThreadClosed {
		t.Errorf("idle thread should be closed, got %s", idle.Status)
	}
	if idle.CloseReason != AutoCloseReason {
		t.Errorf("expected close reason %q, got %q", AutoCloseReason, idle.CloseReason)
	}
	if idle.ClosedBy != "system" {
		t.Errorf("expected system closer, got %s", idle.ClosedBy)
	}

	fresh, _ := store.GetThread(ctx, "g1", "fresh")
	if fresh.Status != models.ThreadOpen {
		t.Errorf("fresh thread must stay open, got %s", fresh.Status)
	}
}

func TestSweep_ActivityResetsIdleClock(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReclaimer(t)
	seedGuild(t, store, "g1", time.Hour)

	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	// Created long ago but a message arrived recently.
	recent := now.Add(-time.Minute)
	if err := store.PutThread(ctx, &models.Thread{
		ID:            "busy",
		GuildID:       "g1",
		UserID:        "u1",
		ChannelID:     "ch",
		CreatedAt:     now.Add(-48 * time.Hour),
		LastMessageAt: &recent,
		Status:        models.ThreadOpen,
	}); err != nil {
		t.Fatal(err)
	}

	if closed := r.Sweep(ctx); closed != 0 {
		t.Errorf("recently-active thread must not be reclaimed, closed %d", closed)
	}
}

func TestSweep_SkipsDisabledAutoClose(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReclaimer(t)
	seedGuild(t, store, "g1", 0)

	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	seedThread(t, store, "g1", "ancient", now.Add(-1000*time.Hour))

	if closed := r.Sweep(ctx); closed != 0 {
		t.Errorf("auto-close disabled, expected 0 closed, got %d", closed)
	}
}

func TestSweep_SkipsDisabledGuild(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReclaimer(t)

	policy := models.DefaultGuildPolicy("g1")
	policy.Enabled = false
	policy.Threads.AutoCloseAfter = time.Hour
	if err := store.PutGuildPolicy(ctx, policy); err != nil {
		t.Fatal(err)
	}

	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }
	seedThread(t, store, "g1", "idle", now.Add(-2*time.Hour))

	if closed := r.Sweep(ctx); closed != 0 {
		t.Errorf("disabled guild must not be swept, closed %d", closed)
	}
}

func TestSweep_MultipleGuilds(t *testing.T) {
	ctx := context.Background()
	r, store := newTestReclaimer(t)
	seedGuild(t, store, "g1", time.Hour)
	seedGuild(t, store, "g2", 4*time.Hour)

	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	// Two hours idle: past g1's threshold, within g2's.
	seedThread(t, store, "g1", "a", now.Add(-2*time.Hour))
	seedThread(t, store, "g2", "b", now.Add(-2*time.Hour))

	if closed := r.Sweep(ctx); closed != 1 {
		t.Fatalf("expected 1 closed, got %d", closed)
	}

	a, _ := store.GetThread(ctx, "g1", "a")
	b, _ := store.GetThread(ctx, "g2", "b")
	if a.Status != models.ThreadClosed || b.Status != models.ThreadOpen {
		t.Errorf("wrong per-guild thresholds: a=%s b=%s", a.Status, b.Status)
	}
}
