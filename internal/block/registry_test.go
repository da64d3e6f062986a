package block

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/models"
	"github.com/xaenox/modmail/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	return NewRegistry(store, zap.NewNop()), store
}

func seedGuild(t *testing.T, store *storage.MemoryStorage, guildID string) {
	t.Helper()
	policy := models.DefaultGuildPolicy(guildID)
	policy.Enabled = true
	if err := store.PutGuildPolicy(context.Background(), policy); err != nil {
		t.Fatal(err)
	}
}

func TestBlockUnblockRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	seedGuild(t, store, "guild")

	blocked, err := r.IsBlocked(ctx, "user", "guild")
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Fatal("fresh user should not be blocked")
	}

	staff := models.Actor{ID: "staff", Name: "Staff"}
	if err := r.Block(ctx, "user", "guild", "spam", staff); err != nil {
		t.Fatal(err)
	}

	blocked, _ = r.IsBlocked(ctx, "user", "guild")
	if !blocked {
		t.Error("blocked user should be reported blocked")
	}
	// The user-record flag blocks across guilds too.
	blocked, _ = r.IsBlocked(ctx, "user", "")
	if !blocked {
		t.Error("user-record block should apply without a guild scope")
	}

	rec, _ := store.GetUserRecord(ctx, "user")
	if !rec.Blocked || rec.BlockReason != "spam" || rec.BlockedBy != "staff" || rec.BlockedAt == nil {
		t.Errorf("block metadata not recorded: %+v", rec)
	}

	if err := r.Unblock(ctx, "user", "guild"); err != nil {
		t.Fatal(err)
	}
	blocked, _ = r.IsBlocked(ctx, "user", "guild")
	if blocked {
		t.Error("unblocked user should not be reported blocked")
	}

	rec, _ = store.GetUserRecord(ctx, "user")
	if rec.Blocked || rec.BlockReason != "" || rec.BlockedAt != nil || rec.BlockedBy != "" {
		t.Errorf("unblock should clear metadata: %+v", rec)
	}
}

func TestBlockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	seedGuild(t, store, "guild")

	staff := models.Actor{ID: "staff"}
	if err := r.Block(ctx, "user", "guild", "first", staff); err != nil {
		t.Fatal(err)
	}
	other := models.Actor{ID: "other"}
	if err := r.Block(ctx, "user", "guild", "second", other); err != nil {
		t.Fatal(err)
	}

	rec, _ := store.GetUserRecord(ctx, "user")
	if rec.BlockReason != "second" || rec.BlockedBy != "other" {
		t.Errorf("re-block should overwrite metadata: %+v", rec)
	}

	policy, _ := store.GetGuildPolicy(ctx, "guild")
	count := 0
	for _, id := range policy.BlockedUsers {
		if id == "user" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("guild block list should hold the user once, got %d entries", count)
	}
}

func TestUnblockNeverBlockedIsNoop(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	seedGuild(t, store, "guild")

	if err := r.Unblock(ctx, "user", "guild"); err != nil {
		t.Errorf("unblocking a never-blocked user should not error: %v", err)
	}
}

func TestGlobalBlockShortCircuits(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)

	if err := store.SetGlobalBlock(ctx, "user", true); err != nil {
		t.Fatal(err)
	}

	// No guild policy exists and the user record is clean; the global map
	// alone must block.
	blocked, err := r.IsBlocked(ctx, "user", "unknown-guild")
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("globally blocked user should be blocked everywhere")
	}
}

func TestGuildScopedBlock(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	seedGuild(t, store, "guild")

	policy, _ := store.GetGuildPolicy(ctx, "guild")
	policy.BlockedUsers = append(policy.BlockedUsers, "user")
	if err := store.PutGuildPolicy(ctx, policy); err != nil {
		t.Fatal(err)
	}

	blocked, _ := r.IsBlocked(ctx, "user", "guild")
	if !blocked {
		t.Error("guild-listed user should be blocked in that guild")
	}

	blocked, _ = r.IsBlocked(ctx, "user", "")
	if blocked {
		t.Error("guild-scoped block must not apply without a guild")
	}
}
