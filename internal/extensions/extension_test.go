package extensions

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/hooks"
	"github.com/xaenox/modmail/internal/models"
)

type recordingExtension struct {
	created   []*models.Thread
	processed []models.MessageEvent
	closed    []string
}

func (r *recordingExtension) OnThreadCreated(ctx context.Context, thread *models.Thread) error {
	r.created = append(r.created, thread)
	return nil
}

func (r *recordingExtension) OnMessageProcessed(ctx context.Context, msg models.MessageEvent) error {
	r.processed = append(r.processed, msg)
	return nil
}

func (r *recordingExtension) OnThreadClosed(ctx context.Context, thread *models.Thread, reason string) error {
	r.closed = append(r.closed, reason)
	return nil
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	d := hooks.NewDispatcher(zap.NewNop())
	ext := &recordingExtension{}
	Attach(d, "recorder", ext)

	th := &models.Thread{ID: "t1", GuildID: "g1", UserID: "u1"}
	d.Publish(ctx, hooks.ThreadCreated, th)
	d.Publish(ctx, hooks.MessageProcessed, models.MessageEvent{ThreadID: "t1", Content: "hello"})
	d.Publish(ctx, hooks.ThreadClosed, models.ThreadClosedEvent{Thread: th, Reason: "resolved"})

	if len(ext.created) != 1 || ext.created[0].ID != "t1" {
		t.Errorf("thread creation not observed: %+v", ext.created)
	}
	if len(ext.processed) != 1 || ext.processed[0].Content != "hello" {
		t.Errorf("message not observed: %+v", ext.processed)
	}
	if len(ext.closed) != 1 || ext.closed[0] != "resolved" {
		t.Errorf("close not observed: %+v", ext.closed)
	}
}

func TestAttach_IgnoresUnrelatedKinds(t *testing.T) {
	ctx := context.Background()
	d := hooks.NewDispatcher(zap.NewNop())
	ext := &recordingExtension{}
	Attach(d, "recorder", ext)

	d.Publish(ctx, hooks.UserBlocked, models.UserBlockedEvent{UserID: "u1"})

	if len(ext.created)+len(ext.processed)+len(ext.closed) != 0 {
		t.Errorf("extension observed events it never subscribed to: %+v", ext)
	}
}

func TestAttach_Detach(t *testing.T) {
	ctx := context.Background()
	d := hooks.NewDispatcher(zap.NewNop())
	ext := &recordingExtension{}
	Attach(d, "recorder", ext)
	d.Unregister("recorder")

	d.Publish(ctx, hooks.ThreadCreated, &models.Thread{ID: "t1"})

	if len(ext.created) != 0 {
		t.Error("detached extension must not observe events")
	}
}
