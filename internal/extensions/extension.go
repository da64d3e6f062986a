// Package extensions defines the observer capability set for modmail
// lifecycle events and bridges implementations onto the hook dispatcher.
package extensions

import (
	"context"
	"fmt"

	"github.com/xaenox/modmail/internal/hooks"
	"github.com/xaenox/modmail/internal/models"
)

// Extension observes thread lifecycle events. Implementations run outside
// the routing failure domain: errors are logged by the dispatcher, never
// propagated.
type Extension interface {
	OnThreadCreated(ctx context.Context, thread *models.Thread) error
	OnMessageProcessed(ctx context.Context, msg models.MessageEvent) error
	OnThreadClosed(ctx context.Context, thread *models.Thread, reason string) error
}

// Attach registers the extension's callbacks with the dispatcher under the
// given id. Detach with dispatcher.Unregister(id).
func Attach(d *hooks.Dispatcher, id string, ext Extension) {
	d.Register(id, hooks.ThreadCreated, func(ctx context.Context, payload any) error {
		th, ok := payload.(*models.Thread)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", payload, hooks.ThreadCreated)
		}
		return ext.OnThreadCreated(ctx, th)
	})
	d.Register(id, hooks.MessageProcessed, func(ctx context.Context, payload any) error {
		msg, ok := payload.(models.MessageEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", payload, hooks.MessageProcessed)
		}
		return ext.OnMessageProcessed(ctx, msg)
	})
	d.Register(id, hooks.ThreadClosed, func(ctx context.Context, payload any) error {
		ev, ok := payload.(models.ThreadClosedEvent)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", payload, hooks.ThreadClosed)
		}
		return ext.OnThreadClosed(ctx, ev.Thread, ev.Reason)
	})
}
