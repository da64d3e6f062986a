// Package hooks fans lifecycle events out to registered observers. Observers
// run sequentially in registration order; each is isolated so that a failing
// or panicking observer never breaks the routing path that published the
// event.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Kind names a lifecycle event.
type Kind string

const (
	ThreadCreated    Kind = "thread_created"
	MessageProcessed Kind = "message_processed"
	ThreadClosed     Kind = "thread_closed"
	UserBlocked      Kind = "user_blocked"
	SnippetUsed      Kind = "snippet_used"
)

// Func is an observer callback. Payload types per kind:
// ThreadCreated *models.Thread, MessageProcessed models.MessageEvent,
// ThreadClosed models.ThreadClosedEvent, UserBlocked models.UserBlockedEvent,
// SnippetUsed models.SnippetUsedEvent.
type Func func(ctx context.Context, payload any) error

type registration struct {
	extensionID string
	fn          Func
}

type Dispatcher struct {
	mu     sync.RWMutex
	hooks  map[Kind][]registration
	logger *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		hooks:  make(map[Kind][]registration),
		logger: logger,
	}
}

// Register adds an observer for one event kind. Registering the same
// extension id for the same kind again replaces the earlier callback in
// place, keeping its position in the dispatch order.
func (d *Dispatcher) Register(extensionID string, kind Kind, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, reg := range d.hooks[kind] {
		if reg.extensionID == extensionID {
			d.hooks[kind][i].fn = fn
			return
		}
	}
	d.hooks[kind] = append(d.hooks[kind], registration{extensionID: extensionID, fn: fn})
}

// Unregister removes every hook the extension registered, for all kinds.
// Unregistering an unknown extension is a no-op.
func (d *Dispatcher) Unregister(extensionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for kind, regs := range d.hooks {
		kept := regs[:0]
		for _, reg := range regs {
			if reg.extensionID != extensionID {
				kept = append(kept, reg)
			}
		}
		d.hooks[kind] = kept
	}
}

// Publish delivers the payload to every observer of the kind, in
// registration order. Observer errors and panics are logged and skipped.
func (d *Dispatcher) Publish(ctx context.Context, kind Kind, payload any) {
	d.mu.RLock()
	regs := append([]registration(nil), d.hooks[kind]...)
	d.mu.RUnlock()

	for _, reg := range regs {
		if err := d.invoke(ctx, reg, payload); err != nil {
			d.logger.Error("extension hook failed",
				zap.String("hook", string(kind)),
				zap.String("extension", reg.extensionID),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) invoke(ctx context.Context, reg registration, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return reg.fn(ctx, payload)
}
