package hooks

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestPublish_RegistrationOrder(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var order []string
	for _, id := range []string{"first", "second", "third"} {
		id := id
		d.Register(id, ThreadCreated, func(ctx context.Context, payload any) error {
			order = append(order, id)
			return nil
		})
	}

	d.Publish(context.Background(), ThreadCreated, nil)

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("expected registration order [first second third], got %v", order)
	}
}

func TestPublish_IsolatesFailures(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var reached []string
	d.Register("erroring", ThreadClosed, func(ctx context.Context, payload any) error {
		reached = append(reached, "erroring")
		return errors.New("observer broke")
	})
	d.Register("panicking", ThreadClosed, func(ctx context.Context, payload any) error {
		reached = append(reached, "panicking")
		panic("observer panicked")
	})
	d.Register("healthy", ThreadClosed, func(ctx context.Context, payload any) error {
		reached = append(reached, "healthy")
		return nil
	})

	d.Publish(context.Background(), ThreadClosed, nil)

	if len(reached) != 3 || reached[2] != "healthy" {
		t.Errorf("faulty observers must not stop dispatch, got %v", reached)
	}
}

func TestRegister_ReplacesInPlace(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var calls []string
	d.Register("ext", MessageProcessed, func(ctx context.Context, payload any) error {
		calls = append(calls, "old")
		return nil
	})
	d.Register("ext", MessageProcessed, func(ctx context.Context, payload any) error {
		calls = append(calls, "new")
		return nil
	})

	d.Publish(context.Background(), MessageProcessed, nil)

	if len(calls) != 1 || calls[0] != "new" {
		t.Errorf("re-registering should replace the callback, got %v", calls)
	}
}

func TestUnregister(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	called := false
	d.Register("ext", SnippetUsed, func(ctx context.Context, payload any) error {
		called = true
		return nil
	})
	d.Register("ext", UserBlocked, func(ctx context.Context, payload any) error {
		called = true
		return nil
	})

	d.Unregister("ext")
	d.Unregister("ext") // second unregister is a no-op

	d.Publish(context.Background(), SnippetUsed, nil)
	d.Publish(context.Background(), UserBlocked, nil)

	if called {
		t.Error("unregistered extension must not receive events")
	}
}

func TestPublish_KindsAreIndependent(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var got Kind
	d.Register("ext", ThreadCreated, func(ctx context.Context, payload any) error {
		got = ThreadCreated
		return nil
	})

	d.Publish(context.Background(), ThreadClosed, nil)
	if got != "" {
		t.Error("observer of another kind must not fire")
	}

	d.Publish(context.Background(), ThreadCreated, nil)
	if got != ThreadCreated {
		t.Error("observer of the published kind must fire")
	}
}
