//go:build chrome

package cdpconn

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDialAndNewTarget(t *testing.T) {
	logger := zap.NewNop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	browser, err := Dial(ctx, "http://127.0.0.1:9222", logger)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer browser.Close()

	conn, stop, err := browser.NewTarget(context.Background())
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	defer stop()

	if conn.Broken() != nil {
		t.Errorf("freshly opened target reports broken: %v", conn.Broken())
	}
}

func TestConnPoisonsOnBrokenCall(t *testing.T) {
	logger := zap.NewNop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	browser, err := Dial(ctx, "http://127.0.0.1:9222", logger)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer browser.Close()

	conn, stop, err := browser.NewTarget(context.Background())
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	stop() // tear the target down before issuing a call against it

	if err := conn.Call(conn.TargetContext(), failingCmd{}); err == nil {
		t.Error("Call() on a torn-down target should fail")
	}
	if conn.Broken() == nil {
		t.Error("Conn should be poisoned after a failed Call")
	}
}

// TestNewTargetOutlivesCreationContext guards against binding the target's
// lifetime to the context used only to create it: a target opened with a
// short-lived ctx must still be usable long after that ctx is done, since
// pool.Acquire calls NewTarget with a per-request context yet the returned
// session may be released healthy and reused by a later, unrelated request.
func TestNewTargetOutlivesCreationContext(t *testing.T) {
	logger := zap.NewNop()
	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	browser, err := Dial(dialCtx, "http://127.0.0.1:9222", logger)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer browser.Close()

	creationCtx, creationCancel := context.WithTimeout(context.Background(), 2*time.Second)
	conn, stop, err := browser.NewTarget(creationCtx)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	defer stop()

	creationCancel() // simulate the per-request context ending, as coordinator.DoRender's defer cancel() does
	time.Sleep(50 * time.Millisecond)

	if conn.Broken() != nil {
		t.Fatalf("target was torn down when its creation context ended: %v", conn.Broken())
	}
	if err := conn.TargetContext().Err(); err != nil {
		t.Fatalf("target context is done after creation context ended: %v", err)
	}
}

type failingCmd struct{}

func (failingCmd) Do(ctx context.Context) error {
	return ctx.Err()
}
