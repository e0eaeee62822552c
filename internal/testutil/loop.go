package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/g960059/maptime/internal/clock"
	"github.com/g960059/maptime/internal/dispatch"
	"github.com/g960059/maptime/internal/model"
)

// RunLoop runs l until the test ends.
func RunLoop(t *testing.T, l *dispatch.Loop) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(3 * time.Second):
			t.Errorf("timeout waiting for dispatch loop to stop")
		}
	})
}

// Settle waits until l has no queued work or running jobs.
func Settle(t *testing.T, l *dispatch.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.WaitIdle(ctx); err != nil {
		t.Fatalf("wait for dispatch loop: %v", err)
	}
}

// Dispatch sends a to l and waits for every resulting action.
func Dispatch(t *testing.T, l *dispatch.Loop, actions ...model.Action) {
	t.Helper()
	for _, a := range actions {
		if err := l.Dispatch(a); err != nil {
			t.Fatalf("dispatch %s: %v", a.Type(), err)
		}
		Settle(t, l)
	}
}

// Advance moves the fake clock in steps of d, settling after each step
// so timers re-armed by the loop fire in the same call.
func Advance(t *testing.T, fake *clock.FakeClock, l *dispatch.Loop, d time.Duration, steps int) {
	t.Helper()
	for i := 0; i < steps; i++ {
		fake.Advance(d)
		Settle(t, l)
	}
}

// Read runs fn on the loop goroutine and waits for it.
func Read(t *testing.T, l *dispatch.Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	if err := l.Post(func() { fn(); close(done) }); err != nil {
		t.Fatalf("post read: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout reading loop state")
	}
}
