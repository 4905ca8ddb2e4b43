package lockmgr

import (
	"context"
	"testing"
	"time"
)

func TestManager_SharedLocksAreCompatible(t *testing.T) {
	mgr := New(nil, nil)
	ctx := context.Background()

	if err := mgr.Acquire(ctx, 1, "table:orders", S, 0); err != nil {
		t.Fatalf("acquire S for txn 1: %v", err)
	}
	if err := mgr.Acquire(ctx, 2, "table:orders", S, 0); err != nil {
		t.Fatalf("acquire S for txn 2: %v", err)
	}
}

func TestManager_ExclusiveBlocksUntilReleased(t *testing.T) {
	mgr := New(nil, nil)
	ctx := context.Background()

	if err := mgr.Acquire(ctx, 1, "row:5", X, 0); err != nil {
		t.Fatalf("acquire X for txn 1: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- mgr.Acquire(ctx, 2, "row:5", X, 0)
	}()

	select {
	case <-done:
		t.Fatalf("txn 2 should not acquire X while txn 1 holds it")
	case <-time.After(50 * time.Millisecond):
	}

	mgr.Release(1, "row:5")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("txn 2 acquire after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("txn 2 never woke after release")
	}
}

func TestManager_UpgradeInPlace(t *testing.T) {
	mgr := New(nil, nil)
	ctx := context.Background()

	if err := mgr.Acquire(ctx, 1, "row:1", IS, 0); err != nil {
		t.Fatalf("acquire IS: %v", err)
	}
	if err := mgr.Acquire(ctx, 1, "row:1", X, 0); err != nil {
		t.Fatalf("upgrade to X: %v", err)
	}
	rs := mgr.resourceFor("row:1")
	if rs.holders[1] != X {
		t.Fatalf("expected txn 1 to hold X after upgrade, got %v", rs.holders[1])
	}
}

func TestManager_AcquireWeakerModeAfterStrongerIsNoOp(t *testing.T) {
	mgr := New(nil, nil)
	ctx := context.Background()

	if err := mgr.Acquire(ctx, 1, "row:1", X, 0); err != nil {
		t.Fatalf("acquire X: %v", err)
	}
	if err := mgr.Acquire(ctx, 1, "row:1", S, 0); err != nil {
		t.Fatalf("re-acquire S should be a no-op: %v", err)
	}
	rs := mgr.resourceFor("row:1")
	if rs.holders[1] != X {
		t.Fatalf("expected X to survive a weaker re-request, got %v", rs.holders[1])
	}
}

func TestManager_LockTimeout(t *testing.T) {
	mgr := New(nil, nil)
	ctx := context.Background()

	if err := mgr.Acquire(ctx, 1, "row:1", X, 0); err != nil {
		t.Fatalf("acquire X: %v", err)
	}
	err := mgr.Acquire(ctx, 2, "row:1", X, 20*time.Millisecond)
	if err == nil {
		t.Fatalf("expected a lock timeout error")
	}
}

func TestManager_DeadlockDetector_AbortsYoungest(t *testing.T) {
	var victim uint32
	done := make(chan struct{})
	mgr2 := New(nil, func(id uint32) {
		victim = id
		close(done)
	})

	ctx := context.Background()
	if err := mgr2.Acquire(ctx, 1, "row:A", X, 0); err != nil {
		t.Fatalf("txn1 acquire A: %v", err)
	}
	if err := mgr2.Acquire(ctx, 2, "row:B", X, 0); err != nil {
		t.Fatalf("txn2 acquire B: %v", err)
	}

	go mgr2.Acquire(ctx, 1, "row:B", X, 0) // txn1 waits on txn2
	time.Sleep(20 * time.Millisecond)
	go mgr2.Acquire(ctx, 2, "row:A", X, 0) // txn2 waits on txn1: cycle

	mgr2.StartDeadlockDetector(10 * time.Millisecond)
	defer mgr2.StopDeadlockDetector()

	select {
	case <-done:
		if victim != 2 {
			t.Fatalf("expected the youngest transaction (2) to be picked as victim, got %d", victim)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("deadlock detector never fired")
	}
}
