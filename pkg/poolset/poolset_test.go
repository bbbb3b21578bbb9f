package poolset

import (
	"context"
	"testing"
	"time"

	dberrors "github.com/sharding-system/internal/errors"
)

func newTestPoolSet() *PoolSet {
	cfg := Config{MaxOpenConns: 1, AcquireTimeout: 20 * time.Millisecond}
	cfg.setDefaults()
	return &PoolSet{
		pools: map[string]*pool{
			"ep1": {sem: make(chan struct{}, 1), healthy: true},
		},
		cfg: cfg,
	}
}

func TestAcquireUnknownEndpoint(t *testing.T) {
	ps := newTestPoolSet()
	_, _, err := ps.Acquire(context.Background(), "missing")
	if !dberrors.Is(err, dberrors.KindPoolExhausted) {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	ps := newTestPoolSet()
	_, release, err := ps.Acquire(context.Background(), "ep1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	// A second acquire should succeed immediately now that the slot freed.
	_, release2, err := ps.Acquire(context.Background(), "ep1")
	if err != nil {
		t.Fatalf("unexpected error on second acquire: %v", err)
	}
	release2()
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	ps := newTestPoolSet()
	_, _, err := ps.Acquire(context.Background(), "ep1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err = ps.Acquire(context.Background(), "ep1")
	if !dberrors.Is(err, dberrors.KindPoolAcquireTimeout) {
		t.Fatalf("expected PoolAcquireTimeout, got %v", err)
	}
}

func TestSetHealthyIsHealthy(t *testing.T) {
	ps := newTestPoolSet()
	if !ps.IsHealthy("ep1") {
		t.Fatal("expected ep1 to start healthy")
	}
	ps.SetHealthy("ep1", false)
	if ps.IsHealthy("ep1") {
		t.Fatal("expected ep1 to be marked unhealthy")
	}
	if ps.IsHealthy("unknown") {
		t.Fatal("expected unknown endpoint to report unhealthy")
	}
}
