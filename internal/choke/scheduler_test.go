package choke

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeCore struct {
	mu sync.Mutex

	stats            map[int]int64
	interested       []int
	chokedInterested []int
	preferredCalls   [][]int
	optimisticCalls  []*int
}

func (f *fakeCore) GetAndResetDownloadStats() map[int]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeCore) InterestedNeighborIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interested
}

func (f *fakeCore) ChokedInterestedNeighborIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chokedInterested
}

func (f *fakeCore) SetPreferredNeighbors(ids []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preferredCalls = append(f.preferredCalls, ids)
}

func (f *fakeCore) SetOptimisticUnchokeSlot(id *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimisticCalls = append(f.optimisticCalls, id)
}

func (f *fakeCore) callCounts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.preferredCalls), len(f.optimisticCalls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOptimisticRatioMinimumOne(t *testing.T) {
	s := New(&fakeCore{}, testLogger(), 1, 10*time.Millisecond, 5*time.Millisecond)
	if s.optimisticEveryNTicks != 1 {
		t.Fatalf("optimisticEveryNTicks = %d, want 1", s.optimisticEveryNTicks)
	}
}

func TestOptimisticRatioFloorsDivision(t *testing.T) {
	s := New(&fakeCore{}, testLogger(), 1, 3*time.Second, 10*time.Second)
	if s.optimisticEveryNTicks != 3 {
		t.Fatalf("optimisticEveryNTicks = %d, want 3", s.optimisticEveryNTicks)
	}
}

func TestSchedulerTicksRecomputePreferred(t *testing.T) {
	core := &fakeCore{
		stats:      map[int]int64{1: 10, 2: 5},
		interested: []int{1, 2},
	}
	s := New(core, testLogger(), 1, 10*time.Millisecond, 100*time.Second)

	s.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	s.Stop()

	preferredCalls, _ := core.callCounts()
	if preferredCalls == 0 {
		t.Fatalf("expected at least one SetPreferredNeighbors call")
	}

	core.mu.Lock()
	last := core.preferredCalls[len(core.preferredCalls)-1]
	core.mu.Unlock()
	if len(last) != 1 || last[0] != 1 {
		t.Fatalf("preferred = %v, want [1] (peer 1 has more download bytes)", last)
	}
}

func TestSchedulerStopHaltsTicking(t *testing.T) {
	core := &fakeCore{}
	s := New(core, testLogger(), 1, 5*time.Millisecond, 100*time.Second)

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	preferredCalls, _ := core.callCounts()
	time.Sleep(20 * time.Millisecond)
	after, _ := core.callCounts()
	if after != preferredCalls {
		t.Fatalf("ticks continued after Stop: before=%d after=%d", preferredCalls, after)
	}
}
