package incremental

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackdatingChain(t *testing.T) {
	db := NewDatabase(nil)
	lengthCalls, halfCalls, doubleCalls := 0, 0, 0

	source := NewInputQuery[string, string](db, "Source")
	length := NewMemoizedQuery(db, "Length", func(s *Session, key string) (int, error) {
		lengthCalls++
		v, err := Fetch(s, source, key)
		return len(v), err
	})
	half := NewMemoizedQuery(db, "Half", func(s *Session, key string) (int, error) {
		halfCalls++
		v, err := Fetch(s, length, key)
		return v / 2, err
	})
	double := NewMemoizedQuery(db, "DoubleHalf", func(s *Session, key string) (int, error) {
		doubleCalls++
		v, err := Fetch(s, half, key)
		return v * 2, err
	})

	top := db.Top()
	Set(top, source, "f", "aaaaaaaaaa") // length 10

	v, err := Fetch(top, double, "f")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, lengthCalls)
	assert.Equal(t, 1, halfCalls)
	assert.Equal(t, 1, doubleCalls)

	// Change source to a different 11-char string: length flips from
	// 10 to 11, but length/2 (5) is unchanged, so Half backdates and
	// DoubleHalf is validated without its executor running again.
	Set(top, source, "f", "aaaaaaaaaaa")

	v, err = Fetch(top, double, "f")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, lengthCalls)
	assert.Equal(t, 2, halfCalls, "Half must re-run once to discover it backdates")
	assert.Equal(t, 1, doubleCalls, "DoubleHalf must validate, not re-execute")
}

func TestVolatileQuery(t *testing.T) {
	db := NewDatabase(nil)
	calls := 0
	tick := 0

	clock := NewVolatileQuery[string, int](db, "Clock", func(*Session, string) (int, error) {
		calls++
		return tick, nil
	})

	top := db.Top()
	v, err := Fetch(top, clock, "now")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, 1, calls)

	// Fetching again within the same revision reuses the cached value.
	v, err = Fetch(top, clock, "now")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, 1, calls)

	// A revision bump forces exactly one re-execution, even though the
	// clock "changed" externally with no tracked dependency to blame.
	tick = 5
	top.NextRevision()
	v, err = Fetch(top, clock, "now")
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, 2, calls)
}

func TestCycleWithRecovery(t *testing.T) {
	db := NewDatabase(nil)

	var pongQ *Query[string, int]
	pingQ := NewMemoizedQuery(db, "Ping", func(s *Session, key string) (int, error) {
		v, err := Fetch(s, pongQ, key)
		return v + 1, err
	}, WithRecover[string, int](func(string) int { return -1 }))
	pongQ = NewMemoizedQuery(db, "Pong", func(s *Session, key string) (int, error) {
		v, err := Fetch(s, pingQ, key)
		return v + 1, err
	}, WithRecover[string, int](func(string) int { return -1 }))

	top := db.Top()
	v, err := Fetch(top, pingQ, "a")
	require.NoError(t, err)
	// Pong's fetch of Ping closes the cycle, recovering to -1; Pong
	// then returns 0, and the outer Ping call returns 1.
	assert.Equal(t, 1, v)
}

func TestCycleWithoutRecoveryReturnsCycleError(t *testing.T) {
	db := NewDatabase(nil)

	var pongQ *Query[string, int]
	pingQ := NewMemoizedQuery(db, "Ping", func(s *Session, key string) (int, error) {
		return Fetch(s, pongQ, key)
	})
	pongQ = NewMemoizedQuery(db, "Pong", func(s *Session, key string) (int, error) {
		return Fetch(s, pingQ, key)
	})

	top := db.Top()
	_, err := Fetch(top, pingQ, "a")
	require.Error(t, err)
	assert.True(t, IsCycleError(err))
}

func TestParallelDuplicateFetch(t *testing.T) {
	db := NewDatabase(nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var execCount int
	var mu sync.Mutex

	slow := NewMemoizedQuery(db, "Slow", func(*Session, string) (int, error) {
		mu.Lock()
		execCount++
		mu.Unlock()
		close(started)
		<-release
		return 42, nil
	})

	top := db.Top()

	var wg sync.WaitGroup
	results := make([]int, 2)
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		snap := top.Snapshot()
		defer snap.Close()
		results[0], errs[0] = Fetch(snap, slow, "k")
	}()
	go func() {
		defer wg.Done()
		<-started
		// Give the first goroutine time to register as "computing"
		// before this one tries the same key, so this fetch takes the
		// blocking path instead of a fresh Execute of its own.
		time.Sleep(10 * time.Millisecond)
		snap := top.Snapshot()
		defer snap.Close()
		results[1], errs[1] = Fetch(snap, slow, "k")
	}()
	go func() {
		<-started
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 42, results[0])
	assert.Equal(t, 42, results[1])
	assert.Equal(t, 1, execCount, "the second fetch must block and reuse the first's result")
}

func TestCancellation(t *testing.T) {
	db := NewDatabase(nil)
	source := NewInputQuery[string, int](db, "Source")
	top := db.Top()
	Set(top, source, "k", 1)

	snap := top.Snapshot()
	defer snap.Close()

	assert.False(t, snap.IsCurrentRevisionCanceled())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		Set(top, source, "k", 2)
	}()

	// Give the writer a moment to observe contention against the open
	// snapshot and raise the cancellation flag.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, snap.IsCurrentRevisionCanceled())

	snap.Close()
	<-writerDone
	assert.False(t, top.IsCurrentRevisionCanceled())
}

func TestValidationWithoutReexecution(t *testing.T) {
	db := NewDatabase(nil)
	source := NewInputQuery[string, int](db, "Source")
	unrelated := NewInputQuery[string, int](db, "Unrelated")

	calls := 0
	derived := NewMemoizedQuery(db, "Derived", func(s *Session, key string) (int, error) {
		calls++
		v, err := Fetch(s, source, key)
		return v * 2, err
	})

	top := db.Top()
	Set(top, source, "k", 10)
	Set(top, unrelated, "k", 1)

	v, err := Fetch(top, derived, "k")
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.Equal(t, 1, calls)

	// Bump the revision via an input Derived does not depend on.
	Set(top, unrelated, "k", 2)

	v, err = Fetch(top, derived, "k")
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.Equal(t, 1, calls, "Derived must validate against its one dependency, not re-run")
}

func TestEventHookObservesLifecycle(t *testing.T) {
	db := NewDatabase(nil)
	source := NewInputQuery[string, int](db, "Source")
	derived := NewMemoizedQuery(db, "Derived", func(s *Session, key string) (int, error) {
		v, err := Fetch(s, source, key)
		return v + 1, err
	})

	var kinds []EventKind
	db.OnEvent(func(e Event) { kinds = append(kinds, e.Kind) })

	top := db.Top()
	Set(top, source, "k", 1)
	_, err := Fetch(top, derived, "k")
	require.NoError(t, err)

	assert.Contains(t, kinds, EventWillExecute)
	assert.Contains(t, kinds, EventDidExecute)
}

func TestAccumulatorGathersTransitively(t *testing.T) {
	db := NewDatabase(nil)
	source := NewInputQuery[string, int](db, "Source")

	type tag string
	leaf := NewMemoizedQuery(db, "Leaf", func(s *Session, key string) (int, error) {
		Accumulate(s, tag("leaf"))
		v, err := Fetch(s, source, key)
		return v, err
	})
	root := NewMemoizedQuery(db, "Root", func(s *Session, key string) (int, error) {
		Accumulate(s, tag("root"))
		return Fetch(s, leaf, key)
	})

	top := db.Top()
	Set(top, source, "k", 1)
	_, err := Fetch(top, root, "k")
	require.NoError(t, err)

	got := ReadAccumulated[tag](top, root.Descriptor("k"))
	assert.ElementsMatch(t, []tag{"root", "leaf"}, got)
}

func TestTransparentQueryForwardsDepsNotItself(t *testing.T) {
	db := NewDatabase(nil)
	source := NewInputQuery[string, int](db, "Source")

	transparentCalls := 0
	pass := NewTransparentQuery(db, "Pass", func(s *Session, key string) (int, error) {
		transparentCalls++
		return Fetch(s, source, key)
	})

	callerCalls := 0
	caller := NewMemoizedQuery(db, "Caller", func(s *Session, key string) (int, error) {
		callerCalls++
		v, err := Fetch(s, pass, key)
		return v * 2, err
	})

	top := db.Top()
	Set(top, source, "k", 5)

	v, err := Fetch(top, caller, "k")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, transparentCalls)
	assert.Equal(t, 1, callerCalls)

	// Caller must validate against Source (the dependency Pass
	// forwarded to it), not against Pass itself: Pass never installs
	// an entry, so if Caller had recorded Pass as its own dependency,
	// every validation of Caller would recurse into maybeChangedAfter
	// for Pass, find it permanently unset, and re-execute Pass on every
	// validation. Fetching Caller repeatedly at the same revision
	// must neither re-run Caller nor re-run Pass.
	for i := 0; i < 3; i++ {
		v, err = Fetch(top, caller, "k")
		require.NoError(t, err)
		assert.Equal(t, 10, v)
	}
	assert.Equal(t, 1, callerCalls, "Caller must stay Fresh, never re-validate or re-execute")
	assert.Equal(t, 1, transparentCalls, "Pass must not be invoked when Caller is already Fresh")

	// Bump the revision via an unrelated input: Caller's only recorded
	// dependency is Source (forwarded through Pass), which has not
	// changed, so Caller must validate without re-executing Pass or
	// itself at all.
	other := NewInputQuery[string, int](db, "Other")
	Set(top, other, "k", 1)

	v, err = Fetch(top, caller, "k")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, callerCalls, "Caller must validate via Source, an unrelated input must not force a re-run")
	assert.Equal(t, 1, transparentCalls)

	// Now actually change Source: Caller's dependency really changed,
	// so it must re-execute, which reaches through to Pass exactly
	// once (transparent queries always re-execute when reached).
	Set(top, source, "k", 7)

	v, err = Fetch(top, caller, "k")
	require.NoError(t, err)
	assert.Equal(t, 14, v)
	assert.Equal(t, 2, callerCalls)
	assert.Equal(t, 2, transparentCalls)
}

func TestExecutorPanicLeavesNoPoisonedSlot(t *testing.T) {
	db := NewDatabase(nil)
	source := NewInputQuery[string, int](db, "Source")

	attempts := 0
	flaky := NewMemoizedQuery(db, "Flaky", func(s *Session, key string) (int, error) {
		attempts++
		v, err := Fetch(s, source, key)
		if v < 0 {
			panic("negative input")
		}
		return v * 2, err
	})

	top := db.Top()
	Set(top, source, "k", -1)

	assert.Panics(t, func() {
		Fetch(top, flaky, "k")
	})
	assert.Equal(t, 0, top.stack.depth(), "the active frame must be popped even when the executor panics")

	// The slot must not be left stuck "computing" - a subsequent fetch
	// (after fixing the input) must execute normally rather than
	// blocking forever on a panicked goroutine's done channel.
	Set(top, source, "k", 3)
	v, err := Fetch(top, flaky, "k")
	require.NoError(t, err)
	assert.Equal(t, 6, v)
	assert.Equal(t, 2, attempts)
}

func TestSweepEvictsStaleEntriesOnly(t *testing.T) {
	db := NewDatabase(nil)
	source := NewInputQuery[string, int](db, "Source")
	calls := 0
	derived := NewMemoizedQuery(db, "Derived", func(s *Session, key string) (int, error) {
		calls++
		v, err := Fetch(s, source, key)
		return v + 1, err
	})

	top := db.Top()
	Set(top, source, "stale", 1)
	Set(top, source, "fresh", 1)

	_, err := Fetch(top, derived, "stale")
	require.NoError(t, err)

	// Three more revisions pass without "stale" being touched again,
	// but "fresh" is re-fetched at the latest revision each time.
	for i := 0; i < 3; i++ {
		Set(top, source, "fresh", i+2)
		_, err := Fetch(top, derived, "fresh")
		require.NoError(t, err)
	}

	db.Sweep(1)

	// "fresh" survives (verified within the keep window); "stale" was
	// evicted, so fetching it again re-executes instead of validating.
	callsBefore := calls
	_, err = Fetch(top, derived, "fresh")
	require.NoError(t, err)
	assert.Equal(t, callsBefore, calls, "fresh entry must still validate without re-executing")

	_, err = Fetch(top, derived, "stale")
	require.NoError(t, err)
	assert.Equal(t, callsBefore+1, calls, "evicted entry must re-execute on next fetch")
}

func TestRunParallelSnapshotFanOut(t *testing.T) {
	db := NewDatabase(nil)
	source := NewInputQuery[string, int](db, "Source")
	double := NewMemoizedQuery(db, "Double", func(s *Session, key string) (int, error) {
		v, err := Fetch(s, source, key)
		return v * 2, err
	})

	top := db.Top()
	Set(top, source, "a", 1)
	Set(top, source, "b", 2)

	results := make([]int, 2)
	err := RunParallel(context.Background(), top,
		func(_ context.Context, snap *Session) error {
			v, err := Fetch(snap, double, "a")
			results[0] = v
			return err
		},
		func(_ context.Context, snap *Session) error {
			v, err := Fetch(snap, double, "b")
			results[1] = v
			return err
		},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, results)
}
