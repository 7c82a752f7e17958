// Package storagetest holds the behavioural contract every
// storage.Repository implementation must satisfy. Implementation packages
// call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/simple-memory/internal/storage"
	"github.com/scrypster/simple-memory/pkg/types"
)

// Factory builds a fresh, empty repository for one subtest. The returned
// repository is closed by the suite.
type Factory func(t *testing.T, opts ...storage.Option) storage.Repository

// Run executes the full contract against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, newRepo Factory)
	}{
		{"CreateSession_RejectsBlankName", testCreateSessionRejectsBlankName},
		{"CreateSession_TrimsName", testCreateSessionTrimsName},
		{"ListSessions_InsertionOrder", testListSessionsInsertionOrder},
		{"AddMemory_ValidationOrder", testAddMemoryValidationOrder},
		{"AddMemory_RoundTrip", testAddMemoryRoundTrip},
		{"AddMemory_TagsAreCopied", testAddMemoryTagsAreCopied},
		{"AddMemoryWithSession_CountsAreAtomic", testAddMemoryWithSessionCountsAreAtomic},
		{"GetMemories_NewestFirst", testGetMemoriesNewestFirst},
		{"GetMemories_TiesReverseInsertion", testGetMemoriesTiesReverseInsertion},
		{"GetMemories_AcrossDSTFallBack", testGetMemoriesAcrossDSTFallBack},
		{"GetMemories_Validation", testGetMemoriesValidation},
		{"DeleteSession_Cascades", testDeleteSessionCascades},
		{"ClearSession_KeepsSession", testClearSessionKeepsSession},
		{"RemoveMemory", testRemoveMemory},
		{"MemoryCount_AlwaysConsistent", testMemoryCountAlwaysConsistent},
		{"Snapshot", testSnapshot},
		{"Stats", testStats},
		{"ConcurrentAddAndDelete_NoOrphans", testConcurrentAddAndDeleteNoOrphans},
		{"Close", testClose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newRepo)
		})
	}
}

func open(t *testing.T, newRepo Factory, opts ...storage.Option) storage.Repository {
	t.Helper()
	repo := newRepo(t, opts...)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func mustSession(t *testing.T, repo storage.Repository, name string) *types.Session {
	t.Helper()
	s, err := repo.CreateSession(context.Background(), name)
	require.NoError(t, err)
	return s
}

func mustMemory(t *testing.T, repo storage.Repository, sessionID, content string, tags ...string) *types.Memory {
	t.Helper()
	m, err := repo.AddMemory(context.Background(), sessionID, content, tags)
	require.NoError(t, err)
	return m
}

func contents(memories []types.Memory) []string {
	out := make([]string, 0, len(memories))
	for _, m := range memories {
		out = append(out, m.Content)
	}
	return out
}

// assertCountsConsistent checks that every session's MemoryCount equals the
// number of memories that actually reference it and that no memory is
// orphaned.
func assertCountsConsistent(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()

	sessions, err := repo.ListSessions(ctx)
	require.NoError(t, err)

	all, err := repo.Snapshot(ctx, "")
	require.NoError(t, err)

	actual := make(map[string]int)
	for _, m := range all {
		actual[m.SessionID]++
	}

	known := make(map[string]bool)
	for _, s := range sessions {
		known[s.ID] = true
		assert.Equal(t, actual[s.ID], s.MemoryCount, "session %q count drifted", s.Name)

		got, err := repo.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, actual[s.ID], got.MemoryCount)
	}
	for sid := range actual {
		assert.True(t, known[sid], "orphaned memories for session %s", sid)
	}
}

func testCreateSessionRejectsBlankName(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()

	for _, name := range []string{"", "   ", "\t\n"} {
		s, err := repo.CreateSession(ctx, name)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, types.ErrEmptyName)
	}

	sessions, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func testCreateSessionTrimsName(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)

	s := mustSession(t, repo, "  project_ideas \n")
	assert.Equal(t, "project_ideas", s.Name)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 0, s.MemoryCount)
	assert.False(t, s.CreatedAt.IsZero())
}

func testListSessionsInsertionOrder(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)

	for _, name := range []string{"meeting_notes", "alpha", "zeta"} {
		mustSession(t, repo, name)
	}

	sessions, err := repo.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "meeting_notes", sessions[0].Name)
	assert.Equal(t, "alpha", sessions[1].Name)
	assert.Equal(t, "zeta", sessions[2].Name)
}

func testAddMemoryValidationOrder(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()
	s := mustSession(t, repo, "work")

	_, err := repo.AddMemory(ctx, "", "", nil)
	assert.ErrorIs(t, err, types.ErrEmptySessionID)

	_, err = repo.AddMemory(ctx, "no-such-session", "   ", nil)
	assert.ErrorIs(t, err, types.ErrEmptyContent, "content is checked before existence")

	_, err = repo.AddMemory(ctx, "no-such-session", "hello", nil)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	_, err = repo.AddMemory(ctx, s.ID, " \t ", nil)
	assert.ErrorIs(t, err, types.ErrEmptyContent)

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MemoryCount)
}

func testAddMemoryRoundTrip(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()
	s := mustSession(t, repo, "work")

	added := mustMemory(t, repo, s.ID, "  Valid content  ", "x", "y")
	assert.Equal(t, "Valid content", added.Content)
	assert.Equal(t, s.ID, added.SessionID)

	memories, err := repo.GetMemories(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, added.ID, memories[0].ID)
	assert.Equal(t, "Valid content", memories[0].Content)
	assert.Equal(t, []string{"x", "y"}, memories[0].Tags)

	untagged := mustMemory(t, repo, s.ID, "no tags here")
	assert.NotNil(t, untagged.Tags)
	assert.Empty(t, untagged.Tags)

	dup := mustMemory(t, repo, s.ID, "dupes", "a", "a", "b")
	assert.Equal(t, []string{"a", "a", "b"}, dup.Tags)
}

func testAddMemoryTagsAreCopied(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()
	s := mustSession(t, repo, "work")

	tags := []string{"one", "two"}
	added, err := repo.AddMemory(ctx, s.ID, "content", tags)
	require.NoError(t, err)

	tags[0] = "mutated"
	added.Tags[1] = "also mutated"

	memories, err := repo.GetMemories(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, []string{"one", "two"}, memories[0].Tags)
}

func testAddMemoryWithSessionCountsAreAtomic(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()
	s := mustSession(t, repo, "busy")

	_, _, err := repo.AddMemoryWithSession(ctx, "missing", "x", nil)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	const writers = 16
	counts := make([]int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, session, err := repo.AddMemoryWithSession(ctx, s.ID, fmt.Sprintf("memory %d", i), nil)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, s.ID, m.SessionID)
			assert.Equal(t, "busy", session.Name)
			counts[i] = session.MemoryCount
		}(i)
	}
	wg.Wait()

	// Each writer sees its own insert and no later one.
	want := make([]int, writers)
	for i := range want {
		want[i] = i + 1
	}
	assert.ElementsMatch(t, want, counts)
}

func testGetMemoriesNewestFirst(t *testing.T, newRepo Factory) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	var tick int
	clock := storage.NewMonotonicClockFrom(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	})
	repo := open(t, newRepo, storage.WithClock(clock))
	s := mustSession(t, repo, "work")

	mustMemory(t, repo, s.ID, "A")
	mustMemory(t, repo, s.ID, "B")
	mustMemory(t, repo, s.ID, "C")

	memories, err := repo.GetMemories(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, contents(memories))
	assert.True(t, memories[0].CreatedAt.After(memories[2].CreatedAt))
}

func testGetMemoriesTiesReverseInsertion(t *testing.T, newRepo Factory) {
	frozen := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	clock := storage.NewMonotonicClockFrom(func() time.Time { return frozen })
	repo := open(t, newRepo, storage.WithClock(clock))
	s := mustSession(t, repo, "work")

	for _, c := range []string{"first", "second", "third", "fourth"} {
		mustMemory(t, repo, s.ID, c)
	}

	memories, err := repo.GetMemories(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"fourth", "third", "second", "first"}, contents(memories))
}

// testGetMemoriesAcrossDSTFallBack stores two memories half an hour apart
// whose New York wall clocks read 01:45 EDT and then 01:15 EST.
func testGetMemoriesAcrossDSTFallBack(t *testing.T, newRepo Factory) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	prev := time.Local
	time.Local = ny
	t.Cleanup(func() { time.Local = prev })

	instants := []time.Time{
		time.Date(2024, 11, 3, 5, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 3, 5, 45, 0, 0, time.UTC),
		time.Date(2024, 11, 3, 6, 15, 0, 0, time.UTC),
	}
	var next int
	clock := storage.NewMonotonicClockFrom(func() time.Time {
		at := instants[min(next, len(instants)-1)]
		next++
		return at.In(time.Local)
	})
	repo := open(t, newRepo, storage.WithClock(clock))
	ctx := context.Background()
	s := mustSession(t, repo, "overnight")

	a := mustMemory(t, repo, s.ID, "A")
	b := mustMemory(t, repo, s.ID, "B")
	require.True(t, a.CreatedAt.Equal(instants[1]))
	require.True(t, b.CreatedAt.Equal(instants[2]))

	memories, err := repo.GetMemories(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "A"}, contents(memories))
	assert.True(t, memories[0].CreatedAt.Equal(instants[2]), "B createdAt %v", memories[0].CreatedAt.UTC())
	assert.True(t, memories[1].CreatedAt.Equal(instants[1]), "A createdAt %v", memories[1].CreatedAt.UTC())

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(instants[0]))
}

func testGetMemoriesValidation(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()

	_, err := repo.GetMemories(ctx, "")
	assert.ErrorIs(t, err, types.ErrEmptySessionID)

	_, err = repo.GetMemories(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	s := mustSession(t, repo, "empty")
	memories, err := repo.GetMemories(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, memories)
}

func testDeleteSessionCascades(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()

	doomed := mustSession(t, repo, "doomed")
	kept := mustSession(t, repo, "kept")
	m1 := mustMemory(t, repo, doomed.ID, "one")
	mustMemory(t, repo, doomed.ID, "two")
	survivor := mustMemory(t, repo, kept.ID, "survivor")

	deleted, removed, err := repo.DeleteSession(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, doomed.ID, deleted.ID)
	assert.Equal(t, "doomed", deleted.Name)
	assert.Equal(t, 2, removed)

	_, err = repo.GetMemories(ctx, doomed.ID)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	_, err = repo.RemoveMemory(ctx, m1.ID)
	assert.ErrorIs(t, err, types.ErrMemoryNotFound, "cascaded memories are gone")

	memories, err := repo.GetMemories(ctx, kept.ID)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, survivor.ID, memories[0].ID)

	_, _, err = repo.DeleteSession(ctx, doomed.ID)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	_, _, err = repo.DeleteSession(ctx, "")
	assert.ErrorIs(t, err, types.ErrEmptySessionID)

	assertCountsConsistent(t, repo)
}

func testClearSessionKeepsSession(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()

	target := mustSession(t, repo, "target")
	other := mustSession(t, repo, "other")
	mustMemory(t, repo, target.ID, "one")
	mustMemory(t, repo, target.ID, "two")
	mustMemory(t, repo, target.ID, "three")
	mustMemory(t, repo, other.ID, "untouched")

	cleared, removed, err := repo.ClearSession(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, cleared.MemoryCount)
	assert.Equal(t, "target", cleared.Name)

	got, err := repo.GetSession(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MemoryCount)

	memories, err := repo.GetMemories(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"untouched"}, contents(memories))

	_, removed, err = repo.ClearSession(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "clearing an empty session is a no-op")

	_, _, err = repo.ClearSession(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)

	mustMemory(t, repo, target.ID, "after clear")
	assertCountsConsistent(t, repo)
}

func testRemoveMemory(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()
	s := mustSession(t, repo, "work")
	keep := mustMemory(t, repo, s.ID, "keep")
	drop := mustMemory(t, repo, s.ID, "drop", "t1")

	_, err := repo.RemoveMemory(ctx, "")
	assert.ErrorIs(t, err, types.ErrEmptyID)

	_, err = repo.RemoveMemory(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrMemoryNotFound)

	removed, err := repo.RemoveMemory(ctx, drop.ID)
	require.NoError(t, err)
	assert.Equal(t, drop.ID, removed.ID)
	assert.Equal(t, "drop", removed.Content)
	assert.Equal(t, []string{"t1"}, removed.Tags)
	assert.Equal(t, s.ID, removed.SessionID)

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemoryCount)

	memories, err := repo.GetMemories(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, keep.ID, memories[0].ID)

	_, err = repo.RemoveMemory(ctx, drop.ID)
	assert.ErrorIs(t, err, types.ErrMemoryNotFound)
}

func testMemoryCountAlwaysConsistent(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()

	a := mustSession(t, repo, "a")
	b := mustSession(t, repo, "b")
	assertCountsConsistent(t, repo)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, mustMemory(t, repo, a.ID, fmt.Sprintf("a-%d", i)).ID)
		mustMemory(t, repo, b.ID, fmt.Sprintf("b-%d", i))
		assertCountsConsistent(t, repo)
	}

	_, err := repo.RemoveMemory(ctx, ids[2])
	require.NoError(t, err)
	assertCountsConsistent(t, repo)

	_, _, err = repo.ClearSession(ctx, b.ID)
	require.NoError(t, err)
	assertCountsConsistent(t, repo)

	_, _, err = repo.DeleteSession(ctx, a.ID)
	require.NoError(t, err)
	assertCountsConsistent(t, repo)

	sessions, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, b.ID, sessions[0].ID)
	assert.Equal(t, 0, sessions[0].MemoryCount)
}

func testSnapshot(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()

	a := mustSession(t, repo, "a")
	b := mustSession(t, repo, "b")
	mustMemory(t, repo, a.ID, "a1")
	mustMemory(t, repo, b.ID, "b1")
	mustMemory(t, repo, a.ID, "a2")

	all, err := repo.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b1", "a2"}, contents(all))

	onlyA, err := repo.Snapshot(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, contents(onlyA))

	_, err = repo.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func testStats(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Stats{}, st)

	s := mustSession(t, repo, "a")
	mustSession(t, repo, "b")
	mustMemory(t, repo, s.ID, "one")

	st, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Stats{Sessions: 2, Memories: 1}, st)
}

func testConcurrentAddAndDeleteNoOrphans(t *testing.T, newRepo Factory) {
	repo := open(t, newRepo)
	ctx := context.Background()

	const sessions = 4
	const perSession = 25

	var ids []string
	for i := 0; i < sessions; i++ {
		ids = append(ids, mustSession(t, repo, fmt.Sprintf("s-%d", i)).ID)
	}

	var wg sync.WaitGroup
	for _, sid := range ids {
		sid := sid
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSession; j++ {
				// Errors are expected once the session is deleted.
				_, _ = repo.AddMemory(ctx, sid, fmt.Sprintf("memory %d", j), []string{"load"})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, _ = repo.DeleteSession(ctx, ids[0])
		_, _, _ = repo.ClearSession(ctx, ids[1])
	}()
	wg.Wait()

	assertCountsConsistent(t, repo)

	_, err := repo.GetSession(ctx, ids[0])
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func testClose(t *testing.T, newRepo Factory) {
	repo := newRepo(t)
	require.NoError(t, repo.Close())

	_, err := repo.CreateSession(context.Background(), "late")
	assert.Error(t, err)
}
