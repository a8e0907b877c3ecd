package learner

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFileRaw(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	store := newTestStore(t)
	st, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, "nobody", st.LearnerID)
	require.Empty(t, st.Los)
	require.Empty(t, st.Items)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := NewState("alice")
	lo := st.Lo("lo1")
	lo.ThetaHat = 0.42
	lo.SE = 0.3
	lo.ItemsAttempted = 5

	saved, err := store.Save(ctx, "alice", st)
	require.NoError(t, err)
	require.NotEmpty(t, saved.UpdatedAt)

	loaded, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 0.42, loaded.Los["lo1"].ThetaHat)
	require.Equal(t, 5, loaded.Los["lo1"].ItemsAttempted)
}

func TestSaveOverwritesLearnerID(t *testing.T) {
	store := newTestStore(t)
	st := NewState("mallory")
	saved, err := store.Save(context.Background(), "alice", st)
	require.NoError(t, err)
	require.Equal(t, "alice", saved.LearnerID)
}

func TestSanitizeIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st := NewState("bob")
	lo := st.Lo("lo1")
	lo.SE = -1                                      // below floor
	lo.PriorSigma = 0.01                            // below floor
	lo.RecentSes = make([]float64, 15)              // over window
	st.Item("i1").Correct = 9                       // exceeds attempts
	st.Item("i1").RecentAttempts = make([]int64, 30) // over window

	saved, err := store.Save(ctx, "bob", st)
	require.NoError(t, err)

	// Sanitizing a sanitized document changes nothing.
	again := Sanitize(saved, "bob")
	require.Equal(t, saved, again)

	require.GreaterOrEqual(t, saved.Los["lo1"].SE, 0.0001)
	require.GreaterOrEqual(t, saved.Los["lo1"].PriorSigma, 0.25)
	require.Len(t, saved.Los["lo1"].RecentSes, RecentSesWindow)
	require.Equal(t, saved.Items["i1"].Attempts, saved.Items["i1"].Correct)
	require.Len(t, saved.Items["i1"].RecentAttempts, RecentAttemptsWindow)
}

func TestSanitizeFillsColdStartPrior(t *testing.T) {
	// A patched-in LO with an estimate but no prior gets the cold-start
	// sigma, not the post-update floor.
	st := NewState("carl")
	st.Los["lo1"] = &LoState{ThetaHat: 0.9, SE: 0.4, ItemsAttempted: 3}

	out := Sanitize(st, "carl")
	require.Equal(t, DefaultPriorSigma, out.Los["lo1"].PriorSigma)
}

func TestFilenameSanitization(t *testing.T) {
	require.Equal(t, "a_b_c-d_e", SanitizeID("a/b c-d.e"))
	require.Equal(t, "____", SanitizeID("../\\x"))
}

func TestUpdateLoStateAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.UpdateLoState(ctx, "carol", "lo1", func(lo *LoState) {
				lo.ItemsAttempted++
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := store.Load(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, 20, st.Los["lo1"].ItemsAttempted)
}

func TestRecordItemExposure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordItemExposure(ctx, "dave", "item-1", true, 1000))
	require.NoError(t, store.RecordItemExposure(ctx, "dave", "item-1", false, 2000))

	st, err := store.Load(ctx, "dave")
	require.NoError(t, err)
	item := st.Items["item-1"]
	require.Equal(t, 2, item.Attempts)
	require.Equal(t, 1, item.Correct)
	require.Equal(t, int64(2000), item.LastAttemptTs)
	require.Equal(t, []int64{1000, 2000}, item.RecentAttempts)
}

func TestCorruptDocumentRecovered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "erin", NewState("erin"))
	require.NoError(t, err)

	// Clobber the document, then load: a fresh default comes back.
	require.NoError(t, writeFileRaw(store.path("erin"), []byte("{not json")))
	st, err := store.Load(ctx, "erin")
	require.NoError(t, err)
	require.Equal(t, "erin", st.LearnerID)
	require.Empty(t, st.Los)
}
