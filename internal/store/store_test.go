package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func importRecords(t *testing.T, s *Store, records []string) {
	t.Helper()
	ctx := context.Background()
	gen, err := s.BeginImport(ctx)
	require.NoError(t, err)
	require.NoError(t, gen.Insert(ctx, records))
	require.NoError(t, gen.Commit(ctx))
}

func TestSearch_BeforeFirstImport(t *testing.T) {
	s := openTestStore(t)

	matches, total, err := s.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Zero(t, total)
}

func TestSearch_SubstringCaseInsensitive(t *testing.T) {
	s := openTestStore(t)
	importRecords(t, s, []string{
		"Alice Smith, 910000000000, nyc",
		"bob jones, 47, berlin",
		"Carol ALICE, 12, oslo",
	})

	matches, total, err := s.Search(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{
		"Alice Smith, 910000000000, nyc",
		"Carol ALICE, 12, oslo",
	}, matches)
}

func TestSearch_CapAndTotal(t *testing.T) {
	s := openTestStore(t)

	records := make([]string, 1000)
	for i := range records {
		records[i] = fmt.Sprintf("row %04d, common-term", i)
	}
	importRecords(t, s, records)

	matches, total, err := s.Search(context.Background(), "common-term", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 10)
	assert.Equal(t, int64(1000), total)
	// 990 additional matches beyond the cap.
	assert.Equal(t, int64(990), total-int64(len(matches)))
	// Storage order: the first inserted rows come back first.
	assert.Equal(t, "row 0000, common-term", matches[0])
}

func TestSearch_RowsNeverExceedTotal(t *testing.T) {
	s := openTestStore(t)

	many := make([]string, 50)
	for i := range many {
		many[i] = fmt.Sprintf("acme record %02d", i)
	}
	importRecords(t, s, many)

	// Swap between a 50-match generation and an empty one while searching;
	// rows and total must always come from the same generation.
	done := make(chan struct{})
	var commitErr error
	go func() {
		defer close(done)
		ctx := context.Background()
		for i := 0; i < 40; i++ {
			recs := many
			if i%2 == 0 {
				recs = nil
			}
			gen, err := s.BeginImport(ctx)
			if err != nil {
				commitErr = err
				return
			}
			if len(recs) > 0 {
				if err := gen.Insert(ctx, recs); err != nil {
					commitErr = err
					return
				}
			}
			if err := gen.Commit(ctx); err != nil {
				commitErr = err
				return
			}
		}
	}()

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		matches, total, err := s.Search(context.Background(), "acme", 10)
		require.NoError(t, err)
		require.LessOrEqual(t, int64(len(matches)), total)
		if total > 0 {
			require.Equal(t, int64(50), total)
			require.Len(t, matches, 10)
		}
	}
	require.NoError(t, commitErr)
}

func TestSearch_LikeMetacharactersLiteral(t *testing.T) {
	s := openTestStore(t)
	importRecords(t, s, []string{
		"discount 100%", "under_score", "plain row",
	})

	matches, total, err := s.Search(context.Background(), "100%", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"discount 100%"}, matches)

	matches, total, err = s.Search(context.Background(), "der_sc", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"under_score"}, matches)
}

func TestImport_ReplacesPriorGeneration(t *testing.T) {
	s := openTestStore(t)
	importRecords(t, s, []string{"old-gen row"})
	importRecords(t, s, []string{"new-gen row"})

	matches, total, err := s.Search(context.Background(), "row", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"new-gen row"}, matches)
}

func TestImport_GenerationIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	importRecords(t, s, []string{"old-gen row"})

	gen, err := s.BeginImport(ctx)
	require.NoError(t, err)
	require.NoError(t, gen.Insert(ctx, []string{"new-gen row 1"}))

	// Mid-import searches still see the old generation, never a partial mix.
	matches, total, err := s.Search(ctx, "row", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"old-gen row"}, matches)

	require.NoError(t, gen.Insert(ctx, []string{"new-gen row 2"}))
	require.NoError(t, gen.Commit(ctx))

	matches, total, err = s.Search(ctx, "row", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"new-gen row 1", "new-gen row 2"}, matches)
}

func TestImport_AbortKeepsLiveGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	importRecords(t, s, []string{"survivor"})

	gen, err := s.BeginImport(ctx)
	require.NoError(t, err)
	require.NoError(t, gen.Insert(ctx, []string{"doomed"}))
	require.NoError(t, gen.Abort())

	matches, total, err := s.Search(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"survivor"}, matches)
}

func TestImport_BatchedInsertsPreserveOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	gen, err := s.BeginImport(ctx)
	require.NoError(t, err)
	require.NoError(t, gen.Insert(ctx, []string{"r1", "r2"}))
	require.NoError(t, gen.Insert(ctx, []string{"r3"}))
	require.NoError(t, gen.Insert(ctx, []string{"r4", "r5"}))
	require.NoError(t, gen.Commit(ctx))

	matches, _, err := s.Search(ctx, "r", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, matches)
}

func TestGeneration_InsertAfterCommitFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	gen, err := s.BeginImport(ctx)
	require.NoError(t, err)
	require.NoError(t, gen.Commit(ctx))
	assert.Error(t, gen.Insert(ctx, []string{"late"}))
}

func TestBeginImport_DiscardsStaleStaging(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// A crashed import leaves a staging table behind.
	dead, err := s.BeginImport(ctx)
	require.NoError(t, err)
	require.NoError(t, dead.Insert(ctx, []string{"zombie"}))

	gen, err := s.BeginImport(ctx)
	require.NoError(t, err)
	require.NoError(t, gen.Insert(ctx, []string{"fresh"}))
	require.NoError(t, gen.Commit(ctx))

	matches, total, err := s.Search(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"fresh"}, matches)
}

func TestCount(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	importRecords(t, s, []string{"a", "b", "c"})

	n, err = s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestOpen_SqliteDSNWithOptions(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "opts.db") + "?cache=shared"

	s, err := Open("sqlite3", dsn)
	require.NoError(t, err)
	defer s.Close()

	importRecords(t, s, []string{"alice, acme"})

	matches, total, err := s.Search(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"alice, acme"}, matches)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.Error(t, err)
}
