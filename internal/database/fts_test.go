package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureFTSConsistencyRepairsDrift(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	id := addMedia(t, db, "/media/a.mp4")
	addCues(t, db, id, "hello there", "general kenobi", "hello again")

	res, err := db.EnsureFTSConsistency(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Rebuilt || !res.OK {
		t.Errorf("consistent index: %+v, want ok without rebuild", res)
	}

	// Drop one index entry behind the store's back.
	if _, err := db.db.ExecContext(ctx, `
		INSERT INTO subtitles_fts(subtitles_fts, rowid, content)
		SELECT 'delete', id, content FROM subtitles WHERE content = 'hello again'
	`); err != nil {
		t.Fatal(err)
	}

	cues, indexed, err := db.FTSCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cues != 3 || indexed != 2 {
		t.Fatalf("FTSCounts() after delete = %d, %d, want 3, 2", cues, indexed)
	}

	res, err = db.EnsureFTSConsistency(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Rebuilt || !res.OK || res.IndexedCount != 3 || res.TotalCount != 3 {
		t.Errorf("EnsureFTSConsistency() = %+v, want rebuilt 3/3", res)
	}

	total, err := db.EstimateTotal(ctx, SearchQuery{Query: "hello", Mode: SearchRanked})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("ranked hello after rebuild = %d, want 2", total)
	}

	last, err := db.LastFTSRebuild(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.IsZero() {
		t.Error("LastFTSRebuild() is zero after a rebuild")
	}
}

func TestRebuildFTSForce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := New(ctx, filepath.Join(t.TempDir(), "test.db"), &Options{RetryBackoff: time.Millisecond, RebuildBatchSize: 2})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, path := range []string{"/media/a.mp4", "/media/b.mp4"} {
		id := addMedia(t, db, path)
		addCues(t, db, id, "one", "two", "three")
	}

	res, err := db.RebuildFTS(ctx, true)
	if err != nil {
		t.Fatalf("RebuildFTS(force) error = %v", err)
	}
	if !res.Rebuilt || !res.OK {
		t.Errorf("RebuildFTS(force) = %+v, want ok and rebuilt", res)
	}
	if res.IndexedCount != 6 || res.TotalCount != 6 {
		t.Errorf("counts = %d/%d, want 6/6", res.IndexedCount, res.TotalCount)
	}

	total, err := db.EstimateTotal(ctx, SearchQuery{Query: "two", Mode: SearchRanked})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("ranked two after rebuild = %d, want 2", total)
	}
}
