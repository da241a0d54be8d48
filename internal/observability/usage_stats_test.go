package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordConcurrent tests concurrent Record calls for race conditions.
func TestRecordConcurrent(t *testing.T) {
	us := NewUsageStats(time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				us.RecordFilter("courses", "status", "published")
				us.RecordSort("courses", "name", "asc")
				us.RecordSearch("courses", "name")
			}
		}()
	}
	wg.Wait()

	top := us.Top("", 10)
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	expected := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expected {
			t.Errorf("expected frequency %d for %s/%s, got %d", expected, stat.Kind, stat.Field, stat.Frequency)
		}
	}
}

// TestTopOrderingAndKind tests that Top sorts by frequency and filters by kind.
func TestTopOrderingAndKind(t *testing.T) {
	us := NewUsageStats(time.Hour)

	for i := 0; i < 10; i++ {
		us.RecordFilter("courses", "status", "draft")
	}
	for i := 0; i < 5; i++ {
		us.RecordFilter("students", "cohort", "2024")
	}
	for i := 0; i < 20; i++ {
		us.RecordSort("courses", "score", "desc")
	}

	filters := us.Top(UsageFilter, 5)
	if len(filters) != 2 {
		t.Fatalf("expected 2 filter entries, got %d", len(filters))
	}
	if filters[0].Field != "status" || filters[0].Frequency != 10 {
		t.Errorf("expected status with frequency 10, got %s with %d", filters[0].Field, filters[0].Frequency)
	}
	if filters[1].View != "students" || filters[1].Frequency != 5 {
		t.Errorf("expected students/cohort with frequency 5, got %s with %d", filters[1].View, filters[1].Frequency)
	}

	all := us.Top("", 1)
	if len(all) != 1 || all[0].Kind != UsageSort {
		t.Fatalf("expected sort entry first, got %+v", all)
	}
}

// TestRecordTracksValues tests the value distribution of one field.
func TestRecordTracksValues(t *testing.T) {
	us := NewUsageStats(time.Hour)
	for i := 0; i < 3; i++ {
		us.RecordFilter("courses", "status", "draft")
	}
	us.RecordFilter("courses", "status", "published")
	us.RecordSearch("courses", "name")

	stat := us.Top(UsageFilter, 1)[0]
	if stat.Values["draft"] != 3 || stat.Values["published"] != 1 {
		t.Errorf("unexpected value distribution %v", stat.Values)
	}

	stat.Values["draft"] = 99
	if us.Top(UsageFilter, 1)[0].Values["draft"] != 3 {
		t.Error("Top must return a copy")
	}

	if search := us.Top(UsageSearch, 1)[0]; len(search.Values) != 0 {
		t.Errorf("search entries carry no values, got %v", search.Values)
	}
}

// TestPruneRemovesOldEntries tests that Prune removes entries older than the window.
func TestPruneRemovesOldEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	us := NewUsageStats(time.Minute)
	us.now = func() time.Time { return now }

	us.RecordFilter("courses", "status", "draft")
	now = now.Add(30 * time.Second)
	us.RecordSort("courses", "name", "asc")

	now = now.Add(45 * time.Second)
	us.Prune()

	top := us.Top("", 10)
	if len(top) != 1 || top[0].Kind != UsageSort {
		t.Fatalf("expected only the sort entry to survive, got %+v", top)
	}
}

func TestTopTieBreaksOnKind(t *testing.T) {
	us := NewUsageStats(time.Hour)
	us.RecordSort("courses", "status", "asc")
	us.RecordSearch("courses", "status")
	us.RecordFilter("courses", "status", "open")

	for i := 0; i < 20; i++ {
		top := us.Top("", 3)
		if len(top) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(top))
		}
		got := []string{top[0].Kind, top[1].Kind, top[2].Kind}
		want := []string{UsageFilter, UsageSearch, UsageSort}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("run %d: expected kinds %v, got %v", i, want, got)
			}
		}
	}
}

func TestTopEmpty(t *testing.T) {
	us := NewUsageStats(time.Hour)
	if top := us.Top("", 10); len(top) != 0 {
		t.Errorf("expected 0 entries, got %d", len(top))
	}
	us.RecordSearch("v", "name")
	if top := us.Top("", 0); len(top) != 0 {
		t.Errorf("expected 0 entries for n=0, got %d", len(top))
	}
}

func TestCacheStatsSnapshot(t *testing.T) {
	var s CacheStats
	if snap := s.Snapshot(); snap.HitRatio != 0 {
		t.Fatalf("empty hit ratio = %v", snap.HitRatio)
	}

	s.Hits.Add(3)
	s.Misses.Add(1)
	s.Fetches.Add(1)
	s.Joined.Add(2)

	snap := s.Snapshot()
	if snap.Hits != 3 || snap.Misses != 1 || snap.Fetches != 1 || snap.Joined != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.HitRatio != 0.75 {
		t.Fatalf("hit ratio = %v, want 0.75", snap.HitRatio)
	}
}
