package recovery

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryCache_PutGet(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	rec := Record{DisplayName: "Ava", Region: "서울특별시", IsLocal: false}
	if err := c.Put(ctx, "acc-1", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get should return the record")
	}
	if got.DisplayName != "Ava" || got.Region != "서울특별시" || got.IsLocal {
		t.Errorf("record = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be assigned on Put")
	}
}

func TestMemoryCache_GetMissing(t *testing.T) {
	c := NewMemoryCache(0)

	got, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("missing record should be nil")
	}
}

func TestMemoryCache_ExpiredTreatedAsAbsent(t *testing.T) {
	c := NewMemoryCache(24 * time.Hour)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.nowF = func() time.Time { return now }

	rec := Record{DisplayName: "Ava", CreatedAt: now.Add(-25 * time.Hour)}
	if err := c.Put(ctx, "acc-1", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("record older than TTL should read as absent")
	}

	// Still physically present: a reader at an earlier clock can see it.
	c.nowF = func() time.Time { return now.Add(-2 * time.Hour) }
	got, err = c.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Error("expired record should not be proactively deleted")
	}
}

func TestMemoryCache_DeleteIdempotent(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	if err := c.Put(ctx, "acc-1", Record{DisplayName: "Ava"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Delete(ctx, "acc-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Second delete must not fail: concurrent reconciles race on consumption.
	if err := c.Delete(ctx, "acc-1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	got, err := c.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("deleted record should be absent")
	}
}

func TestSQLiteCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.db")
	c, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	rec := Record{DisplayName: "Ava", Region: "대전광역시", IsLocal: true}
	if err := c.Put(ctx, "acc-1", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := c.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get should return the record")
	}
	if got.DisplayName != "Ava" || got.Region != "대전광역시" || !got.IsLocal {
		t.Errorf("record = %+v", got)
	}
}

func TestSQLiteCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.db")
	ctx := context.Background()

	c, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := c.Put(ctx, "acc-1", Record{DisplayName: "Ava"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()

	got, err := c2.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got == nil || got.DisplayName != "Ava" {
		t.Errorf("record after reopen = %+v", got)
	}
}

func TestSQLiteCache_Expiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.db")
	c, err := OpenSQLite(path, 24*time.Hour)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.nowF = func() time.Time { return now }

	if err := c.Put(ctx, "old", Record{DisplayName: "Old", CreatedAt: now.Add(-25 * time.Hour)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, "fresh", Record{DisplayName: "Fresh", CreatedAt: now.Add(-23 * time.Hour)}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if got, err := c.Get(ctx, "old"); err != nil || got != nil {
		t.Errorf("expired record: got %+v, err %v", got, err)
	}
	if got, err := c.Get(ctx, "fresh"); err != nil || got == nil {
		t.Errorf("fresh record: got %+v, err %v", got, err)
	}
}

func TestSQLiteCache_DeleteIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.db")
	c, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete of missing record: %v", err)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite("", 0); err == nil {
		t.Fatal("OpenSQLite with empty path should fail")
	}
}
