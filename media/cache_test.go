package media_test

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/kirin-w/timelinebackend/media"
)

func newTestStore(t *testing.T) *media.LocalStorage {
	t.Helper()
	store, err := media.NewLocalStorage(t.TempDir(), map[media.AssetType]string{
		media.AssetTypeOriginal:  "photos",
		media.AssetTypeThumbnail: "thumbnails",
		media.AssetTypeArchive:   "archives",
	})
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return store
}

// writeTestPhoto drops a real JPEG into the originals directory and returns
// its store-relative path.
func writeTestPhoto(t *testing.T, store *media.LocalStorage, name string, w, h int) string {
	t.Helper()
	img := imaging.New(w, h, color.White)
	dir, err := store.GetFullPath("photos")
	if err != nil {
		t.Fatalf("GetFullPath(photos) error = %v", err)
	}
	if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
		t.Fatalf("failed to write test photo: %v", err)
	}
	return "photos/" + name
}

func newTestCache(t *testing.T, store *media.LocalStorage) *media.ImageCache {
	t.Helper()
	return media.NewImageCache(store, media.NewProcessor(), 16, 8<<20, 1)
}

func TestImageCache_ColdFetchGeneratesAndPersists(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)
	relPath := writeTestPhoto(t, store, "a.jpg", 800, 600)

	img, err := cache.Fetch(context.Background(), relPath, media.Size{Width: 200, Height: 200})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if img.Bounds().Dx() > 200 || img.Bounds().Dy() > 200 {
		t.Errorf("thumbnail exceeds target: %v", img.Bounds())
	}

	stats := cache.Stats()
	if stats.Generated != 1 {
		t.Errorf("Generated = %d, want 1", stats.Generated)
	}

	size, count, err := store.Usage(media.AssetTypeThumbnail)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if count != 1 || size == 0 {
		t.Errorf("disk tier has %d files (%d bytes), want 1 non-empty thumbnail", count, size)
	}
}

func TestImageCache_MemoryTierConsultedFirst(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)
	relPath := writeTestPhoto(t, store, "b.jpg", 640, 480)
	size := media.Size{Width: 100, Height: 100}

	if _, err := cache.Fetch(context.Background(), relPath, size); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if _, err := cache.Fetch(context.Background(), relPath, size); err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}

	stats := cache.Stats()
	if stats.MemoryHits != 1 {
		t.Errorf("MemoryHits = %d, want 1", stats.MemoryHits)
	}
	if stats.DiskHits != 0 {
		t.Errorf("DiskHits = %d, want 0 (memory tier must serve repeat fetches)", stats.DiskHits)
	}
	if stats.Generated != 1 {
		t.Errorf("Generated = %d, want 1", stats.Generated)
	}
}

func TestImageCache_DiskTierBackfillsMemory(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)
	relPath := writeTestPhoto(t, store, "c.jpg", 640, 480)
	size := media.Size{Width: 100, Height: 100}

	if _, err := cache.Fetch(context.Background(), relPath, size); err != nil {
		t.Fatalf("warm-up Fetch() error = %v", err)
	}
	cache.PurgeMemory()

	if _, err := cache.Fetch(context.Background(), relPath, size); err != nil {
		t.Fatalf("disk-tier Fetch() error = %v", err)
	}
	if got := cache.Stats().DiskHits; got != 1 {
		t.Fatalf("DiskHits = %d, want 1", got)
	}

	// the disk hit backfilled memory; a third fetch stays in memory
	if _, err := cache.Fetch(context.Background(), relPath, size); err != nil {
		t.Fatalf("backfilled Fetch() error = %v", err)
	}
	stats := cache.Stats()
	if stats.MemoryHits != 1 || stats.DiskHits != 1 || stats.Generated != 1 {
		t.Errorf("stats = %+v, want one hit per tier", stats)
	}
}

func TestImageCache_DifferentSizesAreDistinctKeys(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)
	relPath := writeTestPhoto(t, store, "d.jpg", 800, 800)

	if _, err := cache.Fetch(context.Background(), relPath, media.Size{Width: 100, Height: 100}); err != nil {
		t.Fatalf("Fetch(100) error = %v", err)
	}
	if _, err := cache.Fetch(context.Background(), relPath, media.Size{Width: 300, Height: 300}); err != nil {
		t.Fatalf("Fetch(300) error = %v", err)
	}

	if got := cache.Stats().Generated; got != 2 {
		t.Errorf("Generated = %d, want 2 (one per size)", got)
	}
	if _, count, _ := store.Usage(media.AssetTypeThumbnail); count != 2 {
		t.Errorf("disk tier has %d files, want 2", count)
	}
}

func TestImageCache_MissingSourceReturnsNotExist(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)

	_, err := cache.Fetch(context.Background(), "photos/nope.jpg", media.Size{Width: 100, Height: 100})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Fetch() error = %v, want os.ErrNotExist", err)
	}
	if got := cache.Stats().Misses; got != 1 {
		t.Errorf("Misses = %d, want 1", got)
	}
	if _, count, _ := store.Usage(media.AssetTypeThumbnail); count != 0 {
		t.Errorf("disk tier has %d files after a miss, want 0", count)
	}
}

func TestImageCache_CorruptSourceReturnsNotExist(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)

	dir, _ := store.GetFullPath("photos")
	if err := os.WriteFile(filepath.Join(dir, "bad.jpg"), []byte("not an image"), 0644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	_, err := cache.Fetch(context.Background(), "photos/bad.jpg", media.Size{Width: 100, Height: 100})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Fetch() error = %v, want os.ErrNotExist", err)
	}
}

func TestImageCache_CancelledContextAbandonsWork(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)
	relPath := writeTestPhoto(t, store, "e.jpg", 640, 480)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Fetch(ctx, relPath, media.Size{Width: 100, Height: 100})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
	if _, count, _ := store.Usage(media.AssetTypeThumbnail); count != 0 {
		t.Errorf("disk tier has %d files after cancelled fetch, want 0", count)
	}
}

func TestImageCache_EntryCapEvictsOldest(t *testing.T) {
	store := newTestStore(t)
	cache := media.NewImageCache(store, media.NewProcessor(), 2, 8<<20, 1)
	size := media.Size{Width: 50, Height: 50}

	paths := []string{
		writeTestPhoto(t, store, "f1.jpg", 200, 200),
		writeTestPhoto(t, store, "f2.jpg", 200, 200),
		writeTestPhoto(t, store, "f3.jpg", 200, 200),
	}
	for _, p := range paths {
		if _, err := cache.Fetch(context.Background(), p, size); err != nil {
			t.Fatalf("Fetch(%s) error = %v", p, err)
		}
	}

	// f1 was evicted by f3; fetching it again must not be a memory hit
	if _, err := cache.Fetch(context.Background(), paths[0], size); err != nil {
		t.Fatalf("re-Fetch() error = %v", err)
	}
	stats := cache.Stats()
	if stats.MemoryHits != 0 {
		t.Errorf("MemoryHits = %d, want 0 (oldest entry should have been evicted)", stats.MemoryHits)
	}
	if stats.DiskHits != 1 {
		t.Errorf("DiskHits = %d, want 1 (evicted entry served from disk)", stats.DiskHits)
	}
}

func TestImageCache_FullResolutionBypassesTiers(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)
	relPath := writeTestPhoto(t, store, "g.jpg", 1200, 900)

	img, err := cache.FetchOriginal(context.Background(), relPath)
	if err != nil {
		t.Fatalf("FetchOriginal() error = %v", err)
	}
	if img.Bounds().Dx() != 1200 || img.Bounds().Dy() != 900 {
		t.Errorf("full-resolution bounds = %v, want native 1200x900", img.Bounds())
	}

	stats := cache.Stats()
	if stats.MemoryHits != 0 || stats.DiskHits != 0 || stats.Generated != 0 {
		t.Errorf("stats = %+v, want untouched tiers", stats)
	}
	if _, count, _ := store.Usage(media.AssetTypeThumbnail); count != 0 {
		t.Errorf("disk tier has %d files after full-res fetch, want 0", count)
	}
}

func TestImageCache_InvalidateRemovesAllRenditions(t *testing.T) {
	store := newTestStore(t)
	cache := newTestCache(t, store)
	relPath := writeTestPhoto(t, store, "h.jpg", 800, 800)
	other := writeTestPhoto(t, store, "i.jpg", 800, 800)

	for _, s := range []media.Size{{Width: 100, Height: 100}, {Width: 200, Height: 200}} {
		if _, err := cache.Fetch(context.Background(), relPath, s); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if _, err := cache.Fetch(context.Background(), other, media.Size{Width: 100, Height: 100}); err != nil {
		t.Fatalf("Fetch(other) error = %v", err)
	}

	cache.Invalidate(relPath)

	if _, count, _ := store.Usage(media.AssetTypeThumbnail); count != 1 {
		t.Errorf("disk tier has %d files after invalidate, want only the other photo's", count)
	}

	// repeat fetch must regenerate, not hit memory
	if _, err := cache.Fetch(context.Background(), relPath, media.Size{Width: 100, Height: 100}); err != nil {
		t.Fatalf("post-invalidate Fetch() error = %v", err)
	}
	if got := cache.Stats().Generated; got != 4 {
		t.Errorf("Generated = %d, want 4 (invalidated rendition regenerated)", got)
	}
}
