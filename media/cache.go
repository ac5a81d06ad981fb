package media

import (
	"bytes"
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

// CacheStats exposes the tier counters for tests and the storage report.
type CacheStats struct {
	MemoryHits int64 `json:"memory_hits"`
	DiskHits   int64 `json:"disk_hits"`
	Generated  int64 `json:"generated"`
	Misses     int64 `json:"misses"`
}

// cacheEntry is one resident decoded thumbnail in the memory tier.
type cacheEntry struct {
	key  string
	img  image.Image
	cost int64 // estimated decoded size in bytes
}

// ImageCache is the three-tier thumbnail pipeline: a bounded in-memory LRU,
// a persisted disk tier of encoded thumbnails, and an on-demand downsampling
// generator. One instance is shared for the process lifetime and is safe for
// concurrent use. Concurrent fetches for the same key may both reach the
// generation tier; the disk write is atomic and generation is idempotent, so
// last-writer-wins is harmless.
type ImageCache struct {
	store Store
	proc  *Processor

	scale      int // display scale factor applied to requested sizes
	maxEntries int
	maxBytes   int64

	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List // front = most recently used
	curBytes int64

	memoryHits atomic.Int64
	diskHits   atomic.Int64
	generated  atomic.Int64
	misses     atomic.Int64
}

// NewImageCache builds the shared cache. maxEntries and maxBytes bound the
// memory tier; scale is the device scale factor (points to pixels).
func NewImageCache(store Store, proc *Processor, maxEntries int, maxBytes int64, scale int) *ImageCache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	if scale <= 0 {
		scale = 1
	}
	return &ImageCache{
		store:      store,
		proc:       proc,
		scale:      scale,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
	}
}

// pathDigest identifies a source photo on disk-tier filenames. Stored photos
// are immutable uuid-named files, so the path alone identifies content.
func pathDigest(sourceRelPath string) string {
	sum := sha256.Sum256([]byte(sourceRelPath))
	return hex.EncodeToString(sum[:8])
}

// cacheKey is the composite (content, dimensions) key shared by the memory
// and disk tiers.
func (c *ImageCache) cacheKey(sourceRelPath string, target Size) string {
	return fmt.Sprintf("%s_%dx%d", pathDigest(sourceRelPath), target.Width, target.Height)
}

// scaled converts a requested display size to decode pixels.
func (c *ImageCache) scaled(size Size) Size {
	return Size{Width: size.Width * c.scale, Height: size.Height * c.scale}
}

// Fetch returns a decoded thumbnail for the photo at sourceRelPath sized to
// fit size (in display points). Tier order: memory, disk, generation. A
// missing or undecodable source yields os.ErrNotExist so callers can show a
// placeholder. ctx cancellation is honored at each tier boundary.
func (c *ImageCache) Fetch(ctx context.Context, sourceRelPath string, size Size) (image.Image, error) {
	target := c.scaled(size)
	key := c.cacheKey(sourceRelPath, target)

	if img, ok := c.memoryGet(key); ok {
		c.memoryHits.Add(1)
		return img, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if img, ok := c.diskGet(key); ok {
		c.diskHits.Add(1)
		c.memoryPut(key, img)
		return img, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := c.store.GetFullPath(sourceRelPath)
	if err != nil {
		c.misses.Add(1)
		return nil, os.ErrNotExist
	}
	img, err := c.proc.Downsample(fullPath, target)
	if err != nil {
		// missing or corrupt source: not fatal, caller shows a placeholder
		c.misses.Add(1)
		return nil, os.ErrNotExist
	}
	c.generated.Add(1)
	c.memoryPut(key, img)

	if ctx.Err() == nil {
		c.persist(key, img)
	}

	return img, nil
}

// FetchOriginal decodes the source at native resolution for the detail
// view. It bypasses every tier on purpose: full-resolution bitmaps would
// evict the entire thumbnail working set from the memory cache.
func (c *ImageCache) FetchOriginal(ctx context.Context, sourceRelPath string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := c.store.GetFullPath(sourceRelPath)
	if err != nil {
		return nil, os.ErrNotExist
	}
	img, err := c.proc.DecodeFull(fullPath)
	if err != nil {
		return nil, os.ErrNotExist
	}
	return img, nil
}

// Warm pre-generates the standard thumbnail for a freshly imported photo so
// the first timeline render hits the disk tier.
func (c *ImageCache) Warm(ctx context.Context, sourceRelPath string, size Size) {
	if _, err := c.Fetch(ctx, sourceRelPath, size); err != nil && ctx.Err() == nil {
		log.Printf("cache: warm failed for %s: %v", sourceRelPath, err)
	}
}

// Invalidate drops every cached rendition of a source photo from both the
// memory and disk tiers. Called when the photo is deleted.
func (c *ImageCache) Invalidate(sourceRelPath string) {
	prefix := pathDigest(sourceRelPath)

	c.mu.Lock()
	for key, elem := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.removeLocked(elem)
		}
	}
	c.mu.Unlock()

	if err := c.store.DeletePrefix(AssetTypeThumbnail, prefix); err != nil {
		log.Printf("cache: failed to remove disk thumbnails for %s: %v", sourceRelPath, err)
	}
}

// PurgeMemory empties the memory tier.
func (c *ImageCache) PurgeMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.curBytes = 0
}

// PurgeDisk empties the disk tier. Always safe: thumbnails are regenerable.
func (c *ImageCache) PurgeDisk() error {
	c.PurgeMemory()
	return c.store.Purge(AssetTypeThumbnail)
}

// Stats returns a snapshot of the tier counters.
func (c *ImageCache) Stats() CacheStats {
	return CacheStats{
		MemoryHits: c.memoryHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Generated:  c.generated.Load(),
		Misses:     c.misses.Load(),
	}
}

// --- memory tier ---

func (c *ImageCache) memoryGet(key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).img, true
}

func (c *ImageCache) memoryPut(key string, img image.Image) {
	bounds := img.Bounds()
	cost := int64(bounds.Dx()) * int64(bounds.Dy()) * 4

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		c.curBytes += cost - entry.cost
		entry.img, entry.cost = img, cost
	} else {
		elem := c.lru.PushFront(&cacheEntry{key: key, img: img, cost: cost})
		c.entries[key] = elem
		c.curBytes += cost
	}

	// evict from the cold end while over either limit
	for (c.lru.Len() > c.maxEntries || c.curBytes > c.maxBytes) && c.lru.Len() > 1 {
		c.removeLocked(c.lru.Back())
	}
}

func (c *ImageCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.entries, entry.key)
	c.curBytes -= entry.cost
}

// --- disk tier ---

func (c *ImageCache) diskGet(key string) (image.Image, bool) {
	reader, _, err := c.store.OpenAsset(AssetTypeThumbnail, key+ThumbnailFileExtension)
	if err != nil {
		return nil, false
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		// corrupt cache file: drop it and fall through to regeneration
		_ = c.store.DeletePrefix(AssetTypeThumbnail, key)
		return nil, false
	}
	return img, true
}

// persist writes a generated thumbnail to the disk tier. Best effort: the
// cache is not authoritative and write failures only cost a regeneration.
func (c *ImageCache) persist(key string, img image.Image) {
	data, err := c.proc.EncodeThumbnail(img)
	if err != nil {
		log.Printf("cache: failed to encode thumbnail %s: %v", key, err)
		return
	}
	if _, err := c.store.Save(AssetTypeThumbnail, key+ThumbnailFileExtension, bytes.NewReader(data)); err != nil {
		log.Printf("cache: failed to persist thumbnail %s: %v", key, err)
	}
}
