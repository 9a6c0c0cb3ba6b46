package panorama

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"treewalk/pkg/domain"
)

// CacheObserver counts cache hits and misses.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

type noopCacheObserver struct{}

func (noopCacheObserver) CacheHit()  {}
func (noopCacheObserver) CacheMiss() {}

// CachedFinder memoizes successful lookups for a TTL. Keys round coordinates
// to five decimals (about one meter). Failures are never cached.
type CachedFinder struct {
	next     Finder
	cache    *cache.Cache
	observer CacheObserver
}

// NewCachedFinder wraps next with a TTL cache. observer may be nil.
// Expiry is lazy: no cleanup goroutine runs, expired entries are dropped on
// the next miss.
func NewCachedFinder(next Finder, ttl time.Duration, observer CacheObserver) *CachedFinder {
	if observer == nil {
		observer = noopCacheObserver{}
	}
	return &CachedFinder{next: next, cache: cache.New(ttl, 0), observer: observer}
}

// Nearest implements Finder.
func (c *CachedFinder) Nearest(ctx context.Context, at domain.LatLng, radius float64) (NearestImage, error) {
	key := cacheKey(at, radius)
	if cached, found := c.cache.Get(key); found {
		if img, ok := cached.(NearestImage); ok {
			c.observer.CacheHit()
			img.Lat, img.Lng = at.Lat, at.Lng
			return img, nil
		}
	}
	c.observer.CacheMiss()
	c.cache.DeleteExpired()
	img, err := c.next.Nearest(ctx, at, radius)
	if err != nil {
		return img, err
	}
	c.cache.Set(key, img, cache.DefaultExpiration)
	return img, nil
}

// Close drops every cached entry.
func (c *CachedFinder) Close() error {
	c.cache.Flush()
	return nil
}

func cacheKey(at domain.LatLng, radius float64) string {
	return fmt.Sprintf("%.5f:%.5f:%g", at.Lat, at.Lng, radius)
}
