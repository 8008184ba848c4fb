// Package playlist renders the M3U playlist for the catalog and decides when the stored
// copy must be rebuilt: when it is missing, when the catalog document changed, or when
// clients fetch it often enough inside a short window.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/metrics"
	"github.com/snapetech/stalkertuner/internal/portal"
	"github.com/snapetech/stalkertuner/internal/store"
)

// Meta is stored beside the playlist text.
type Meta struct {
	RawHash     string `json:"raw_hash"`     // catalog.ContentHash of the catalog document used
	GeneratedAt int64  `json:"generated_at"` // unix seconds
}

// Regeneration reasons (also metric labels).
const (
	ReasonMissing     = "missing"
	ReasonHashChanged = "hash_changed"
	ReasonHits        = "hits"
	ReasonEmpty       = "empty"
)

// Cache owns the stored playlist, its metadata and the hit log.
type Cache struct {
	Store     store.Store
	Threshold int           // hits inside Window that force a rebuild
	Window    time.Duration
	MaxHits   int           // hit log is truncated to the most recent MaxHits entries
	Now       func() time.Time
	// RebuildTimeout bounds a regeneration. The rebuild is detached from the requesting
	// context; each caller stops waiting when its own context ends.
	RebuildTimeout time.Duration

	mu    sync.Mutex // hit log read-modify-write
	group singleflight.Group
}

// NewCache returns a Cache with threshold 5 hits per 60s and a 200-entry hit log.
func NewCache(s store.Store) *Cache {
	return &Cache{Store: s, Threshold: 5, Window: 60 * time.Second, MaxHits: 200, Now: time.Now, RebuildTimeout: 2 * time.Minute}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// RecordHit appends the current time to the hit log.
func (c *Cache) RecordHit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hits []int64
	store.LoadJSON(ctx, c.Store, store.KeyHits, &hits)
	hits = append(hits, c.now().Unix())
	if max := c.maxHits(); len(hits) > max {
		hits = hits[len(hits)-max:]
	}
	metrics.PlaylistHits.Inc()
	return store.SaveJSON(ctx, c.Store, store.KeyHits, hits)
}

func (c *Cache) maxHits() int {
	if c.MaxHits > 0 {
		return c.MaxHits
	}
	return 200
}

// ShouldRegenerate reports whether the stored playlist must be rebuilt, and why.
// When the hit threshold triggers, the hit log is cleared so the next hit starts a new count.
func (c *Cache) ShouldRegenerate(ctx context.Context) (bool, string) {
	if _, err := c.Store.Load(ctx, store.KeyPlaylist); err != nil {
		return true, ReasonMissing
	}
	var meta Meta
	if _, ok := store.LoadJSON(ctx, c.Store, store.KeyPlaylistMeta, &meta); !ok {
		return true, ReasonHashChanged
	}
	if meta.RawHash != catalog.StoredHash(ctx, c.Store) {
		return true, ReasonHashChanged
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var hits []int64
	store.LoadJSON(ctx, c.Store, store.KeyHits, &hits)
	now := c.now().Unix()
	window := int64(c.Window / time.Second)
	recent := 0
	for _, t := range hits {
		if now-t <= window {
			recent++
		}
	}
	if c.Threshold > 0 && recent >= c.Threshold {
		if err := c.Store.Delete(ctx, store.KeyHits); err != nil {
			log.WithError(err).Warn("Playlist: could not clear hit log")
		}
		return true, ReasonHits
	}
	return false, ""
}

// Save stores the playlist text, then its metadata.
func (c *Cache) Save(ctx context.Context, text, rawHash string) error {
	if err := c.Store.Save(ctx, store.KeyPlaylist, []byte(text)); err != nil {
		return fmt.Errorf("save playlist: %w", err)
	}
	meta := Meta{RawHash: rawHash, GeneratedAt: c.now().Unix()}
	if err := store.SaveJSON(ctx, c.Store, store.KeyPlaylistMeta, meta); err != nil {
		return fmt.Errorf("save playlist meta: %w", err)
	}
	return nil
}

// Load returns the stored playlist text.
func (c *Cache) Load(ctx context.Context) (string, bool) {
	doc, err := c.Store.Load(ctx, store.KeyPlaylist)
	if err != nil {
		return "", false
	}
	return string(doc.Data), true
}

// Source is the portal side a playlist build needs; *portal.Client satisfies it.
type Source interface {
	EnsureSession(ctx context.Context, force bool) (*portal.Session, error)
	Handshake(ctx context.Context) (*portal.Session, error)
	FetchChannels(ctx context.Context, sess *portal.Session) ([]catalog.Channel, error)
}

// FetchError is a channel fetch that failed even after one re-handshake.
type FetchError struct{ Err error }

func (e *FetchError) Error() string { return e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Get serves one playlist request: record the hit, ensure a session, and rebuild the
// stored playlist when ShouldRegenerate says so or the catalog is empty. Concurrent
// rebuilds collapse into one, which outlives a caller that goes away.
func (c *Cache) Get(ctx context.Context, src Source, base string) (string, error) {
	if err := c.RecordHit(ctx); err != nil {
		log.WithError(err).Warn("Playlist: hit not recorded")
	}
	sess, err := src.EnsureSession(ctx, false)
	if err != nil {
		return "", err
	}
	cat := catalog.New()
	cat.Load(ctx, c.Store)

	regen, reason := c.ShouldRegenerate(ctx)
	if !regen && cat.Len() == 0 {
		regen, reason = true, ReasonEmpty
	}
	if regen {
		ch := c.group.DoChan("playlist", func() (interface{}, error) {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.rebuildTimeout())
			defer cancel()
			return c.regenerate(rctx, src, sess, base, reason)
		})
		select {
		case res := <-ch:
			if res.Err != nil {
				return "", res.Err
			}
			if res.Shared {
				log.Debug("Playlist: joined in-flight regeneration")
			}
			return res.Val.(string), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if text, ok := c.Load(ctx); ok {
		return text, nil
	}
	return Render(cat.Snapshot(), base), nil
}

func (c *Cache) rebuildTimeout() time.Duration {
	if c.RebuildTimeout > 0 {
		return c.RebuildTimeout
	}
	return 2 * time.Minute
}

func (c *Cache) regenerate(ctx context.Context, src Source, sess *portal.Session, base, reason string) (string, error) {
	log.Printf("Regenerating playlist (%s)", reason)
	metrics.PlaylistRegenerations.WithLabelValues(reason).Inc()
	channels, err := src.FetchChannels(ctx, sess)
	if err != nil {
		log.WithError(err).Warn("Fetch channels failed, re-handshake and retry")
		fresh, herr := src.Handshake(ctx)
		if herr != nil {
			return "", &FetchError{Err: herr}
		}
		if channels, err = src.FetchChannels(ctx, fresh); err != nil {
			return "", &FetchError{Err: err}
		}
	}
	text := Render(channels, base)
	if err := c.Save(ctx, text, catalog.StoredHash(ctx, c.Store)); err != nil {
		log.WithError(err).Warn("Playlist: not persisted")
	}
	return text, nil
}

// IsFetchError reports whether err is a channel fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
