package playlist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/portal"
	"github.com/snapetech/stalkertuner/internal/store"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache() (*Cache, *store.Memory, *fixedClock) {
	clk := &fixedClock{t: time.Unix(1_700_000_000, 0)}
	mem := store.NewMemory()
	mem.Now = clk.Now
	c := NewCache(mem)
	c.Now = clk.Now
	return c, mem, clk
}

func saveCatalog(t *testing.T, s store.Store, names ...string) string {
	t.Helper()
	var chs []catalog.Channel
	for _, n := range names {
		chs = append(chs, catalog.Channel{"name": n, "cmd": "http://x/" + n})
	}
	cat := catalog.New()
	cat.Replace(chs)
	h, err := cat.Save(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestShouldRegenerate_missingAndHashChange(t *testing.T) {
	c, mem, _ := newTestCache()
	ctx := context.Background()

	if regen, why := c.ShouldRegenerate(ctx); !regen || why != ReasonMissing {
		t.Fatalf("no playlist: %v %s", regen, why)
	}

	h := saveCatalog(t, mem, "a")
	if err := c.Save(ctx, "#EXTM3U", h); err != nil {
		t.Fatal(err)
	}
	if regen, _ := c.ShouldRegenerate(ctx); regen {
		t.Fatal("fresh playlist reported stale")
	}

	saveCatalog(t, mem, "a", "b")
	if regen, why := c.ShouldRegenerate(ctx); !regen || why != ReasonHashChanged {
		t.Fatalf("catalog changed: %v %s", regen, why)
	}
	// Still stale until the playlist is regenerated.
	if regen, _ := c.ShouldRegenerate(ctx); !regen {
		t.Fatal("hash change forgotten without regeneration")
	}

	_ = mem.Delete(ctx, store.KeyPlaylistMeta)
	if regen, why := c.ShouldRegenerate(ctx); !regen || why != ReasonHashChanged {
		t.Fatalf("meta missing: %v %s", regen, why)
	}
}

func TestShouldRegenerate_hitWindow(t *testing.T) {
	c, mem, clk := newTestCache()
	ctx := context.Background()
	h := saveCatalog(t, mem, "a")
	if err := c.Save(ctx, "#EXTM3U", h); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		c.RecordHit(ctx)
		clk.Advance(time.Second)
		if regen, _ := c.ShouldRegenerate(ctx); regen {
			t.Fatalf("hit %d triggered early", i+1)
		}
	}
	c.RecordHit(ctx)
	if regen, why := c.ShouldRegenerate(ctx); !regen || why != ReasonHits {
		t.Fatalf("5th hit: %v %s", regen, why)
	}
	if _, err := mem.Load(ctx, store.KeyHits); err != store.ErrNotFound {
		t.Fatal("hit log not cleared")
	}
	c.RecordHit(ctx)
	if regen, _ := c.ShouldRegenerate(ctx); regen {
		t.Fatal("6th near-simultaneous hit forced another regeneration")
	}

	// Hits older than the window do not count.
	_ = mem.Delete(ctx, store.KeyHits)
	for i := 0; i < 4; i++ {
		c.RecordHit(ctx)
	}
	clk.Advance(61 * time.Second)
	c.RecordHit(ctx)
	if regen, _ := c.ShouldRegenerate(ctx); regen {
		t.Fatal("stale hits counted")
	}
}

func TestRecordHit_capped(t *testing.T) {
	c, mem, _ := newTestCache()
	c.MaxHits = 3
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := c.RecordHit(ctx); err != nil {
			t.Fatal(err)
		}
	}
	var hits []int64
	store.LoadJSON(ctx, mem, store.KeyHits, &hits)
	if len(hits) != 3 {
		t.Errorf("hit log len = %d, want 3", len(hits))
	}
}

// fakeSource stands in for *portal.Client.
type fakeSource struct {
	fetches     int32
	handshakes  int32
	failFetches int32 // number of leading FetchChannels calls that fail
	channels    []catalog.Channel
	store       store.Store
	sessionErr  error
	gate        chan struct{}
}

func (f *fakeSource) EnsureSession(ctx context.Context, force bool) (*portal.Session, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return &portal.Session{Token: "t"}, nil
}

func (f *fakeSource) Handshake(ctx context.Context) (*portal.Session, error) {
	atomic.AddInt32(&f.handshakes, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &portal.Session{Token: "t2"}, nil
}

func (f *fakeSource) FetchChannels(ctx context.Context, sess *portal.Session) ([]catalog.Channel, error) {
	n := atomic.AddInt32(&f.fetches, 1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= f.failFetches {
		return nil, errors.New("portal down")
	}
	data, _ := catalog.Encode(f.channels)
	f.store.Save(ctx, store.KeyChannels, data)
	return f.channels, nil
}

func TestGet_regeneratesThenServesStored(t *testing.T) {
	c, mem, _ := newTestCache()
	ctx := context.Background()
	src := &fakeSource{store: mem, channels: []catalog.Channel{{"name": "A", "category": "News"}, {"name": "B"}}}

	text, err := c.Get(ctx, src, "http://t")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "http://t/getlink/1") || src.fetches != 1 {
		t.Fatalf("text=%q fetches=%d", text, src.fetches)
	}
	stored, ok := c.Load(ctx)
	if !ok || stored != text {
		t.Fatal("playlist not stored")
	}

	text2, err := c.Get(ctx, src, "http://t")
	if err != nil || text2 != text || src.fetches != 1 {
		t.Fatalf("second Get refetched: fetches=%d err=%v", src.fetches, err)
	}
}

func TestGet_fetchFailureRehandshakes(t *testing.T) {
	c, mem, _ := newTestCache()
	ctx := context.Background()
	src := &fakeSource{store: mem, failFetches: 1, channels: []catalog.Channel{{"name": "A"}}}
	if _, err := c.Get(ctx, src, "http://t"); err != nil {
		t.Fatal(err)
	}
	if src.fetches != 2 || src.handshakes != 1 {
		t.Errorf("fetches=%d handshakes=%d", src.fetches, src.handshakes)
	}

	c2, mem2, _ := newTestCache()
	src2 := &fakeSource{store: mem2, failFetches: 5}
	_, err := c2.Get(ctx, src2, "http://t")
	if !IsFetchError(err) || err.Error() != "portal down" {
		t.Fatalf("err = %v", err)
	}
	if src2.fetches != 2 {
		t.Errorf("fetches = %d, want 2", src2.fetches)
	}
}

func TestGet_sessionFailure(t *testing.T) {
	c, mem, _ := newTestCache()
	src := &fakeSource{store: mem, sessionErr: portal.ErrNoToken}
	_, err := c.Get(context.Background(), src, "http://t")
	if !errors.Is(err, portal.ErrNoToken) || IsFetchError(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestGet_concurrentRegenerationsCollapse(t *testing.T) {
	c, mem, _ := newTestCache()
	c.Threshold = 1000
	src := &fakeSource{store: mem, channels: []catalog.Channel{{"name": "A"}}, gate: make(chan struct{})}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), src, "http://t")
			errs <- err
		}()
	}
	// Let every goroutine reach the regeneration before releasing the fetch.
	for atomic.LoadInt32(&src.fetches) == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt32(&src.fetches); got >= n {
		t.Errorf("fetches = %d; concurrent regenerations did not collapse", got)
	}
}

func TestGet_sharedRegenerationSurvivesCancelledCaller(t *testing.T) {
	c, mem, _ := newTestCache()
	c.Threshold = 1000
	src := &fakeSource{store: mem, channels: []catalog.Channel{{"name": "A"}}, gate: make(chan struct{})}

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(firstCtx, src, "http://t")
		firstErr <- err
	}()
	for atomic.LoadInt32(&src.fetches) == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		text string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		text, err := c.Get(context.Background(), src, "http://t")
		second <- result{text, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting on the regeneration")
	}

	close(src.gate)
	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("live caller err = %v", r.err)
		}
		if !strings.Contains(r.text, "http://t/getlink/0") {
			t.Errorf("text = %q", r.text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live caller never got the playlist")
	}
	if got := atomic.LoadInt32(&src.fetches); got != 1 {
		t.Errorf("fetches = %d, want 1 shared regeneration", got)
	}
	if got := atomic.LoadInt32(&src.handshakes); got != 0 {
		t.Errorf("handshakes = %d, want 0", got)
	}
}
