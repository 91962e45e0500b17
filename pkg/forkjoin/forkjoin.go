// Package forkjoin implements C8: launching the cloud translation task in
// parallel with OCR+text-gate, reconciling results, and maintaining a
// bounded per-window image-hash result cache so an unchanged region of a
// window never re-pays for a cloud call.
package forkjoin

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"scanlate/pkg/cloudtranslate"
	"scanlate/pkg/model"
)

// CacheSize is the default bound on the cloud-result cache (spec.md §4.7).
const CacheSize = 32

// CacheKey scopes a cached cloud result to the window it was produced for,
// since the same image bytes from two different windows must not be
// conflated; this is also the documented collision-mitigation boundary
// (DESIGN.md): a 64-bit hash collision within one window's history is the
// entire blast radius.
type CacheKey struct {
	WindowHandle uintptr
	ImageHash    uint64
}

// ImageHash returns a 64-bit hash of downscaled image bytes (spec.md §4.7
// step 1), computed with cespare/xxhash/v2 — promoted here from a library
// only ghjramos-aistore in the retrieval pack depends on, since xxhash's
// 64-bit width keeps collision probability far below the spec's 2⁻³⁰
// bound for realistic per-window image counts.
func ImageHash(jpegBytes []byte) uint64 {
	return xxhash.Sum64(jpegBytes)
}

// Precondition is the spawn gate from spec.md §4.7: "cloud engine entitled
// ∧ enabled ∧ local-only mode off ∧ image data present ∧ session token
// present".
type Precondition struct {
	CloudEntitled    bool
	CloudEnabled     bool
	LocalOnlyMode    bool
	ImageDataPresent bool
	SessionToken     string
}

// Holds reports whether the Fork-Join preconditions are satisfied.
func (p Precondition) Holds() bool {
	return p.CloudEntitled && p.CloudEnabled && !p.LocalOnlyMode && p.ImageDataPresent && p.SessionToken != ""
}

// Coordinator owns the bounded cloud-result cache and spawns/cancels the
// cloud child task per iteration.
type Coordinator struct {
	client *cloudtranslate.Client
	cache  *lru.Cache[CacheKey, *model.CloudTranslationResult]
}

// New builds a Coordinator with a cache bounded to CacheSize entries.
func New(client *cloudtranslate.Client) *Coordinator {
	cache, _ := lru.New[CacheKey, *model.CloudTranslationResult](CacheSize)
	return &Coordinator{client: client, cache: cache}
}

// Reset clears the cache, called on orchestrator reset_state().
func (c *Coordinator) Reset() {
	c.cache.Purge()
}

// Task represents one iteration's cloud child, whether it came from cache,
// was spawned, or was skipped entirely because the preconditions failed.
type Task struct {
	// CacheHit is true when Start resolved immediately from the cache
	// without spawning C6.
	CacheHit bool
	// Spawned is true when a cloud call is actually running in the
	// background; Spawned and CacheHit are mutually exclusive.
	Spawned bool

	cached *model.CloudTranslationResult
	cancel context.CancelFunc
	doneCh chan struct{}

	mu     sync.Mutex
	result *model.CloudTranslationResult
}

// Start runs Fork-Join step 1-3 for a cache key the caller computed: return
// immediately on a cache hit, otherwise spawn the cloud call if precond
// holds.
func (c *Coordinator) Start(ctx context.Context, windowHandle uintptr, key CacheKey, req cloudtranslate.Request, precond Precondition) *Task {
	if cached, ok := c.cache.Get(key); ok {
		return &Task{CacheHit: true, cached: cached}
	}
	if !precond.Holds() {
		return &Task{}
	}

	childCtx, cancel := context.WithCancel(ctx)
	t := &Task{Spawned: true, cancel: cancel, doneCh: make(chan struct{})}

	go func() {
		defer close(t.doneCh)
		result, err := cloudtranslate.TranslateCloud(childCtx, c.client, req)
		if err != nil || result == nil {
			return
		}
		t.mu.Lock()
		t.result = result
		t.mu.Unlock()
		if result.Success {
			c.cache.Add(key, result)
		}
	}()

	return t
}

// Cancel discards an in-flight cloud child (spec.md §4.7 step 5: called
// when OCR produced zero chunks or the text-change gate rejected). A no-op
// for cache hits or never-spawned tasks.
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Await blocks (respecting ctx) for a spawned task to finish, or returns
// immediately for a cache hit / never-spawned task.
func (t *Task) Await(ctx context.Context) (*model.CloudTranslationResult, bool) {
	if t.CacheHit {
		return t.cached, true
	}
	if !t.Spawned {
		return nil, false
	}
	select {
	case <-t.doneCh:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, t.result != nil
	case <-ctx.Done():
		return nil, false
	}
}
