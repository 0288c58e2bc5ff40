// Package s3bridge is the Go rendering of the sync/async bridge that the
// original (Rust/tokio) implementation needed to drive async futures from
// synchronous call sites.
//
// Go has no colored functions: every goroutine can already call a blocking
// function, so there is no "is a runtime already driving me" question to
// answer. What does remain from the original design is useful on its own
// merits: request collapsing, so that two callers racing on the same cache
// miss issue one underlying request instead of two. Bridge provides that,
// fronted by singleflight.
//
// An earlier revision also bounded background (spawned) work through a
// goroutine pool borrowed from internal/executor, mirroring the original's
// spawn_async. Nothing in this module ever needed to run work off the
// caller's goroutine this way, so that half was dropped rather than kept
// unwired: see DESIGN.md.
package s3bridge

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Bridge deduplicates concurrent calls submitted from the synchronous
// reader/writer APIs that share a key.
type Bridge struct {
	grp singleflight.Group
}

// New returns a new, independent Bridge.
func New() *Bridge {
	return &Bridge{}
}

var (
	defaultBridge     *Bridge
	defaultBridgeOnce sync.Once
)

// Default returns the process-wide Bridge, lazily constructing it on first
// use. This plays the role of the original design's lazily-initialized
// process-wide runtime.
func Default() *Bridge {
	defaultBridgeOnce.Do(func() {
		defaultBridge = New()
	})
	return defaultBridge
}

// Do runs fn synchronously and returns its result, collapsing concurrent
// calls that share key into a single invocation of fn: the second caller to
// arrive while the first is still in flight blocks until the first
// completes and observes its result rather than invoking fn again. This is
// the bridge's rendering of "concurrent misses for the same block are
// serialized; the second caller observes the first insertion."
func (b *Bridge) Do(key string, fn func() (any, error)) (any, error) {
	v, err, _ := b.grp.Do(key, fn)
	return v, err
}
