// Package focuswatch supplies pkg/orchestrator with the currently-focused
// window handle, so Live mode has a capture target without the caller
// passing one on every iteration (SPEC_FULL.md §6). It is a direct
// generalization of the teacher's pkg/tracker/etw.Consumer: the same
// "subscribe to the Win32k ETW provider, fall back to polling if the
// session can't be created" shape (tekert/golang-etw), with the polling
// fallback itself generalized from pkg/tracker/window.go's ticker +
// stable-since hysteresis loop instead of duplicating that logic.
package focuswatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tekert/golang-etw/etw"

	"scanlate/pkg/capture"
)

// Win32kProviderGUID is the Microsoft-Windows-Win32k ETW provider, which
// emits window-focus-change events.
const Win32kProviderGUID = "{8c416c79-d49b-4f01-a467-e56d3aa8234c}"

// PollInterval is the fallback poller's sampling interval.
const PollInterval = 250 * time.Millisecond

// StableFor is how long the foreground window must stay unchanged before
// the fallback poller reports it, damping rapid focus flicker (e.g.
// alt-tab cycling) the same way pkg/tracker/window.go's poll loop does.
const StableFor = 500 * time.Millisecond

// Watcher reports focus-change events on Changes(). Exactly one of ETW or
// polling is active at a time: ETW is tried first, and any failure to
// create or start the session falls back to polling for the lifetime of
// the Watcher, mirroring the teacher's Consumer.fallbackMode.
type Watcher struct {
	changes  chan uintptr
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	fallback atomic.Bool
	dropped  atomic.Int64
}

// Start creates and starts a Watcher. It never returns an error: if ETW
// cannot be used, the Watcher transparently falls back to polling.
func Start() *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		changes: make(chan uintptr, 16),
		cancel:  cancel,
	}

	if !w.startETW(ctx) {
		w.fallback.Store(true)
		w.wg.Add(1)
		go w.poll(ctx)
	}
	return w
}

// Changes returns the channel of focus-changed window handles. A full
// buffer drops the oldest pending handle rather than blocking the ETW or
// polling goroutine, so the most recent focus change is always kept.
func (w *Watcher) Changes() <-chan uintptr {
	return w.changes
}

// IsFallbackMode reports whether the Watcher fell back to polling because
// an ETW session or consumer could not be created/started.
func (w *Watcher) IsFallbackMode() bool {
	return w.fallback.Load()
}

// Dropped returns how many focus-change notifications were dropped due to
// backpressure.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// Close stops the watcher's background goroutine(s) and closes Changes().
func (w *Watcher) Close() {
	w.cancel()
	w.wg.Wait()
	close(w.changes)
}

func (w *Watcher) startETW(ctx context.Context) bool {
	session := etw.NewRealTimeSession("ScanlateFocusSession")
	if session == nil {
		return false
	}
	consumer := etw.NewConsumer(ctx)
	if consumer == nil {
		return false
	}
	if err := session.EnableProvider(etw.MustParseProvider(Win32kProviderGUID)); err != nil {
		return false
	}

	consumer.FromSessions(session)
	consumer.ProcessEvents(func(e *etw.Event) {
		defer e.Release()
		hwnd := capture.ForegroundWindow()
		w.publish(hwnd)
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_ = consumer.Start()
		<-ctx.Done()
		_ = consumer.Stop()
		_ = session.StopTracing()
	}()
	return true
}

func (w *Watcher) poll(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var (
		lastHwnd     uintptr
		stableSince  time.Time
		reportedHwnd uintptr
	)
	stableSince = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := capture.ForegroundWindow()
			if current != lastHwnd {
				lastHwnd = current
				stableSince = time.Now()
				continue
			}
			if time.Since(stableSince) >= StableFor && current != reportedHwnd {
				reportedHwnd = current
				w.publish(current)
			}
		}
	}
}

func (w *Watcher) publish(hwnd uintptr) {
	select {
	case w.changes <- hwnd:
	default:
		select {
		case <-w.changes:
			w.dropped.Add(1)
		default:
		}
		select {
		case w.changes <- hwnd:
		default:
			w.dropped.Add(1)
		}
	}
}
