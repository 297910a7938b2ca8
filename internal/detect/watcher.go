package detect

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// coalesceWindow suppresses redundant checks when the ticker and a mutation
// ping fire together.
const coalesceWindow = 200 * time.Millisecond

// Watcher runs the baseline-then-delta loop for one window. The first sample
// after a (re-)injection establishes the baseline and emits nothing, so
// pre-existing unread items are not reported as new. Subsequent increases
// emit their delta; decreases only move the comparison point (the user read
// something locally).
type Watcher struct {
	strategy Strategy
	page     Page
	interval time.Duration
	pings    <-chan struct{}
	emit     func(delta int)
	log      zerolog.Logger

	mu          sync.Mutex
	minGap      time.Duration
	previous    int
	established bool
	lastCheck   time.Time
}

// NewWatcher builds a watcher. emit is called synchronously from the
// watcher's goroutine, one call per detected increase, in order.
func NewWatcher(strategy Strategy, page Page, interval time.Duration, pings <-chan struct{}, emit func(delta int), log zerolog.Logger) *Watcher {
	return &Watcher{
		strategy: strategy,
		page:     page,
		interval: interval,
		pings:    pings,
		emit:     emit,
		log:      log,
		minGap:   coalesceWindow,
	}
}

// Run drives checks from the interval ticker and the mutation ping channel
// until ctx is cancelled or the ping channel closes.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		case _, ok := <-w.pings:
			if !ok {
				return
			}
			w.Check(ctx)
		}
	}
}

// Check samples once and compares against the baseline. Safe to call from
// either trigger; redundant calls inside the coalesce window no-op.
func (w *Watcher) Check(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if w.minGap > 0 && now.Sub(w.lastCheck) < w.minGap {
		return
	}
	w.lastCheck = now

	count, err := w.strategy.Sample(ctx, w.page)
	if err != nil {
		// Unstable third-party DOM; skip the tick and retry on the next
		// trigger.
		w.log.Debug().Err(err).Str("strategy", w.strategy.Kind()).Msg("sample failed")
		return
	}

	if !w.established {
		w.previous = count
		w.established = true
		return
	}
	if count > w.previous && w.emit != nil {
		w.emit(count - w.previous)
	}
	w.previous = count
}

// Reset drops the baseline. Called after every navigation so the fresh page
// state is not reported as new activity.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.established = false
	w.previous = 0
	w.lastCheck = time.Time{}
}
