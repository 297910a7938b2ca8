package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hbeckert/concierge/internal/config"
	"github.com/rs/zerolog"
)

// fakePage replays a scripted sequence of counts (via EvalInt) or titles.
// The last entry repeats once the script is exhausted.
type fakePage struct {
	counts  []int
	titles  []string
	evalErr error
	i       int
}

func (p *fakePage) EvalInt(ctx context.Context, expr string) (int, error) {
	if p.evalErr != nil {
		return 0, p.evalErr
	}
	n := p.counts[p.i]
	if p.i < len(p.counts)-1 {
		p.i++
	}
	return n, nil
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	s := p.titles[p.i]
	if p.i < len(p.titles)-1 {
		p.i++
	}
	return s, nil
}

func newTestWatcher(page Page, emit func(int)) *Watcher {
	s, err := ForConfig(config.PlatformConfig{Strategy: "badge", BadgeSelector: ".badge"})
	if err != nil {
		panic(err)
	}
	w := NewWatcher(s, page, time.Minute, nil, emit, zerolog.Nop())
	w.minGap = 0 // tests drive Check directly
	return w
}

func TestForConfig(t *testing.T) {
	for _, tc := range []struct {
		strategy string
		wantKind string
	}{
		{"badge", "badge"},
		{"dots", "dots"},
		{"title", "title"},
	} {
		s, err := ForConfig(config.PlatformConfig{Strategy: tc.strategy, BadgeSelector: "x", DotSelector: "x", DotMaxSize: 10})
		if err != nil {
			t.Fatalf("ForConfig(%s): %v", tc.strategy, err)
		}
		if s.Kind() != tc.wantKind {
			t.Errorf("Kind() = %q, want %q", s.Kind(), tc.wantKind)
		}
	}
	if _, err := ForConfig(config.PlatformConfig{Strategy: "nope"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestBadgeStrategyStale(t *testing.T) {
	s := &badgeStrategy{selector: ".badge"}
	// The sampler signals a digit-less badge as -1; Sample maps it to ErrStale.
	_, err := s.Sample(context.Background(), &fakePage{counts: []int{-1}})
	if !errors.Is(err, ErrStale) {
		t.Errorf("err = %v, want ErrStale", err)
	}
}

func TestTitleStrategy(t *testing.T) {
	s := &titleStrategy{}
	for _, tc := range []struct {
		title string
		want  int
	}{
		{"(3) Inbox", 3},
		{"Inbox", 0},
		{"(12) Messages (old)", 12},
	} {
		got, err := s.Sample(context.Background(), &fakePage{titles: []string{tc.title}})
		if err != nil {
			t.Fatalf("Sample(%q): %v", tc.title, err)
		}
		if got != tc.want {
			t.Errorf("Sample(%q) = %d, want %d", tc.title, got, tc.want)
		}
	}
}

func TestWatcherBaselineSuppressesStartupNoise(t *testing.T) {
	var emitted []int
	page := &fakePage{counts: []int{5}}
	w := newTestWatcher(page, func(d int) { emitted = append(emitted, d) })

	// First check establishes the baseline. Five pre-existing unread items
	// must not be reported as new.
	w.Check(context.Background())
	w.Check(context.Background())
	if len(emitted) != 0 {
		t.Errorf("emitted %v, want nothing", emitted)
	}
}

func TestWatcherEmitsDeltaAfterDecrease(t *testing.T) {
	var emitted []int
	page := &fakePage{counts: []int{5, 3, 3, 6}}
	w := newTestWatcher(page, func(d int) { emitted = append(emitted, d) })

	ctx := context.Background()
	w.Check(ctx) // baseline 5
	w.Check(ctx) // 3: decrease, comparison point moves, no emit
	w.Check(ctx) // 3: unchanged
	w.Check(ctx) // 6: increase over 3
	if len(emitted) != 1 || emitted[0] != 3 {
		t.Errorf("emitted %v, want [3]", emitted)
	}
}

func TestWatcherSkipsFailedSample(t *testing.T) {
	var emitted []int
	page := &fakePage{counts: []int{2}, evalErr: errors.New("boom")}
	w := newTestWatcher(page, func(d int) { emitted = append(emitted, d) })

	ctx := context.Background()
	w.Check(ctx) // fails, no baseline yet
	page.evalErr = nil
	w.Check(ctx) // establishes baseline 2
	page.counts = []int{4}
	page.i = 0
	w.Check(ctx)
	if len(emitted) != 1 || emitted[0] != 2 {
		t.Errorf("emitted %v, want [2]", emitted)
	}
}

func TestWatcherResetDropsBaseline(t *testing.T) {
	var emitted []int
	page := &fakePage{counts: []int{2, 7}}
	w := newTestWatcher(page, func(d int) { emitted = append(emitted, d) })

	ctx := context.Background()
	w.Check(ctx) // baseline 2
	w.Reset()    // navigation happened
	w.Check(ctx) // 7 re-establishes the baseline, no emit
	if len(emitted) != 0 {
		t.Errorf("emitted %v, want nothing after reset", emitted)
	}
}

func TestWatcherCoalescesRedundantTriggers(t *testing.T) {
	var samples int
	page := &fakePage{counts: []int{1}}
	s := &dotStrategy{selector: ".dot", maxSize: 14}
	w := NewWatcher(countingStrategy{s, &samples}, page, time.Minute, nil, nil, zerolog.Nop())

	ctx := context.Background()
	w.Check(ctx)
	w.Check(ctx) // inside the coalesce window, must not re-sample
	if samples != 1 {
		t.Errorf("sampled %d times, want 1", samples)
	}
}

// countingStrategy wraps a strategy and counts Sample calls.
type countingStrategy struct {
	Strategy
	n *int
}

func (c countingStrategy) Sample(ctx context.Context, p Page) (int, error) {
	*c.n++
	return c.Strategy.Sample(ctx, p)
}

func TestWatcherRunRespondsToPings(t *testing.T) {
	emitted := make(chan int, 4)
	page := &fakePage{counts: []int{0, 2}}
	s := &badgeStrategy{selector: ".badge"}
	pings := make(chan struct{}, 4)
	w := NewWatcher(s, page, time.Hour, pings, func(d int) { emitted <- d }, zerolog.Nop())
	w.minGap = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	pings <- struct{}{} // baseline 0
	pings <- struct{}{} // 2: emit delta 2
	select {
	case d := <-emitted:
		if d != 2 {
			t.Errorf("delta = %d, want 2", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no emission after mutation pings")
	}

	close(pings) // window closed; the watcher exits
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on ping channel close")
	}
}
