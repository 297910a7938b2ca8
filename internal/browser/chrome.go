package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// mutationBinding is the CDP binding the in-page observer script calls when
// the content tree changes.
const mutationBinding = "__conciergeMutated"

// statePollInterval drives the fallback title and focus refresh. Title
// changes mostly accompany navigations, but messenger-style pages rewrite the
// title without touching the DOM we observe; and CDP has no push event for
// the user clicking between OS windows, so focus is polled too.
const statePollInterval = 5 * time.Second

// ChromeLauncher launches one Chrome process per surface. Each process gets
// its own user data directory, so cookies and local storage never cross
// accounts.
type ChromeLauncher struct {
	Log zerolog.Logger
}

// Launch starts Chrome bound to the partition directory and loads the landing
// URL. The returned surface lives until Close is called or the user closes
// the window.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOpts) (Surface, error) {
	if opts.PartitionDir == "" {
		return nil, fmt.Errorf("browser: launch: partition dir is required")
	}
	if err := os.MkdirAll(opts.PartitionDir, 0o755); err != nil {
		return nil, fmt.Errorf("browser: launch: create partition dir: %w", err)
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(opts.PartitionDir),
		chromedp.Flag("new-window", true),
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Binary != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.Binary))
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSurface{
		ctx:    tabCtx,
		events: make(chan Event, 64),
		log:    l.Log,
	}
	s.cancel = func() {
		tabCancel()
		allocCancel()
	}

	// Must be registered before the browser starts so no navigation is missed.
	chromedp.ListenTarget(tabCtx, s.handleTargetEvent)

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.AddBinding(mutationBinding).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(observerScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(opts.URL),
	)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	go s.watchClose()
	go s.pollState()
	return s, nil
}

// chromeSurface drives one Chrome window over CDP.
type chromeSurface struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	log    zerolog.Logger

	closeOnce sync.Once

	mu        sync.Mutex
	closed    bool
	lastTitle string
	lastFocus bool
}

func (s *chromeSurface) handleTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame.ParentID == "" {
			s.push(Event{Kind: Navigated, URL: e.Frame.URL})
		}
	case *page.EventNavigatedWithinDocument:
		// Single-page apps route without reloading the document.
		s.push(Event{Kind: Navigated, URL: e.URL})
	case *runtime.EventBindingCalled:
		if e.Name == mutationBinding {
			s.push(Event{Kind: MutationPing})
		}
	}
}

// push delivers an event without ever blocking the CDP dispatcher. On a full
// buffer a mutation ping is dropped outright, the interval ticker covers the
// gap; any other lifecycle event evicts the oldest queued entry instead, so a
// navigation burst cannot swallow the Navigated that re-arms detection.
func (s *chromeSurface) push(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
		return
	default:
	}
	if ev.Kind == MutationPing {
		s.log.Debug().Msg("mutation ping dropped")
		return
	}
	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug().Int("kind", int(ev.Kind)).Msg("surface event dropped")
	}
}

// watchClose turns context teardown (explicit Close or the user closing the
// window) into a final Closed event.
func (s *chromeSurface) watchClose() {
	<-s.ctx.Done()
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		// Consumers also treat channel close as closure, so a full buffer
		// cannot wedge teardown.
		select {
		case s.events <- Event{Kind: Closed}:
		default:
		}
		close(s.events)
	})
}

// pollState emits TitleChanged and FocusChanged whenever the document title
// or the window's focus state moves.
func (s *chromeSurface) pollState() {
	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if title, err := s.Title(s.ctx); err == nil {
				s.mu.Lock()
				changed := title != s.lastTitle
				s.lastTitle = title
				s.mu.Unlock()
				if changed {
					s.push(Event{Kind: TitleChanged, Title: title})
				}
			}

			var focused bool
			err := chromedp.Run(s.ctx, chromedp.Evaluate("document.hasFocus()", &focused))
			if err != nil {
				continue
			}
			s.mu.Lock()
			changed := focused != s.lastFocus
			s.lastFocus = focused
			s.mu.Unlock()
			if changed {
				s.push(Event{Kind: FocusChanged, Focused: focused})
			}
		}
	}
}

func (s *chromeSurface) Navigate(ctx context.Context, url string) error {
	if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigate: %w", err)
	}
	return nil
}

func (s *chromeSurface) Reload(ctx context.Context) error {
	if err := chromedp.Run(s.ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	return nil
}

func (s *chromeSurface) Back(ctx context.Context) error {
	if err := chromedp.Run(s.ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("browser: back: %w", err)
	}
	return nil
}

func (s *chromeSurface) Forward(ctx context.Context) error {
	if err := chromedp.Run(s.ctx, chromedp.NavigateForward()); err != nil {
		return fmt.Errorf("browser: forward: %w", err)
	}
	return nil
}

func (s *chromeSurface) Focus(ctx context.Context) error {
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("browser: focus: %w", err)
	}
	return nil
}

func (s *chromeSurface) Title(ctx context.Context) (string, error) {
	var title string
	if err := chromedp.Run(s.ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("browser: title: %w", err)
	}
	return title, nil
}

func (s *chromeSurface) EvalInt(ctx context.Context, expr string) (int, error) {
	var n int
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, fmt.Errorf("browser: evaluate: %w", err)
	}
	return n, nil
}

func (s *chromeSurface) Events() <-chan Event {
	return s.events
}

func (s *chromeSurface) Close() error {
	s.cancel()
	return nil
}
