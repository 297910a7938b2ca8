// Package supervisor creates, focuses and destroys the isolated browser
// windows, and arms detection inside each one.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hbeckert/concierge/internal/bridge"
	"github.com/hbeckert/concierge/internal/browser"
	"github.com/hbeckert/concierge/internal/config"
	"github.com/hbeckert/concierge/internal/detect"
	"github.com/hbeckert/concierge/internal/models"
	"github.com/hbeckert/concierge/internal/registry"
	"github.com/hbeckert/concierge/internal/store"
	"github.com/rs/zerolog"
)

// ErrNotOpen means the account has a binding but no live window.
var ErrNotOpen = errors.New("supervisor: window not open")

// OpenResult reports how an open request was satisfied.
type OpenResult int

const (
	// Opened means a new window was created.
	Opened OpenResult = iota + 1
	// Focused means a live window already existed and was brought to the
	// front instead. Not an error; open is idempotent for the UI.
	Focused
)

func (r OpenResult) String() string {
	switch r {
	case Opened:
		return "opened"
	case Focused:
		return "focused"
	}
	return "unknown"
}

// Opts wires a Supervisor.
type Opts struct {
	Registry  *registry.Registry
	Launcher  browser.Launcher
	Bus       *bridge.Bus
	Store     *store.Store
	DataDir   string
	Browser   config.BrowserConfig
	Platforms map[models.Platform]config.PlatformConfig
	Log       zerolog.Logger
}

// Supervisor owns window lifecycles. Open and close flows are serialized so
// two interleaved opens for one account cannot both create a window; the
// second degrades to focus.
type Supervisor struct {
	reg      *registry.Registry
	launcher browser.Launcher
	bus      *bridge.Bus
	store    *store.Store
	dataDir  string
	browser  config.BrowserConfig
	log      zerolog.Logger
	baseCtx  context.Context

	mu      sync.Mutex
	pending map[string]struct{}

	tuningMu  sync.RWMutex
	platforms map[models.Platform]config.PlatformConfig
}

// New builds a Supervisor. ctx bounds the lifetime of every window it
// launches; cancelling it tears all surfaces down.
func New(ctx context.Context, opts Opts) *Supervisor {
	s := &Supervisor{
		reg:       opts.Registry,
		launcher:  opts.Launcher,
		bus:       opts.Bus,
		store:     opts.Store,
		dataDir:   opts.DataDir,
		browser:   opts.Browser,
		log:       opts.Log,
		baseCtx:   ctx,
		pending:   make(map[string]struct{}),
		platforms: opts.Platforms,
	}
	opts.Registry.SetPurger(s)
	return s
}

// SetTuning swaps the platform tuning. Existing windows keep their armed
// watchers; new windows and re-injections pick up the new values.
func (s *Supervisor) SetTuning(platforms map[models.Platform]config.PlatformConfig) {
	s.tuningMu.Lock()
	s.platforms = platforms
	s.tuningMu.Unlock()
}

func (s *Supervisor) tuningFor(p models.Platform) config.PlatformConfig {
	s.tuningMu.RLock()
	defer s.tuningMu.RUnlock()
	return s.platforms[p]
}

// Purge removes an account's storage partition. Implements registry.Purger.
func (s *Supervisor) Purge(partitionKey string) error {
	return browser.PurgePartition(s.dataDir, partitionKey)
}

// Open creates the account's window, or focuses it when one is already live.
// A failed launch leaves the registry unchanged.
func (s *Supervisor) Open(ctx context.Context, id string) (OpenResult, error) {
	s.mu.Lock()
	b, ok := s.reg.Get(id)
	if !ok {
		s.mu.Unlock()
		return 0, registry.ErrNotFound
	}
	if s.reg.IsOpen(id) {
		s.mu.Unlock()
		if err := s.Focus(ctx, id); err != nil {
			s.log.Debug().Err(err).Str("account", id).Msg("focus on reopen failed")
		}
		return Focused, nil
	}
	if _, inFlight := s.pending[id]; inFlight {
		// Another open is mid-launch; it wins, we degrade.
		s.mu.Unlock()
		return Focused, nil
	}
	s.pending[id] = struct{}{}
	s.mu.Unlock()

	tun := s.tuningFor(b.Platform)
	surface, err := s.launcher.Launch(s.baseCtx, browser.LaunchOpts{
		PartitionDir: browser.PartitionDir(s.dataDir, b.PartitionKey),
		UserAgent:    tun.UserAgent,
		URL:          tun.LandingURL,
		Binary:       s.browser.Binary,
		Headless:     s.browser.Headless,
	})

	s.mu.Lock()
	delete(s.pending, id)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("supervisor: open %s: %w", id, err)
	}
	if err := s.reg.Attach(id, surface, tun.LandingURL); err != nil {
		s.mu.Unlock()
		_ = surface.Close()
		if errors.Is(err, registry.ErrAlreadyOpen) {
			return Focused, nil
		}
		return 0, fmt.Errorf("supervisor: open %s: %w", id, err)
	}
	s.mu.Unlock()
	s.reg.SetFocused(id)

	s.armDetection(id, b.Platform, surface, tun)
	s.log.Info().Str("account", id).Str("platform", string(b.Platform)).Msg("window opened")
	return Opened, nil
}

// armDetection starts the watcher and the event pump for a new window.
func (s *Supervisor) armDetection(id string, platform models.Platform, surface browser.Surface, tun config.PlatformConfig) {
	log := s.log.With().Str("account", id).Logger()

	var watcher *detect.Watcher
	pings := make(chan struct{}, 1)
	strategy, err := detect.ForConfig(tun)
	if err != nil {
		// Window still opens; it just never notifies.
		log.Warn().Err(err).Msg("detection disabled for window")
	} else {
		emit := func(delta int) {
			s.emitActivity(id, platform, delta)
		}
		watcher = detect.NewWatcher(strategy, surface, tun.PollInterval, pings, emit, log)
	}

	wctx, cancel := context.WithCancel(s.baseCtx)
	if watcher != nil {
		go watcher.Run(wctx)
	}
	go s.pump(wctx, cancel, id, surface, watcher, pings)
}

// emitActivity relays one detected delta across the bridge and into the log.
func (s *Supervisor) emitActivity(id string, platform models.Platform, delta int) {
	displayName := ""
	if b, ok := s.reg.Get(id); ok {
		displayName = b.DisplayName
	}
	ev := bridge.ActivityEvent{
		AccountID:   id,
		Platform:    platform,
		DisplayName: displayName,
		Delta:       delta,
		Source:      models.SourceWindow,
	}
	if s.store != nil {
		if err := s.store.AppendActivity(models.ActivityRecord{
			AccountID: id,
			Platform:  platform,
			Delta:     delta,
			Source:    models.SourceWindow,
		}); err != nil {
			s.log.Warn().Err(err).Str("account", id).Msg("activity log write failed")
		}
	}
	s.bus.PublishActivity(ev)
}

// pump consumes a surface's lifecycle events until the window is gone, then
// clears the registry entry. Detection is re-armed (baseline dropped) on
// every navigation, including in-page route changes.
func (s *Supervisor) pump(ctx context.Context, cancel context.CancelFunc, id string, surface browser.Surface, watcher *detect.Watcher, pings chan<- struct{}) {
	defer cancel()
	for ev := range surface.Events() {
		switch ev.Kind {
		case browser.Navigated:
			s.reg.UpdateURL(id, ev.URL)
			if watcher != nil {
				watcher.Reset()
			}
		case browser.TitleChanged:
			s.reg.UpdateTitle(id, ev.Title)
		case browser.MutationPing:
			select {
			case pings <- struct{}{}:
			default:
			}
		case browser.FocusChanged:
			if ev.Focused {
				s.reg.SetFocused(id)
			}
		case browser.Closed:
			// Fall through to the channel close.
		}
	}
	s.reg.Detach(id)
	s.log.Info().Str("account", id).Msg("window closed")
}

// Close destroys the account's window. Idempotent: a second close, or a close
// after the user already closed the window, is a no-op.
func (s *Supervisor) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.reg.Get(id); !ok {
		s.mu.Unlock()
		return registry.ErrNotFound
	}
	surface, open := s.reg.SurfaceOf(id)
	// Clear the handle synchronously; the pump's detach then finds nothing.
	s.reg.Detach(id)
	s.mu.Unlock()

	if !open {
		return nil
	}
	return surface.Close()
}

// Reload reloads the window's document, which also re-establishes the
// detection baseline.
func (s *Supervisor) Reload(ctx context.Context, id string) error {
	surface, _, err := s.liveSurface(id)
	if err != nil {
		return err
	}
	return surface.Reload(ctx)
}

// NavigateHome loads the platform's landing URL.
func (s *Supervisor) NavigateHome(ctx context.Context, id string) error {
	surface, b, err := s.liveSurface(id)
	if err != nil {
		return err
	}
	return surface.Navigate(ctx, s.tuningFor(b.Platform).LandingURL)
}

// GoBack navigates the window history backwards.
func (s *Supervisor) GoBack(ctx context.Context, id string) error {
	surface, _, err := s.liveSurface(id)
	if err != nil {
		return err
	}
	return surface.Back(ctx)
}

// GoForward navigates the window history forwards.
func (s *Supervisor) GoForward(ctx context.Context, id string) error {
	surface, _, err := s.liveSurface(id)
	if err != nil {
		return err
	}
	return surface.Forward(ctx)
}

// Focus brings the account's window to the front.
func (s *Supervisor) Focus(ctx context.Context, id string) error {
	surface, _, err := s.liveSurface(id)
	if err != nil {
		return err
	}
	if err := surface.Focus(ctx); err != nil {
		return err
	}
	s.reg.SetFocused(id)
	return nil
}

func (s *Supervisor) liveSurface(id string) (browser.Surface, models.AccountBinding, error) {
	b, ok := s.reg.Get(id)
	if !ok {
		return nil, models.AccountBinding{}, registry.ErrNotFound
	}
	surface, open := s.reg.SurfaceOf(id)
	if !open {
		return nil, models.AccountBinding{}, ErrNotOpen
	}
	return surface, b, nil
}
