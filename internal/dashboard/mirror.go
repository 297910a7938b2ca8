package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hbeckert/concierge/internal/models"
	"github.com/hbeckert/concierge/internal/registry"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// MirrorOpts configures the backend bindings mirror. The dashboard backend is
// the source of truth for which accounts exist; the local store is a
// read-mostly copy kept for offline availability.
type MirrorOpts struct {
	BaseURL  string
	Schedule string // 5-field cron expression
	Client   *http.Client
	Registry *registry.Registry
	Log      zerolog.Logger
}

// SyncBindings pulls the backend's binding list once and mirrors it into the
// registry and store.
func SyncBindings(ctx context.Context, opts MirrorOpts) error {
	if opts.BaseURL == "" {
		return fmt.Errorf("mirror: base url is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.BaseURL+"/api/bindings", nil)
	if err != nil {
		return fmt.Errorf("mirror: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("mirror: fetch bindings: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirror: fetch bindings: unexpected status %d", resp.StatusCode)
	}

	var bindings []models.AccountBinding
	if err := json.NewDecoder(resp.Body).Decode(&bindings); err != nil {
		return fmt.Errorf("mirror: decode bindings: %w", err)
	}
	if err := opts.Registry.Mirror(bindings); err != nil {
		return fmt.Errorf("mirror: %w", err)
	}
	opts.Log.Info().Int("bindings", len(bindings)).Msg("bindings mirrored from backend")
	return nil
}

// StartMirror runs one sync immediately and then on the configured schedule.
// The returned cron is already started; callers stop it on shutdown.
func StartMirror(ctx context.Context, opts MirrorOpts) (*cron.Cron, error) {
	if err := SyncBindings(ctx, opts); err != nil {
		// Offline start is fine; the persisted mirror covers it.
		opts.Log.Warn().Err(err).Msg("initial bindings sync failed")
	}

	c := cron.New()
	_, err := c.AddFunc(opts.Schedule, func() {
		if err := SyncBindings(ctx, opts); err != nil {
			opts.Log.Warn().Err(err).Msg("bindings sync failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: schedule %q: %w", opts.Schedule, err)
	}
	c.Start()
	return c, nil
}
