package config

import (
	"strings"
	"testing"
	"time"

	"github.com/hbeckert/concierge/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.HTTPPort != 8321 {
		t.Errorf("HTTPPort = %d, want 8321", cfg.HTTPPort)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Store.Path == "" {
		t.Error("Store.Path should default to a file under the data dir")
	}
	if len(cfg.Platforms) != 3 {
		t.Fatalf("expected 3 platforms, got %d", len(cfg.Platforms))
	}
	for _, p := range models.Platforms() {
		pc, ok := cfg.Platforms[p]
		if !ok {
			t.Fatalf("missing platform %s", p)
		}
		if pc.LandingURL == "" {
			t.Errorf("%s: landing URL should have a default", p)
		}
		if pc.PollInterval <= 0 {
			t.Errorf("%s: poll interval should have a default", p)
		}
	}
	if cfg.Platforms[models.PlatformBookingA].Strategy != "badge" {
		t.Error("booking-a should default to the badge strategy")
	}
	if cfg.Platforms[models.PlatformBookingB].Strategy != "dots" {
		t.Error("booking-b should default to the dots strategy")
	}
	if cfg.Platforms[models.PlatformMessenger].Strategy != "title" {
		t.Error("messenger should default to the title strategy")
	}
}

func TestParseOverrides(t *testing.T) {
	yaml := `
http_port: 9000
data_dir: /tmp/concierge-test
platforms:
  booking-a:
    poll_interval: 5s
    badge_selector: ".custom-badge"
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTPPort != 9000 {
		t.Errorf("HTTPPort = %d, want 9000", cfg.HTTPPort)
	}
	pc := cfg.Platforms[models.PlatformBookingA]
	if pc.PollInterval != 5*time.Second {
		t.Errorf("poll_interval = %s, want 5s", pc.PollInterval)
	}
	if pc.BadgeSelector != ".custom-badge" {
		t.Errorf("badge_selector = %q", pc.BadgeSelector)
	}
	// Unset fields still get defaults.
	if pc.LandingURL == "" {
		t.Error("landing URL default should survive a partial override")
	}
	if cfg.Platforms[models.PlatformMessenger].Strategy != "title" {
		t.Error("untouched platforms keep their defaults")
	}
}

func TestParseRejectsBadStrategy(t *testing.T) {
	yaml := `
platforms:
  booking-a:
    strategy: telepathy
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for unknown strategy")
	}
	if !strings.Contains(err.Error(), "telepathy") {
		t.Errorf("error should name the bad strategy: %v", err)
	}
}

func TestParseRejectsUnknownPlatform(t *testing.T) {
	yaml := `
platforms:
  fax-machine:
    strategy: badge
    landing_url: https://example.com
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for unknown platform")
	}
}

func TestParseRejectsMysqlWithoutDSN(t *testing.T) {
	yaml := `
store:
  driver: mysql
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error for mysql without dsn")
	}
}
