// Package detect implements the per-platform activity heuristics.
//
// Three unrelated signals (a numeric badge, a count of small unread dots, a
// number embedded in the window title) feed one shared baseline-then-delta
// contract implemented by Watcher. The strategies differ only in how they
// sample a count.
package detect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/hbeckert/concierge/internal/config"
)

// ErrStale means the expected page structure was not found. The tick no-ops
// and the next trigger retries; it never crosses the process boundary.
var ErrStale = errors.New("detect: page structure not recognized")

// Page is the slice of a browser surface the samplers need.
type Page interface {
	EvalInt(ctx context.Context, expr string) (int, error)
	Title(ctx context.Context) (string, error)
}

// Strategy samples the current activity count from a page.
type Strategy interface {
	Kind() string
	Sample(ctx context.Context, p Page) (int, error)
}

// ForConfig selects the strategy named by the platform tuning.
func ForConfig(cfg config.PlatformConfig) (Strategy, error) {
	switch cfg.Strategy {
	case "badge":
		return &badgeStrategy{selector: cfg.BadgeSelector}, nil
	case "dots":
		return &dotStrategy{selector: cfg.DotSelector, maxSize: cfg.DotMaxSize}, nil
	case "title":
		return &titleStrategy{}, nil
	}
	return nil, fmt.Errorf("detect: unknown strategy %q", cfg.Strategy)
}

// badgeStrategy reads a numeric unread badge. A missing badge means zero
// unread (these badges hide at zero); a badge with no digits means the markup
// changed under us.
type badgeStrategy struct {
	selector string
}

func (s *badgeStrategy) Kind() string { return "badge" }

func (s *badgeStrategy) Sample(ctx context.Context, p Page) (int, error) {
	expr := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return 0;
  const digits = (el.textContent || '').replace(/[^0-9]/g, '');
  if (digits === '') return -1;
  return parseInt(digits, 10);
})()`, strconv.Quote(s.selector))
	n, err := p.EvalInt(ctx, expr)
	if err != nil {
		return 0, fmt.Errorf("detect: badge sample: %w", err)
	}
	if n < 0 {
		return 0, ErrStale
	}
	return n, nil
}

// dotStrategy counts small circular unread indicators. The size threshold
// separates the dots from larger decorated elements matching the same loose
// selector.
type dotStrategy struct {
	selector string
	maxSize  int
}

func (s *dotStrategy) Kind() string { return "dots" }

func (s *dotStrategy) Sample(ctx context.Context, p Page) (int, error) {
	expr := fmt.Sprintf(`(() => {
  const els = document.querySelectorAll(%s);
  let count = 0;
  for (const el of els) {
    const r = el.getBoundingClientRect();
    if (r.width > 0 && r.width <= %d && r.height > 0 && r.height <= %d) count++;
  }
  return count;
})()`, strconv.Quote(s.selector), s.maxSize, s.maxSize)
	n, err := p.EvalInt(ctx, expr)
	if err != nil {
		return 0, fmt.Errorf("detect: dot sample: %w", err)
	}
	return n, nil
}

// titleCount matches an unread count like "(3) Inbox" in a window title.
var titleCount = regexp.MustCompile(`\((\d+)\)`)

// titleStrategy parses the unread count the messaging platform embeds in the
// window title. No parenthesized number means zero unread.
type titleStrategy struct{}

func (s *titleStrategy) Kind() string { return "title" }

func (s *titleStrategy) Sample(ctx context.Context, p Page) (int, error) {
	title, err := p.Title(ctx)
	if err != nil {
		return 0, fmt.Errorf("detect: title sample: %w", err)
	}
	m := titleCount.FindStringSubmatch(title)
	if m == nil {
		return 0, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ErrStale
	}
	return n, nil
}
