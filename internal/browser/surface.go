// Package browser manages isolated browser surfaces, one per linked account.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EventKind classifies surface lifecycle events.
type EventKind int

const (
	// Navigated fires on document loads and on in-page route changes.
	Navigated EventKind = iota + 1
	// TitleChanged fires when the page title changes.
	TitleChanged
	// MutationPing fires when the page's content tree changed.
	MutationPing
	// FocusChanged fires when the window gains or loses focus.
	FocusChanged
	// Closed fires exactly once when the surface is gone; the event channel
	// is closed immediately after.
	Closed
)

// Event is one surface lifecycle notification.
type Event struct {
	Kind    EventKind
	URL     string
	Title   string
	Focused bool
}

// LaunchOpts configures a new surface.
type LaunchOpts struct {
	PartitionDir string // storage partition; never shared between accounts
	UserAgent    string // outbound identity for every request from this surface
	URL          string // landing URL loaded after launch
	Binary       string // browser executable; empty = driver default
	Headless     bool
}

// Surface is one isolated, supervised browser window. Implementations must
// deliver events in occurrence order and must close the events channel after
// emitting Closed.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Focus(ctx context.Context) error
	Title(ctx context.Context) (string, error)
	// EvalInt evaluates a JavaScript expression producing a number.
	EvalInt(ctx context.Context, expr string) (int, error)
	Events() <-chan Event
	// Close tears the surface down. Safe to call more than once.
	Close() error
}

// Launcher creates surfaces. The production implementation drives Chrome; a
// mock stands in for tests.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOpts) (Surface, error)
}

// PartitionDir maps a partition key to its on-disk storage directory.
func PartitionDir(dataDir, partitionKey string) string {
	return filepath.Join(dataDir, "partitions", sanitizeKey(partitionKey))
}

// PurgePartition removes a partition's stored cookies and local data.
// Irreversible.
func PurgePartition(dataDir, partitionKey string) error {
	if strings.TrimSpace(partitionKey) == "" {
		return fmt.Errorf("browser: purge: empty partition key")
	}
	dir := PartitionDir(dataDir, partitionKey)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("browser: purge partition %s: %w", partitionKey, err)
	}
	return nil
}

// sanitizeKey keeps partition directory names to a safe charset.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, key)
}
