package browser

import (
	"testing"

	"github.com/rs/zerolog"
)

func newPushSurface(buffer int) *chromeSurface {
	return &chromeSurface{
		events: make(chan Event, buffer),
		log:    zerolog.Nop(),
	}
}

func TestPushDropsPingsWhenFull(t *testing.T) {
	s := newPushSurface(2)
	for i := 0; i < 4; i++ {
		s.push(Event{Kind: MutationPing})
	}
	if len(s.events) != 2 {
		t.Errorf("queued %d events, want buffer cap 2", len(s.events))
	}
}

func TestPushKeepsNavigatedWhenFull(t *testing.T) {
	s := newPushSurface(2)
	s.push(Event{Kind: MutationPing})
	s.push(Event{Kind: MutationPing})

	// A full buffer evicts a queued ping rather than losing the navigation.
	s.push(Event{Kind: Navigated, URL: "https://x/inbox"})

	var kinds []EventKind
	for len(s.events) > 0 {
		kinds = append(kinds, (<-s.events).Kind)
	}
	found := false
	for _, k := range kinds {
		if k == Navigated {
			found = true
		}
	}
	if !found {
		t.Errorf("queued kinds = %v, Navigated was lost", kinds)
	}
}

func TestPushAfterCloseIsNoOp(t *testing.T) {
	s := newPushSurface(2)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.push(Event{Kind: Navigated})
	if len(s.events) != 0 {
		t.Errorf("queued %d events on a closed surface, want 0", len(s.events))
	}
}
