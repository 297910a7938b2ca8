package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/hbeckert/concierge/internal/models"
	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"
)

// recordSink collects delivered events in order.
type recordSink struct {
	events []ActivityEvent
}

func (s *recordSink) Deliver(ev ActivityEvent) {
	s.events = append(s.events, ev)
}

func event(id string, delta int) ActivityEvent {
	return ActivityEvent{
		AccountID:   id,
		Platform:    models.PlatformBookingA,
		DisplayName: "Seaside Flat",
		Delta:       delta,
		Source:      models.SourceWindow,
	}
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := New(zerolog.Nop())
	sink := &recordSink{}
	bus.AddSink(sink)

	for i := 1; i <= 5; i++ {
		bus.PublishActivity(event("a1", i))
	}

	if len(sink.events) != 5 {
		t.Fatalf("delivered %d events, want 5", len(sink.events))
	}
	for i, ev := range sink.events {
		if ev.Delta != i+1 {
			t.Errorf("event %d: delta = %d, want %d", i, ev.Delta, i+1)
		}
	}
}

func TestBusSubscribers(t *testing.T) {
	bus := New(zerolog.Nop())
	id, ch := bus.SubscribeActivity()

	bus.PublishActivity(event("a1", 2))
	got := <-ch
	if got.AccountID != "a1" || got.Delta != 2 {
		t.Errorf("got %+v", got)
	}

	bus.UnsubscribeActivity(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	bus.PublishActivity(event("a1", 1))
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := New(zerolog.Nop())
	_, ch := bus.SubscribeActivity()

	// Overflow the subscriber buffer; the bus drops rather than stalls.
	for i := 0; i < 50; i++ {
		bus.PublishActivity(event("a1", 1))
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered %d, want full buffer %d", len(ch), cap(ch))
	}
}

func TestBusTabsAdvisoryCoalesces(t *testing.T) {
	bus := New(zerolog.Nop())
	id, ch := bus.SubscribeTabs()
	defer bus.UnsubscribeTabs(id)

	bus.PublishTabsChanged()
	bus.PublishTabsChanged()
	bus.PublishTabsChanged()

	<-ch
	select {
	case <-ch:
		t.Error("advisory signals should coalesce to one pending notification")
	default:
	}
}

func TestEventTitle(t *testing.T) {
	for _, tc := range []struct {
		ev   ActivityEvent
		want string
	}{
		{event("a1", 1), "Booking A — Seaside Flat"},
		{ActivityEvent{Platform: models.PlatformMessenger}, "Messenger"},
		{ActivityEvent{Platform: "weird", DisplayName: "X"}, "weird — X"},
	} {
		if got := EventTitle(tc.ev); got != tc.want {
			t.Errorf("EventTitle(%+v) = %q, want %q", tc.ev, got, tc.want)
		}
	}
}

func TestEventBody(t *testing.T) {
	if got := EventBody(event("a1", 1)); got != "1 new item" {
		t.Errorf("got %q", got)
	}
	if got := EventBody(event("a1", 4)); got != "4 new items" {
		t.Errorf("got %q", got)
	}
}

func TestTemplateEvent(t *testing.T) {
	ev := event("a1", 3)
	got := templateEvent("notify-send '{{.Title}}' '{{.Body}}' # {{.Account}}/{{.Platform}} d={{.Delta}}", ev)
	want := "notify-send 'Booking A — Seaside Flat' '3 new items' # a1/booking-a d=3"
	if got != want {
		t.Errorf("templateEvent = %q, want %q", got, want)
	}
}

// mockSlack records posted messages.
type mockSlack struct {
	channels []string
	err      error
}

func (m *mockSlack) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.channels = append(m.channels, channelID)
	return "", "", m.err
}

func TestSlackSink(t *testing.T) {
	mock := &mockSlack{}
	sink, err := NewSlackSink("", "#alerts", mock, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSlackSink: %v", err)
	}
	sink.Deliver(event("a1", 2))
	if len(mock.channels) != 1 || mock.channels[0] != "#alerts" {
		t.Errorf("posted to %v, want [#alerts]", mock.channels)
	}

	// Posting failures are swallowed; a broken sink must not break the bus.
	mock.err = errors.New("rate limited")
	sink.Deliver(event("a1", 1))

	if _, err := NewSlackSink("tok", "", nil, zerolog.Nop()); err == nil {
		t.Error("expected error for missing channel")
	}
}

// mockDiscord records sent messages.
type mockDiscord struct {
	contents []string
}

func (m *mockDiscord) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.contents = append(m.contents, content)
	return &discordgo.Message{}, nil
}

func TestDiscordSink(t *testing.T) {
	mock := &mockDiscord{}
	sink, err := NewDiscordSink("", "123", mock, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDiscordSink: %v", err)
	}
	sink.Deliver(event("a1", 2))
	if len(mock.contents) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mock.contents))
	}
	want := fmt.Sprintf("🔔 %s — %s", "Booking A — Seaside Flat", "2 new items")
	if mock.contents[0] != want {
		t.Errorf("content = %q, want %q", mock.contents[0], want)
	}
}
