package bridge

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// platformLabels give the notification titles a human shape.
var platformLabels = map[string]string{
	"booking-a": "Booking A",
	"booking-b": "Booking B",
	"messenger": "Messenger",
}

// NotifyCommandSink raises an OS-level notification by running a configured
// shell command template. Best-effort: failures are logged, never returned.
type NotifyCommandSink struct {
	Command string
	Log     zerolog.Logger
}

func (s *NotifyCommandSink) Deliver(ev ActivityEvent) {
	if s.Command == "" {
		return
	}
	cmdStr := templateEvent(s.Command, ev)
	cmd := exec.Command("sh", "-c", cmdStr)
	if out, err := cmd.CombinedOutput(); err != nil {
		s.Log.Warn().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("notify command failed")
	}
}

// SoundCommandSink plays an audible alert.
type SoundCommandSink struct {
	Command string
	Log     zerolog.Logger
}

func (s *SoundCommandSink) Deliver(ev ActivityEvent) {
	if s.Command == "" {
		return
	}
	cmd := exec.Command("sh", "-c", s.Command)
	if err := cmd.Run(); err != nil {
		s.Log.Warn().Err(err).Msg("sound command failed")
	}
}

// EventTitle derives the notification title from platform and display name.
func EventTitle(ev ActivityEvent) string {
	label := platformLabels[string(ev.Platform)]
	if label == "" {
		label = string(ev.Platform)
	}
	if ev.DisplayName == "" {
		return label
	}
	return label + " — " + ev.DisplayName
}

// EventBody renders the count line shown in notifications.
func EventBody(ev ActivityEvent) string {
	if ev.Delta == 1 {
		return "1 new item"
	}
	return fmt.Sprintf("%d new items", ev.Delta)
}

// templateEvent replaces placeholders in the command template with event
// values.
func templateEvent(command string, ev ActivityEvent) string {
	r := strings.NewReplacer(
		"{{.Title}}", EventTitle(ev),
		"{{.Body}}", EventBody(ev),
		"{{.Account}}", ev.AccountID,
		"{{.Platform}}", string(ev.Platform),
		"{{.Name}}", ev.DisplayName,
		"{{.Delta}}", fmt.Sprintf("%d", ev.Delta),
	)
	return r.Replace(command)
}
