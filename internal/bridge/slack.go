package bridge

import (
	"fmt"

	"github.com/rs/zerolog"
	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackSink posts activity events to a Slack channel. Optional; only wired
// when a bot token is configured.
type SlackSink struct {
	client  slackClient
	channel string
	log     zerolog.Logger
}

// NewSlackSink creates a Slack sink. Pass a non-nil client to inject a mock.
func NewSlackSink(botToken, channel string, client slackClient, log zerolog.Logger) (*SlackSink, error) {
	if channel == "" {
		return nil, fmt.Errorf("bridge: slack: channel is required")
	}
	if client == nil {
		if botToken == "" {
			return nil, fmt.Errorf("bridge: slack: bot token is required")
		}
		client = slackapi.New(botToken)
	}
	return &SlackSink{client: client, channel: channel, log: log}, nil
}

func (s *SlackSink) Deliver(ev ActivityEvent) {
	text := fmt.Sprintf(":bell: %s — %s", EventTitle(ev), EventBody(ev))
	if _, _, err := s.client.PostMessage(s.channel, slackapi.MsgOptionText(text, false)); err != nil {
		s.log.Warn().Err(err).Str("channel", s.channel).Msg("slack post failed")
	}
}
