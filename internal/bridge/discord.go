package bridge

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// discordSession abstracts the discordgo methods we use, enabling test mocks.
type discordSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts activity events to a Discord channel. Optional; only
// wired when a bot token is configured.
type DiscordSink struct {
	sess      discordSession
	channelID string
	log       zerolog.Logger
}

// NewDiscordSink creates a Discord sink. Pass a non-nil session to inject a
// mock.
func NewDiscordSink(botToken, channelID string, sess discordSession, log zerolog.Logger) (*DiscordSink, error) {
	if channelID == "" {
		return nil, fmt.Errorf("bridge: discord: channel id is required")
	}
	if sess == nil {
		if botToken == "" {
			return nil, fmt.Errorf("bridge: discord: bot token is required")
		}
		s, err := discordgo.New("Bot " + botToken)
		if err != nil {
			return nil, fmt.Errorf("bridge: discord: %w", err)
		}
		sess = s
	}
	return &DiscordSink{sess: sess, channelID: channelID, log: log}, nil
}

func (s *DiscordSink) Deliver(ev ActivityEvent) {
	content := fmt.Sprintf("🔔 %s — %s", EventTitle(ev), EventBody(ev))
	if _, err := s.sess.ChannelMessageSend(s.channelID, content); err != nil {
		s.log.Warn().Err(err).Str("channel", s.channelID).Msg("discord post failed")
	}
}
