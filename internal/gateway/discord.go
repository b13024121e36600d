package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/rahul/autogoal/internal/observability"
)

const discordMaxMessage = 2000

// DiscordGateway answers slash-prefixed messages in any channel the bot can
// read and posts notifications to a channel id.
type DiscordGateway struct {
	Session  *discordgo.Session
	Commands *Commands
	Logger   *observability.Logger
}

func NewDiscordGateway(token string, commands *Commands, logger *observability.Logger) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session failed: %w", err)
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return &DiscordGateway{
		Session:  session,
		Commands: commands,
		Logger:   logger,
	}, nil
}

func (dg *DiscordGateway) Start(ctx context.Context) error {
	if dg.Commands != nil {
		dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			if m.Author == nil || m.Author.Bot || !strings.HasPrefix(m.Content, "/") {
				return
			}
			if !dg.Commands.Authorized(m.ChannelID) {
				dg.Logger.Warn("discord command refused",
					zap.String("user", m.Author.Username),
					zap.String("channel_id", m.ChannelID))
			} else {
				dg.Logger.Debug("discord command",
					zap.String("user", m.Author.Username),
					zap.String("text", m.Content))
			}

			response := dg.Commands.Handle(ctx, m.ChannelID, m.Content)
			if _, err := s.ChannelMessageSend(m.ChannelID, truncate(response, discordMaxMessage)); err != nil {
				dg.Logger.Warn("discord reply failed", zap.Error(err))
			}
		})
	}

	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("discord connect failed: %w", err)
	}
	dg.Logger.Info("discord connected")

	<-ctx.Done()
	return dg.Stop()
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	if chatID == "" {
		return fmt.Errorf("invalid channel ID: %q", chatID)
	}
	_, err := dg.Session.ChannelMessageSend(chatID, truncate(text, discordMaxMessage))
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
