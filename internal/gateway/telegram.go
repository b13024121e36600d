package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rahul/autogoal/internal/observability"
)

const telegramMaxMessage = 4096

type TelegramGateway struct {
	Bot      *tgbotapi.BotAPI
	Commands *Commands
	Logger   *observability.Logger
}

func NewTelegramGateway(token string, commands *Commands, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login failed: %w", err)
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	logger.Info("telegram authorized", zap.String("account", bot.Self.UserName))

	return &TelegramGateway{
		Bot:      bot,
		Commands: commands,
		Logger:   logger,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			tg.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || tg.Commands == nil {
				continue
			}

			user := ""
			if update.Message.From != nil {
				user = update.Message.From.UserName
			}
			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			if !tg.Commands.Authorized(chatID) {
				tg.Logger.Warn("telegram command refused", zap.String("user", user), zap.String("chat_id", chatID))
			} else {
				tg.Logger.Debug("telegram command", zap.String("user", user), zap.String("text", update.Message.Text))
			}

			response := tg.Commands.Handle(ctx, chatID, update.Message.Text)
			msg := tgbotapi.NewMessage(update.Message.Chat.ID, truncate(response, telegramMaxMessage))
			if _, err := tg.Bot.Send(msg); err != nil {
				tg.Logger.Warn("telegram reply failed", zap.Error(err))
			}
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	// Goal text carries file names and backticks, so no parse mode.
	msg := tgbotapi.NewMessage(id, truncate(text, telegramMaxMessage))
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat ID: %s", chatID)
	}
	return id, nil
}
