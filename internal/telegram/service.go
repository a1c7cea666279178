package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Options tunes the Telegram client. The zero value talks to the public API.
type Options struct {
	APIEndpoint string       // format string with two %s verbs: token and method
	HTTPClient  *http.Client // its Timeout bounds every API call
	ParseMode   string       // defaults to Markdown
	Debug       bool
}

// Service provides methods for interacting with the Telegram Bot API.
type Service struct {
	logger    *slog.Logger
	bot       *tgbotapi.BotAPI
	parseMode string
}

// NewService creates a new Telegram Service. It does not contact the API;
// use CheckAuth for that.
func NewService(botToken string, logger *slog.Logger, opts Options) (*Service, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	parseMode := opts.ParseMode
	if parseMode == "" {
		parseMode = tgbotapi.ModeMarkdown
	}

	bot := &tgbotapi.BotAPI{
		Token:  botToken,
		Client: client,
		Buffer: 100,
		Debug:  opts.Debug,
	}
	bot.SetAPIEndpoint(endpoint)

	return &Service{
		logger:    logger,
		bot:       bot,
		parseMode: parseMode,
	}, nil
}

// CheckAuth verifies the token with a getMe call.
func (s *Service) CheckAuth() error {
	me, err := s.bot.GetMe()
	if err != nil {
		return fmt.Errorf("failed to authorize telegram bot: %w", err)
	}
	s.bot.Self = me
	s.logger.Info("authorized on telegram", "account", me.UserName)
	return nil
}

// EscapeText escapes markup characters in text for the service's parse mode.
func (s *Service) EscapeText(text string) string {
	return tgbotapi.EscapeText(s.parseMode, text)
}

// Send posts text to a chat. channelID is either a numeric chat ID or a
// public channel username such as "@dsa_daily".
func (s *Service) Send(ctx context.Context, channelID, text string) error {
	// The bot API client has no context support; the HTTP client timeout
	// bounds the request once it has started.
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := newMessage(channelID, text)
	if err != nil {
		return err
	}
	msg.ParseMode = s.parseMode

	sent, err := s.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	s.logger.Debug("telegram message sent", "chat_id", sent.Chat.ID, "message_id", sent.MessageID)
	return nil
}

func newMessage(channelID, text string) (tgbotapi.MessageConfig, error) {
	channelID = strings.TrimSpace(channelID)
	if chatID, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		return tgbotapi.NewMessage(chatID, text), nil
	}
	if strings.HasPrefix(channelID, "@") && len(channelID) > 1 {
		return tgbotapi.NewMessageToChannel(channelID, text), nil
	}
	return tgbotapi.MessageConfig{}, fmt.Errorf("invalid telegram channel %q: expected a chat ID or @username", channelID)
}
