// Package slack posts notifications to a Slack channel.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	slackapi "github.com/slack-go/slack"
)

// Options tunes the Slack client. The zero value talks to the public API.
type Options struct {
	APIURL     string // must end with a slash
	HTTPClient *http.Client
}

// Service sends messages through the Slack Web API.
type Service struct {
	logger *slog.Logger
	client *slackapi.Client
}

// NewService creates a Slack Service. It does not contact the API; use
// CheckAuth for that.
func NewService(botToken string, logger *slog.Logger, opts Options) (*Service, error) {
	if botToken == "" {
		return nil, fmt.Errorf("slack bot token is empty")
	}
	var clientOpts []slackapi.Option
	if opts.APIURL != "" {
		clientOpts = append(clientOpts, slackapi.OptionAPIURL(opts.APIURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, slackapi.OptionHTTPClient(opts.HTTPClient))
	}
	return &Service{logger: logger, client: slackapi.New(botToken, clientOpts...)}, nil
}

// CheckAuth verifies the token with auth.test.
func (s *Service) CheckAuth(ctx context.Context) error {
	auth, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to authorize slack bot: %w", err)
	}
	s.logger.Info("authorized on slack", "team", auth.Team, "user", auth.User)
	return nil
}

// Send posts text to the channel. The text uses Slack mrkdwn as-is.
func (s *Service) Send(ctx context.Context, channelID, text string) error {
	if channelID == "" {
		return fmt.Errorf("slack channel is empty")
	}
	channel, ts, err := s.client.PostMessageContext(ctx, channelID, slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack chat.postMessage: %w", err)
	}
	s.logger.Debug("slack message sent", "channel", channel, "ts", ts)
	return nil
}
