package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"CoinOracle/internal/prediction"
)

// TelegramOptions configures the Telegram notifier.
type TelegramOptions struct {
	BotToken string
	ChatID   string
	ProxyURL string
	Endpoint string // Bot API endpoint template; defaults to tgbotapi.APIEndpoint
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	bot           *tgbotapi.BotAPI
	chatID        int64
	RetryInterval time.Duration
	log           zerolog.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
// It calls getMe once to validate the token.
func NewTelegramNotifier(opts TelegramOptions) (*TelegramNotifier, error) {
	chatID, err := strconv.ParseInt(opts.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat id %q: %w", opts.ChatID, err)
	}
	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		if u, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := &http.Client{Timeout: 35 * time.Second, Transport: transport}
	bot, err := tgbotapi.NewBotAPIWithClient(opts.BotToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:           bot,
		chatID:        chatID,
		RetryInterval: time.Second,
		log:           log.With().Str("component", "notifier").Logger(),
	}, nil
}

// Send sends an HTML message to the configured chat.
func (t *TelegramNotifier) Send(text string) error {
	return t.sendTo(t.chatID, text)
}

func (t *TelegramNotifier) sendTo(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.RetryInterval
	attempt := 0
	op := func() error {
		attempt++
		err := t.Send(text)
		if err != nil {
			t.log.Warn().Err(err).Int("attempt", attempt).Int("max", maxRetries+1).Msg("telegram send failed")
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("all %d attempts failed: %w", attempt, err)
	}
	return nil
}

// ReportSweep sends the sweep summary, logging delivery failures.
func (t *TelegramNotifier) ReportSweep(ctx context.Context, r *prediction.SweepReport) {
	if err := t.SendWithRetry(ctx, FormatSweepReport(r), 3); err != nil {
		t.log.Error().Err(err).Str("sweep_id", r.SweepID).Msg("sweep report not delivered")
	}
}
