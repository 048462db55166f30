package notifier

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"CoinOracle/internal/model"
	"CoinOracle/internal/prediction"
)

// Oracle is the part of the prediction service reachable from chat commands.
type Oracle interface {
	CreatePrediction(ctx context.Context, symbol, timeframe string, userID *int64) (*model.Prediction, error)
	GetAccuracy(ctx context.Context, symbol, timeframe string) (*model.AccuracySummary, error)
	History(ctx context.Context, symbol string, limit int) ([]model.PredictionWithResult, error)
}

// SweepTrigger starts an evaluation sweep outside the schedule.
type SweepTrigger interface {
	RunNow()
}

// CommandHandler answers one chat command. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, userID int64, command, args string) string

const usage = "Commands:\n" +
	"/predict SYMBOL TIMEFRAME, e.g. /predict BTC 1h\n" +
	"/accuracy [SYMBOL] [TIMEFRAME]\n" +
	"/history [SYMBOL] [LIMIT]\n" +
	"/sweep"

// NewCommandHandler maps /predict, /accuracy and /history onto o, and /sweep
// onto sweeps when it is non-nil.
func NewCommandHandler(o Oracle, sweeps SweepTrigger, timeout time.Duration) CommandHandler {
	return func(ctx context.Context, userID int64, command, args string) string {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		fields := strings.Fields(args)

		switch command {
		case "predict":
			if len(fields) != 2 {
				return usage
			}
			p, err := o.CreatePrediction(ctx, fields[0], fields[1], &userID)
			if err != nil {
				return commandError(err)
			}
			return FormatPrediction(p)

		case "accuracy":
			var symbol, tf string
			if len(fields) > 0 {
				symbol = strings.ToUpper(fields[0])
			}
			if len(fields) > 1 {
				tf = fields[1]
			}
			s, err := o.GetAccuracy(ctx, symbol, tf)
			if err != nil {
				return commandError(err)
			}
			return FormatAccuracy(strings.TrimSpace(symbol+" "+tf), s)

		case "history":
			var symbol string
			limit := 10
			if len(fields) > 0 {
				symbol = fields[0]
			}
			if len(fields) > 1 {
				n, err := strconv.Atoi(fields[1])
				if err != nil || n <= 0 {
					return usage
				}
				limit = n
			}
			items, err := o.History(ctx, symbol, limit)
			if err != nil {
				return commandError(err)
			}
			return FormatHistory(items)

		case "sweep":
			if sweeps == nil {
				return "Manual sweeps are disabled."
			}
			// A sweep outlives the command timeout; its report arrives separately.
			go sweeps.RunNow()
			return "Evaluation sweep started."

		default:
			return usage
		}
	}
}

func commandError(err error) string {
	switch {
	case errors.Is(err, prediction.ErrUnknownInstrument):
		return "Unknown instrument."
	case errors.Is(err, model.ErrInvalidTimeframe):
		return "Unknown timeframe. Use one of 5m, 15m, 1h, 4h, 1d, 1w."
	case errors.Is(err, prediction.ErrInvalidPrice):
		return "No valid price available right now, try again later."
	default:
		return "Sorry, something went wrong. Please try again later."
	}
}

// StartPolling long-polls Telegram for commands. Blocks until ctx is cancelled.
// Only commands from the configured chat are answered.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	t.log.Info().Msg("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.log.Info().Msg("telegram polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() || msg.Chat == nil || msg.Chat.ID != t.chatID {
				continue
			}
			var userID int64
			if msg.From != nil {
				userID = msg.From.ID
			}
			t.log.Info().Str("command", msg.Command()).Int64("user_id", userID).Msg("received command")
			reply := handler(ctx, userID, msg.Command(), msg.CommandArguments())
			if reply == "" {
				continue
			}
			if err := t.sendTo(msg.Chat.ID, reply); err != nil {
				t.log.Error().Err(err).Msg("send reply")
			}
		}
	}
}
