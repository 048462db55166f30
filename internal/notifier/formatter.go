package notifier

import (
	"fmt"
	"html"
	"strings"

	"CoinOracle/internal/model"
	"CoinOracle/internal/prediction"
)

func decisionIcon(d model.Decision) string {
	switch d {
	case model.DecisionBuy:
		return "🟢"
	case model.DecisionSell:
		return "🔴"
	default:
		return "⚪"
	}
}

func outcomeIcon(o model.Outcome) string {
	switch o {
	case model.OutcomeCorrect:
		return "✅"
	case model.OutcomePartial:
		return "➖"
	default:
		return "❌"
	}
}

// FormatSweepReport formats an evaluation sweep into a Telegram message.
func FormatSweepReport(r *prediction.SweepReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Evaluation sweep</b> | %s\n\n", r.StartedAt.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Due: %d | Evaluated: %d | Failed: %d\n", r.Due, r.Evaluated, r.Failed))
	if len(r.Results) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	for _, res := range r.Results {
		b.WriteString(fmt.Sprintf("%s #%d %s %s %s: %+.2f%% → %s (%.0f)\n",
			outcomeIcon(res.Outcome), res.PredictionID, res.Symbol, res.Timeframe, res.Decision,
			res.PriceChangePercent, res.Outcome, res.Accuracy))
	}
	return b.String()
}

// FormatAccuracy formats an accuracy summary. scope names the filter, e.g. "BTC 1h".
func FormatAccuracy(scope string, s *model.AccuracySummary) string {
	var b strings.Builder
	if scope == "" {
		scope = "all"
	}
	b.WriteString(fmt.Sprintf("🎯 <b>Accuracy</b> | %s\n\n", html.EscapeString(scope)))
	if s.TotalPredictions == 0 {
		b.WriteString("No evaluated predictions yet.")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Accuracy: %d%%\n", s.Accuracy))
	b.WriteString(fmt.Sprintf("Evaluated: %d (✅ %d | ➖ %d | ❌ %d)\n",
		s.TotalPredictions, s.CorrectPredictions, s.PartialPredictions, s.IncorrectPredictions))
	b.WriteString(fmt.Sprintf("Best streak: %d\n", s.BestStreak))
	b.WriteString(fmt.Sprintf("Total P/L: %+.2f%%\n", s.TotalProfit))
	if len(s.Rows) > 1 {
		b.WriteString("\n")
		for _, m := range s.Rows {
			b.WriteString(fmt.Sprintf("  %s %s: %.2f avg, streak %d\n",
				m.Symbol, m.Timeframe, m.AverageAccuracy, m.CurrentStreak))
		}
	}
	return b.String()
}

// FormatPrediction formats a freshly created prediction.
func FormatPrediction(p *model.Prediction) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s %s: %s</b> (#%d)\n\n",
		decisionIcon(p.Decision), p.Symbol, p.Timeframe, p.Decision, p.ID))
	b.WriteString(fmt.Sprintf("Price: %.4f\n", p.PriceAtPrediction))
	if p.TargetPrice != nil && p.StopLoss != nil {
		b.WriteString(fmt.Sprintf("Target: %.4f | Stop: %.4f\n", *p.TargetPrice, *p.StopLoss))
	}
	b.WriteString(fmt.Sprintf("Confidence: %d%% | Risk: %s\n", p.Confidence, p.RiskLevel))
	b.WriteString(fmt.Sprintf("Expires: %s UTC\n\n", p.ExpiresAt.UTC().Format("2006-01-02 15:04")))
	b.WriteString(html.EscapeString(p.Reasoning))
	return b.String()
}

// FormatHistory lists predictions with their outcome when evaluated.
func FormatHistory(items []model.PredictionWithResult) string {
	if len(items) == 0 {
		return "No predictions yet."
	}
	var b strings.Builder
	b.WriteString("🗂 <b>Recent predictions</b>\n\n")
	for _, it := range items {
		p := it.Prediction
		b.WriteString(fmt.Sprintf("#%d %s %s %s %s @ %.4f",
			p.ID, p.CreatedAt.UTC().Format("01-02 15:04"), p.Symbol, p.Timeframe, p.Decision, p.PriceAtPrediction))
		if r := it.Result; r != nil {
			b.WriteString(fmt.Sprintf(" %s %+.2f%%", outcomeIcon(r.Outcome), r.PriceChangePercent))
		} else {
			b.WriteString(" ⏳")
		}
		b.WriteString("\n")
	}
	return b.String()
}
