package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"CoinOracle/internal/model"
)

// dialect captures the few places SQLite and PostgreSQL disagree.
type dialect struct {
	name   string
	driver string
	serial string // auto-increment primary key column type
	real   string
	dollar bool // $n placeholders instead of ?
}

var dialects = map[string]dialect{
	"sqlite":   {name: "sqlite", driver: "sqlite", serial: "INTEGER PRIMARY KEY AUTOINCREMENT", real: "REAL"},
	"postgres": {name: "postgres", driver: "postgres", serial: "BIGSERIAL PRIMARY KEY", real: "DOUBLE PRECISION", dollar: true},
}

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// SQLStore persists records through database/sql on SQLite or PostgreSQL.
type SQLStore struct {
	db *sql.DB
	d  dialect
	mu sync.Mutex // serializes writers; SQLite allows one at a time
}

// NewSQLStore opens (or creates) the database and runs migrations.
// driver is "sqlite" (dsn is a file path) or "postgres" (dsn is a connection URL).
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if d.name == "sqlite" && !strings.Contains(dsn, "_pragma") {
		// per-connection settings; the pool may open several
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if d.name == "sqlite" {
		// WAL lets readers proceed while a sweep writes.
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	s := &SQLStore{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("component", "store").Str("driver", driver).Msg("sql store opened")
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id                  ` + s.d.serial + `,
			symbol              TEXT NOT NULL,
			user_id             BIGINT,
			timeframe           TEXT NOT NULL,
			decision            TEXT NOT NULL,
			confidence          INTEGER NOT NULL,
			price_at_prediction ` + s.d.real + ` NOT NULL,
			target_price        ` + s.d.real + `,
			stop_loss           ` + s.d.real + `,
			reasoning           TEXT NOT NULL,
			indicators          TEXT NOT NULL,
			sentiment_score     ` + s.d.real + ` NOT NULL,
			onchain_signals     TEXT NOT NULL,
			risk_level          TEXT NOT NULL,
			status              TEXT NOT NULL,
			created_at          BIGINT NOT NULL,
			expires_at          BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_due ON predictions(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_symbol ON predictions(symbol, created_at)`,

		`CREATE TABLE IF NOT EXISTS prediction_results (
			id                   ` + s.d.serial + `,
			prediction_id        BIGINT NOT NULL UNIQUE REFERENCES predictions(id),
			symbol               TEXT NOT NULL,
			timeframe            TEXT NOT NULL,
			decision             TEXT NOT NULL,
			confidence           INTEGER NOT NULL,
			actual_price         ` + s.d.real + ` NOT NULL,
			price_change         ` + s.d.real + ` NOT NULL,
			price_change_percent ` + s.d.real + ` NOT NULL,
			outcome              TEXT NOT NULL,
			accuracy             ` + s.d.real + ` NOT NULL,
			profit_loss          ` + s.d.real + `,
			notes                TEXT NOT NULL,
			evaluated_at         BIGINT NOT NULL,
			aggregated           BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_key ON prediction_results(symbol, timeframe)`,
		`CREATE INDEX IF NOT EXISTS idx_results_pending ON prediction_results(aggregated)`,

		`CREATE TABLE IF NOT EXISTS prediction_metrics (
			id                    ` + s.d.serial + `,
			symbol                TEXT NOT NULL,
			timeframe             TEXT NOT NULL,
			total_predictions     INTEGER NOT NULL,
			correct_predictions   INTEGER NOT NULL,
			incorrect_predictions INTEGER NOT NULL,
			partial_predictions   INTEGER NOT NULL,
			average_accuracy      ` + s.d.real + ` NOT NULL,
			average_confidence    ` + s.d.real + ` NOT NULL,
			current_streak        INTEGER NOT NULL,
			best_streak           INTEGER NOT NULL,
			total_profit          ` + s.d.real + ` NOT NULL,
			updated_at            BIGINT NOT NULL,
			UNIQUE (symbol, timeframe)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (s *SQLStore) CreatePrediction(ctx context.Context, p *model.Prediction) error {
	indicators, err := json.Marshal(p.Indicators)
	if err != nil {
		return fmt.Errorf("encode indicators: %w", err)
	}
	onchain, err := json.Marshal(p.OnchainSignals)
	if err != nil {
		return fmt.Errorf("encode onchain signals: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRowContext(ctx, s.d.rebind(`INSERT INTO predictions
		(symbol, user_id, timeframe, decision, confidence, price_at_prediction,
		 target_price, stop_loss, reasoning, indicators, sentiment_score,
		 onchain_signals, risk_level, status, created_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`),
		p.Symbol, nullInt(p.UserID), string(p.Timeframe), string(p.Decision), p.Confidence, p.PriceAtPrediction,
		nullFloat(p.TargetPrice), nullFloat(p.StopLoss), p.Reasoning, string(indicators), p.SentimentScore,
		string(onchain), string(p.RiskLevel), string(p.Status), millis(p.CreatedAt), millis(p.ExpiresAt),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

const predictionColumns = `id, symbol, user_id, timeframe, decision, confidence, price_at_prediction,
	target_price, stop_loss, reasoning, indicators, sentiment_score, onchain_signals,
	risk_level, status, created_at, expires_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row scanner) (*model.Prediction, error) {
	var (
		p                    model.Prediction
		userID               sql.NullInt64
		target, stop         sql.NullFloat64
		tf, decision         string
		risk, status         string
		indicators, onchain  string
		createdAt, expiresAt int64
	)
	err := row.Scan(&p.ID, &p.Symbol, &userID, &tf, &decision, &p.Confidence, &p.PriceAtPrediction,
		&target, &stop, &p.Reasoning, &indicators, &p.SentimentScore, &onchain,
		&risk, &status, &createdAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		id := userID.Int64
		p.UserID = &id
	}
	p.Timeframe = model.Timeframe(tf)
	p.Decision = model.Decision(decision)
	p.RiskLevel = model.RiskLevel(risk)
	p.Status = model.Status(status)
	p.TargetPrice = floatPtr(target)
	p.StopLoss = floatPtr(stop)
	p.CreatedAt = fromMillis(createdAt)
	p.ExpiresAt = fromMillis(expiresAt)
	if err := json.Unmarshal([]byte(indicators), &p.Indicators); err != nil {
		return nil, fmt.Errorf("decode indicators of prediction %d: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(onchain), &p.OnchainSignals); err != nil {
		return nil, fmt.Errorf("decode onchain signals of prediction %d: %w", p.ID, err)
	}
	return &p, nil
}

func (s *SQLStore) GetPrediction(ctx context.Context, id int64) (*model.Prediction, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+predictionColumns+` FROM predictions WHERE id = ?`), id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction %d: %w", id, err)
	}
	return p, nil
}

func (s *SQLStore) queryPredictions(ctx context.Context, query string, args ...any) ([]model.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListPredictions(ctx context.Context, f PredictionFilter) ([]model.Prediction, error) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Timeframe != "" {
		where = append(where, "timeframe = ?")
		args = append(args, string(f.Timeframe))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + predictionColumns + ` FROM predictions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	out, err := s.queryPredictions(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ExpiredPredictions(ctx context.Context, now time.Time) ([]model.Prediction, error) {
	out, err := s.queryPredictions(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		WHERE status = ? AND expires_at <= ?
		ORDER BY expires_at, id`,
		string(model.StatusActive), millis(now))
	if err != nil {
		return nil, fmt.Errorf("expired predictions: %w", err)
	}
	return out, nil
}

func (s *SQLStore) RecordEvaluation(ctx context.Context, r *model.PredictionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.d.rebind(`UPDATE predictions SET status = ? WHERE id = ? AND status = ?`),
		string(model.StatusEvaluated), r.PredictionID, string(model.StatusActive))
	if err != nil {
		return fmt.Errorf("flip status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("flip status: %w", err)
	} else if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM predictions WHERE id = ?`), r.PredictionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check prediction: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrAlreadyEvaluated
	}

	err = tx.QueryRowContext(ctx, s.d.rebind(`INSERT INTO prediction_results
		(prediction_id, symbol, timeframe, decision, confidence, actual_price, price_change,
		 price_change_percent, outcome, accuracy, profit_loss, notes, evaluated_at, aggregated)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		RETURNING id`),
		r.PredictionID, r.Symbol, string(r.Timeframe), string(r.Decision), r.Confidence, r.ActualPrice, r.PriceChange,
		r.PriceChangePercent, string(r.Outcome), r.Accuracy, nullFloat(r.ProfitLoss), r.Notes, millis(r.EvaluatedAt), false,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.Aggregated = false
	return nil
}

const resultColumns = `id, prediction_id, symbol, timeframe, decision, confidence, actual_price,
	price_change, price_change_percent, outcome, accuracy, profit_loss, notes, evaluated_at, aggregated`

func scanResult(row scanner) (*model.PredictionResult, error) {
	var (
		r                     model.PredictionResult
		tf, decision, outcome string
		profit                sql.NullFloat64
		evaluatedAt           int64
	)
	err := row.Scan(&r.ID, &r.PredictionID, &r.Symbol, &tf, &decision, &r.Confidence, &r.ActualPrice,
		&r.PriceChange, &r.PriceChangePercent, &outcome, &r.Accuracy, &profit, &r.Notes, &evaluatedAt, &r.Aggregated)
	if err != nil {
		return nil, err
	}
	r.Timeframe = model.Timeframe(tf)
	r.Decision = model.Decision(decision)
	r.Outcome = model.Outcome(outcome)
	r.ProfitLoss = floatPtr(profit)
	r.EvaluatedAt = fromMillis(evaluatedAt)
	return &r, nil
}

func (s *SQLStore) GetResult(ctx context.Context, predictionID int64) (*model.PredictionResult, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+resultColumns+` FROM prediction_results WHERE prediction_id = ?`), predictionID)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result of prediction %d: %w", predictionID, err)
	}
	return r, nil
}

func (s *SQLStore) queryResults(ctx context.Context, query string, args ...any) ([]model.PredictionResult, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PredictionResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListResults(ctx context.Context, key model.MetricsKey) ([]model.PredictionResult, error) {
	out, err := s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM prediction_results WHERE symbol = ? AND timeframe = ? ORDER BY id`,
		key.Symbol, string(key.Timeframe))
	if err != nil {
		return nil, fmt.Errorf("list results %s: %w", key, err)
	}
	return out, nil
}

func (s *SQLStore) PendingAggregation(ctx context.Context) ([]model.PredictionResult, error) {
	out, err := s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM prediction_results WHERE aggregated = ? ORDER BY id`, false)
	if err != nil {
		return nil, fmt.Errorf("pending aggregation: %w", err)
	}
	return out, nil
}

const metricsColumns = `id, symbol, timeframe, total_predictions, correct_predictions, incorrect_predictions,
	partial_predictions, average_accuracy, average_confidence, current_streak, best_streak,
	total_profit, updated_at`

func scanMetrics(row scanner) (*model.PredictionMetrics, error) {
	var (
		m         model.PredictionMetrics
		tf        string
		updatedAt int64
	)
	err := row.Scan(&m.ID, &m.Symbol, &tf, &m.TotalPredictions, &m.CorrectPredictions, &m.IncorrectPredictions,
		&m.PartialPredictions, &m.AverageAccuracy, &m.AverageConfidence, &m.CurrentStreak, &m.BestStreak,
		&m.TotalProfit, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.Timeframe = model.Timeframe(tf)
	m.UpdatedAt = fromMillis(updatedAt)
	return &m, nil
}

func (s *SQLStore) GetMetrics(ctx context.Context, key model.MetricsKey) (*model.PredictionMetrics, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+metricsColumns+` FROM prediction_metrics WHERE symbol = ? AND timeframe = ?`),
		key.Symbol, string(key.Timeframe))
	m, err := scanMetrics(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics %s: %w", key, err)
	}
	return m, nil
}

func (s *SQLStore) SaveMetrics(ctx context.Context, m *model.PredictionMetrics, resultIDs ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range resultIDs {
		res, err := tx.ExecContext(ctx, s.d.rebind(`UPDATE prediction_results SET aggregated = ? WHERE id = ? AND aggregated = ?`),
			true, id, false)
		if err != nil {
			return fmt.Errorf("mark result %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark result %d: %w", id, err)
		}
		if n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, s.d.rebind(`SELECT COUNT(*) FROM prediction_results WHERE id = ?`), id).Scan(&exists); err != nil {
				return fmt.Errorf("check result %d: %w", id, err)
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrAlreadyAggregated
		}
	}

	err = tx.QueryRowContext(ctx, s.d.rebind(`INSERT INTO prediction_metrics
		(symbol, timeframe, total_predictions, correct_predictions, incorrect_predictions,
		 partial_predictions, average_accuracy, average_confidence, current_streak, best_streak,
		 total_profit, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (symbol, timeframe) DO UPDATE SET
			total_predictions     = excluded.total_predictions,
			correct_predictions   = excluded.correct_predictions,
			incorrect_predictions = excluded.incorrect_predictions,
			partial_predictions   = excluded.partial_predictions,
			average_accuracy      = excluded.average_accuracy,
			average_confidence    = excluded.average_confidence,
			current_streak        = excluded.current_streak,
			best_streak           = excluded.best_streak,
			total_profit          = excluded.total_profit,
			updated_at            = excluded.updated_at
		RETURNING id`),
		m.Symbol, string(m.Timeframe), m.TotalPredictions, m.CorrectPredictions, m.IncorrectPredictions,
		m.PartialPredictions, m.AverageAccuracy, m.AverageConfidence, m.CurrentStreak, m.BestStreak,
		m.TotalProfit, millis(m.UpdatedAt),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("upsert metrics %s: %w", m.Key(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) ListMetrics(ctx context.Context, f MetricsFilter) ([]model.PredictionMetrics, error) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Timeframe != "" {
		where = append(where, "timeframe = ?")
		args = append(args, string(f.Timeframe))
	}
	query := `SELECT ` + metricsColumns + ` FROM prediction_metrics`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()
	var out []model.PredictionMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("list metrics: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	log.Info().Str("component", "store").Str("driver", s.d.name).Msg("closing sql store")
	return s.db.Close()
}

var _ Store = (*SQLStore)(nil)
