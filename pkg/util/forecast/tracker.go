package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/util"
)

// Predicted or actual winner of a tracked match
const (
	SideHome = "home"
	SideDraw = "draw"
	SideAway = "away"
)

// Confidence buckets used by AccuracyMetrics
const (
	HighConfidence   = 70
	MediumConfidence = 40
)

// PredictionRecord is a stored prediction and, once known, the real result
type PredictionRecord struct {
	ID              string  `json:"id" column:"id" dbtype:"TEXT NOT NULL" primary:"true"`
	MatchKey        string  `json:"match_key" column:"match_key" dbtype:"TEXT NOT NULL" unique:"true"`
	HomeTeam        string  `json:"home_team" column:"home_team" dbtype:"TEXT NOT NULL"`
	AwayTeam        string  `json:"away_team" column:"away_team" dbtype:"TEXT NOT NULL"`
	League          string  `json:"league" column:"league" dbtype:"TEXT NOT NULL DEFAULT ''" index:"true"`
	MatchDate       string  `json:"match_date" column:"match_date" dbtype:"TEXT NOT NULL DEFAULT ''"`
	HomeWin         float64 `json:"home_win" column:"home_win" dbtype:"DOUBLE PRECISION NOT NULL"`
	Draw            float64 `json:"draw" column:"draw_prob" dbtype:"DOUBLE PRECISION NOT NULL"`
	AwayWin         float64 `json:"away_win" column:"away_win" dbtype:"DOUBLE PRECISION NOT NULL"`
	PredictedHome   int     `json:"predicted_home_goals" column:"predicted_home" dbtype:"INTEGER NOT NULL"`
	PredictedAway   int     `json:"predicted_away_goals" column:"predicted_away" dbtype:"INTEGER NOT NULL"`
	PredictedWinner string  `json:"predicted_winner" column:"predicted_winner" dbtype:"TEXT NOT NULL"`
	Confidence      int     `json:"confidence" column:"confidence" dbtype:"INTEGER NOT NULL"`
	Completed       bool    `json:"completed" column:"completed" dbtype:"BOOLEAN NOT NULL DEFAULT FALSE"`
	ActualHome      int     `json:"actual_home_goals" column:"actual_home" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	ActualAway      int     `json:"actual_away_goals" column:"actual_away" dbtype:"INTEGER NOT NULL DEFAULT 0"`
	ActualWinner    string  `json:"actual_winner,omitempty" column:"actual_winner" dbtype:"TEXT NOT NULL DEFAULT ''"`
	CreatedAt       string  `json:"created_at" column:"created_at" dbtype:"TEXT NOT NULL"`
	ResolvedAt      string  `json:"resolved_at,omitempty" column:"resolved_at" dbtype:"TEXT NOT NULL DEFAULT ''"`
}

func (r *PredictionRecord) GetTableName() string {
	return "prediction"
}

func (r *PredictionRecord) GetPrimaryKey() map[string]any {
	return map[string]any{"id": r.ID}
}

func (r *PredictionRecord) BeforeSave() error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.MatchKey == "" {
		return fmt.Errorf("prediction has no match key")
	}
	return nil
}

// AccuracyMetrics summarise how well stored predictions matched reality.
// Rates are fractions of completed predictions.
type AccuracyMetrics struct {
	TotalPredictions         int     `json:"total_predictions"`
	CompletedPredictions     int     `json:"completed_predictions"`
	WinnerCorrect            int     `json:"winner_correct"`
	WinnerAccuracy           float64 `json:"winner_accuracy"`
	ExactScoreCount          int     `json:"exact_score_count"`
	ExactScoreRate           float64 `json:"exact_score_rate"`
	MeanGoalDiffError        float64 `json:"mean_goal_difference_error"`
	MeanTotalGoalsError      float64 `json:"mean_total_goals_error"`
	WithinOneGoalRate        float64 `json:"within_one_goal_rate"`
	BrierScore               float64 `json:"brier_score"`
	HighConfidenceAccuracy   float64 `json:"high_confidence_accuracy"`
	MediumConfidenceAccuracy float64 `json:"medium_confidence_accuracy"`
	LowConfidenceAccuracy    float64 `json:"low_confidence_accuracy"`
}

// Tracker stores predictions and scores them once results come in. Writes
// are serialised so a match key maps to exactly one row.
type Tracker struct {
	store *Store
	now   func() time.Time
	mu    sync.Mutex
}

// NewTracker prepares the tracker's table in store
func NewTracker(ctx context.Context, store *Store) (*Tracker, error) {
	if err := store.CreateTable(ctx, &PredictionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to prepare tracker: %w", err)
	}
	return &Tracker{store: store, now: time.Now}, nil
}

// MatchKey builds the default key for a fixture
func MatchKey(homeTeam, awayTeam, matchDate string) string {
	key := util.NormaliseKey(homeTeam) + "_v_" + util.NormaliseKey(awayTeam)
	if matchDate != "" {
		key += "_" + matchDate
	}
	return key
}

// TrackedMatch identifies the fixture a prediction belongs to. An empty
// MatchKey is derived from the teams and date.
type TrackedMatch struct {
	MatchKey  string
	HomeTeam  string
	AwayTeam  string
	League    string
	MatchDate string
}

// RecordPrediction stores p for the match. Recording again for the same
// match replaces the earlier prediction and clears any result.
func (t *Tracker) RecordPrediction(ctx context.Context, m TrackedMatch, p PredictionResult) (*PredictionRecord, error) {
	if strings.TrimSpace(m.HomeTeam) == "" || strings.TrimSpace(m.AwayTeam) == "" {
		return nil, invalid("teams", "home and away team are required")
	}
	if m.MatchDate != "" {
		if _, err := time.Parse(time.DateOnly, m.MatchDate); err != nil {
			return nil, invalid("match_date", "must be YYYY-MM-DD, got %q", m.MatchDate)
		}
	}
	if m.MatchKey == "" {
		m.MatchKey = MatchKey(m.HomeTeam, m.AwayTeam, m.MatchDate)
	}

	rec := &PredictionRecord{
		MatchKey:        m.MatchKey,
		HomeTeam:        m.HomeTeam,
		AwayTeam:        m.AwayTeam,
		League:          util.NormaliseKey(m.League),
		MatchDate:       m.MatchDate,
		HomeWin:         p.HomeWin,
		Draw:            p.Draw,
		AwayWin:         p.AwayWin,
		PredictedHome:   p.PredictedScore.Home,
		PredictedAway:   p.PredictedScore.Away,
		PredictedWinner: favourite(p.HomeWin, p.Draw, p.AwayWin),
		Confidence:      p.Confidence,
		CreatedAt:       t.now().UTC().Format(time.RFC3339),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	existing, err := t.find(ctx, m.MatchKey)
	switch {
	case err == nil:
		rec.ID = existing.ID
	case !errors.Is(err, ErrRecordNotFound):
		return nil, err
	}

	if err := t.store.Save(ctx, rec); err != nil {
		// another process sharing the database may have inserted the match
		// since the lookup, in which case the unique index refused this row
		again, ferr := t.find(ctx, m.MatchKey)
		if existing != nil || ferr != nil {
			return nil, fmt.Errorf("failed to save prediction %s: %w", m.MatchKey, err)
		}
		rec.ID = again.ID
		if err := t.store.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to save prediction %s: %w", m.MatchKey, err)
		}
	}
	logger.Info("Stored prediction", rec.MatchKey, rec.PredictedWinner)
	return rec, nil
}

// RecordResult attaches the final score to a stored prediction
func (t *Tracker) RecordResult(ctx context.Context, matchKey string, homeGoals, awayGoals int) (*PredictionRecord, error) {
	if homeGoals < 0 || awayGoals < 0 {
		return nil, invalid("score", "goals must not be negative, got %d-%d", homeGoals, awayGoals)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, err := t.find(ctx, matchKey)
	if err != nil {
		return nil, err
	}

	rec.Completed = true
	rec.ActualHome = homeGoals
	rec.ActualAway = awayGoals
	rec.ActualWinner = winnerOf(homeGoals, awayGoals)
	rec.ResolvedAt = t.now().UTC().Format(time.RFC3339)
	if err := t.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save result %s: %w", matchKey, err)
	}
	logger.Info("Recorded result", matchKey, homeGoals, awayGoals, rec.PredictedWinner == rec.ActualWinner)
	return rec, nil
}

// Get returns the stored prediction for a match key
func (t *Tracker) Get(ctx context.Context, matchKey string) (*PredictionRecord, error) {
	return t.find(ctx, matchKey)
}

// Accuracy evaluates every stored prediction, or only those of one league
func (t *Tracker) Accuracy(ctx context.Context, league string) (AccuracyMetrics, error) {
	records, err := t.Records(ctx, league)
	if err != nil {
		return AccuracyMetrics{}, err
	}
	return EvaluateAccuracy(records), nil
}

// Records returns every stored prediction, or only those of one league
func (t *Tracker) Records(ctx context.Context, league string) ([]PredictionRecord, error) {
	where, args := "", []any(nil)
	if league != "" {
		where, args = "league = ?", []any{util.NormaliseKey(league)}
	}
	rows, err := t.store.FindWhere(ctx, &PredictionRecord{}, where, args...)
	if err != nil {
		return nil, err
	}
	records := make([]PredictionRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, *r.(*PredictionRecord))
	}
	return records, nil
}

func (t *Tracker) find(ctx context.Context, matchKey string) (*PredictionRecord, error) {
	rows, err := t.store.FindWhere(ctx, &PredictionRecord{}, "match_key = ?", matchKey)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no prediction for match %s", ErrRecordNotFound, matchKey)
	}
	return rows[0].(*PredictionRecord), nil
}

// EvaluateAccuracy computes metrics over a set of records. Records without a
// result count towards the total only.
func EvaluateAccuracy(records []PredictionRecord) AccuracyMetrics {
	m := AccuracyMetrics{TotalPredictions: len(records)}

	var goalDiffErr, totalGoalsErr, brier float64
	var withinOne int
	type bucket struct{ correct, n int }
	var high, medium, low bucket

	for _, r := range records {
		if !r.Completed {
			continue
		}
		m.CompletedPredictions++

		correct := r.PredictedWinner == r.ActualWinner
		if correct {
			m.WinnerCorrect++
		}
		if r.PredictedHome == r.ActualHome && r.PredictedAway == r.ActualAway {
			m.ExactScoreCount++
		}

		goalDiffErr += math.Abs(float64((r.PredictedHome - r.PredictedAway) - (r.ActualHome - r.ActualAway)))
		totalErr := math.Abs(float64((r.PredictedHome + r.PredictedAway) - (r.ActualHome + r.ActualAway)))
		totalGoalsErr += totalErr
		if totalErr <= 1 {
			withinOne++
		}

		actual := [3]float64{}
		switch r.ActualWinner {
		case SideHome:
			actual[0] = 1
		case SideDraw:
			actual[1] = 1
		default:
			actual[2] = 1
		}
		for i, p := range [3]float64{r.HomeWin, r.Draw, r.AwayWin} {
			brier += (p - actual[i]) * (p - actual[i])
		}

		b := &low
		switch {
		case r.Confidence >= HighConfidence:
			b = &high
		case r.Confidence >= MediumConfidence:
			b = &medium
		}
		b.n++
		if correct {
			b.correct++
		}
	}

	if m.CompletedPredictions == 0 {
		return m
	}
	n := float64(m.CompletedPredictions)
	rate := func(k, of int) float64 {
		if of == 0 {
			return 0
		}
		return round4(float64(k) / float64(of))
	}
	m.WinnerAccuracy = rate(m.WinnerCorrect, m.CompletedPredictions)
	m.ExactScoreRate = rate(m.ExactScoreCount, m.CompletedPredictions)
	m.MeanGoalDiffError = round4(goalDiffErr / n)
	m.MeanTotalGoalsError = round4(totalGoalsErr / n)
	m.WithinOneGoalRate = rate(withinOne, m.CompletedPredictions)
	m.BrierScore = round4(brier / n)
	m.HighConfidenceAccuracy = rate(high.correct, high.n)
	m.MediumConfidenceAccuracy = rate(medium.correct, medium.n)
	m.LowConfidenceAccuracy = rate(low.correct, low.n)
	return m
}

// favourite picks the most likely side. Ties that do not clearly favour
// either team go to the draw.
func favourite(home, draw, away float64) string {
	switch {
	case home > draw && home > away:
		return SideHome
	case away > home && away > draw:
		return SideAway
	default:
		return SideDraw
	}
}

func winnerOf(homeGoals, awayGoals int) string {
	switch {
	case homeGoals > awayGoals:
		return SideHome
	case awayGoals > homeGoals:
		return SideAway
	default:
		return SideDraw
	}
}
