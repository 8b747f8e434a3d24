package forecast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err, "Failed to open in-memory store")
	t.Cleanup(func() { store.Close() })

	tracker, err := NewTracker(context.Background(), store)
	require.NoError(t, err, "Failed to create tracker")
	tracker.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	return tracker
}

func TestTrackerRoundTrip(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)
	p := newTestPredictor(testConfig())

	prediction := p.Predict("Arsenal", "Burnley", "premier_league")
	rec, err := tracker.RecordPrediction(ctx, TrackedMatch{
		HomeTeam:  "Arsenal",
		AwayTeam:  "Burnley",
		League:    "Premier League",
		MatchDate: "2025-05-03",
	}, prediction)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "arsenal_v_burnley_2025-05-03", rec.MatchKey)
	assert.Equal(t, SideHome, rec.PredictedWinner)
	assert.Equal(t, "premier_league", rec.League)
	assert.Equal(t, "2025-05-01T12:00:00Z", rec.CreatedAt)

	stored, err := tracker.Get(ctx, rec.MatchKey)
	require.NoError(t, err)
	assert.Equal(t, rec, stored)

	resolved, err := tracker.RecordResult(ctx, rec.MatchKey, 2, 1)
	require.NoError(t, err)
	assert.True(t, resolved.Completed)
	assert.Equal(t, SideHome, resolved.ActualWinner)

	metrics, err := tracker.Accuracy(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalPredictions)
	assert.Equal(t, 1, metrics.CompletedPredictions)
	assert.Equal(t, 1.0, metrics.WinnerAccuracy)
	assert.Equal(t, 1.0, metrics.ExactScoreRate)
}

func TestTrackerRerecordReplacesPrediction(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)
	match := TrackedMatch{MatchKey: "fixture-1", HomeTeam: "Fulham", AwayTeam: "Chelsea"}

	first, err := tracker.RecordPrediction(ctx, match, PredictionResult{HomeWin: 0.5, Draw: 0.3, AwayWin: 0.2})
	require.NoError(t, err)
	_, err = tracker.RecordResult(ctx, "fixture-1", 0, 0)
	require.NoError(t, err)

	second, err := tracker.RecordPrediction(ctx, match, PredictionResult{HomeWin: 0.2, Draw: 0.3, AwayWin: 0.5})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := tracker.Get(ctx, "fixture-1")
	require.NoError(t, err)
	assert.Equal(t, SideAway, stored.PredictedWinner)
	assert.False(t, stored.Completed)

	metrics, err := tracker.Accuracy(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalPredictions)
}

func TestTrackerConcurrentRecordsKeepOneRow(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)
	p := newTestPredictor(testConfig())
	match := TrackedMatch{HomeTeam: "Leeds United", AwayTeam: "Everton", MatchDate: "2025-05-10"}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.RecordPrediction(ctx, match, p.Predict(match.HomeTeam, match.AwayTeam, ""))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows, err := tracker.store.FindWhere(ctx, &PredictionRecord{}, "match_key = ?", "leeds_united_v_everton_2025-05-10")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStoreRejectsDuplicateMatchKey(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	first := &PredictionRecord{MatchKey: "a_v_b", HomeTeam: "A", AwayTeam: "B", PredictedWinner: SideHome, CreatedAt: "2025-05-01T12:00:00Z"}
	require.NoError(t, tracker.store.Save(ctx, first))
	second := *first
	second.ID = ""
	assert.Error(t, tracker.store.Save(ctx, &second))
}

func TestTrackerErrors(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	_, err := tracker.RecordResult(ctx, "missing", 1, 0)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = tracker.RecordResult(ctx, "missing", -1, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = tracker.RecordPrediction(ctx, TrackedMatch{HomeTeam: "Only One"}, PredictionResult{})
	assert.ErrorAs(t, err, &verr)

	_, err = tracker.RecordPrediction(ctx, TrackedMatch{HomeTeam: "A", AwayTeam: "B", MatchDate: "3rd May"}, PredictionResult{})
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "match_date", verr.Field)
}

func TestTrackerAccuracyByLeague(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(t)

	for _, m := range []TrackedMatch{
		{HomeTeam: "Arsenal", AwayTeam: "Everton", League: "premier_league"},
		{HomeTeam: "Napoli", AwayTeam: "Roma", League: "Serie A"},
		{HomeTeam: "Lazio", AwayTeam: "Torino", League: "serie_a"},
	} {
		_, err := tracker.RecordPrediction(ctx, m, PredictionResult{HomeWin: 0.6, Draw: 0.2, AwayWin: 0.2, Confidence: 54})
		require.NoError(t, err)
	}

	metrics, err := tracker.Accuracy(ctx, "Serie A")
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TotalPredictions)
	assert.Equal(t, 0, metrics.CompletedPredictions)
}

func TestEvaluateAccuracy(t *testing.T) {
	records := []PredictionRecord{
		{
			HomeWin: 0.6, Draw: 0.25, AwayWin: 0.15, PredictedHome: 2, PredictedAway: 1,
			PredictedWinner: SideHome, Confidence: 54,
			Completed: true, ActualHome: 2, ActualAway: 1, ActualWinner: SideHome,
		},
		{
			HomeWin: 0.2, Draw: 0.3, AwayWin: 0.5, PredictedHome: 1, PredictedAway: 2,
			PredictedWinner: SideAway, Confidence: 34,
			Completed: true, ActualHome: 1, ActualAway: 1, ActualWinner: SideDraw,
		},
		{HomeWin: 0.4, Draw: 0.3, AwayWin: 0.3, PredictedWinner: SideHome},
	}

	m := EvaluateAccuracy(records)
	assert.Equal(t, 3, m.TotalPredictions)
	assert.Equal(t, 2, m.CompletedPredictions)
	assert.Equal(t, 1, m.WinnerCorrect)
	assert.Equal(t, 0.5, m.WinnerAccuracy)
	assert.Equal(t, 1, m.ExactScoreCount)
	assert.Equal(t, 0.5, m.ExactScoreRate)
	assert.Equal(t, 0.5, m.MeanGoalDiffError)
	assert.Equal(t, 0.5, m.MeanTotalGoalsError)
	assert.Equal(t, 1.0, m.WithinOneGoalRate)
	assert.InDelta(t, 0.5125, m.BrierScore, 1e-9)
	assert.Equal(t, 0.0, m.HighConfidenceAccuracy)
	assert.Equal(t, 1.0, m.MediumConfidenceAccuracy)
	assert.Equal(t, 0.0, m.LowConfidenceAccuracy)

	empty := EvaluateAccuracy(nil)
	assert.Equal(t, AccuracyMetrics{}, empty)
}

func TestStoreRebind(t *testing.T) {
	pg := &Store{dialect: dialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind("SELECT a FROM t WHERE b = ? AND c = ?"))

	lite := &Store{dialect: dialectSQLite}
	assert.Equal(t, "WHERE b = ?", lite.rebind("WHERE b = ?"))
}

func TestGenerateCreateTableSQL(t *testing.T) {
	sql := generateCreateTableSQL(&PredictionRecord{}, "prediction")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS prediction (")
	assert.Contains(t, sql, "id TEXT NOT NULL")
	assert.Contains(t, sql, "draw_prob DOUBLE PRECISION NOT NULL")
	assert.Contains(t, sql, "PRIMARY KEY (id)")

	idx := generateIndexSQL(&PredictionRecord{}, "prediction")
	assert.ElementsMatch(t, []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_prediction_match_key ON prediction(match_key)",
		"CREATE INDEX IF NOT EXISTS idx_prediction_league ON prediction(league)",
	}, idx)
}
