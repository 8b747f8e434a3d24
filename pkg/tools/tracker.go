package tools

import (
	"context"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/richard-senior/forecast/pkg/util/forecast"
)

// RecordedPrediction is the output of record_prediction
type RecordedPrediction struct {
	Prediction forecast.PredictionResult  `json:"prediction"`
	Record     *forecast.PredictionRecord `json:"record"`
}

func (tk *Toolkit) recordPredictionTool() protocol.Tool {
	return protocol.Tool{
		Name: "record_prediction",
		Description: `
		Predicts a fixture exactly as predict_match does and stores the prediction so it can
		be scored later with record_result. Recording the same fixture again replaces the
		earlier prediction. Returns the prediction and the stored record including its match_key.
		`,
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"home_team":  {Type: "string", Description: "The home side"},
				"away_team":  {Type: "string", Description: "The away side"},
				"league":     {Type: "string", Description: "Optional league, also used to group accuracy figures"},
				"match_date": {Type: "string", Description: "Optional kick-off date as YYYY-MM-DD"},
				"match_key": {
					Type:        "string",
					Description: "Optional caller-chosen key. Defaults to home_v_away_date.",
				},
			},
			Required: []string{"home_team", "away_team"},
		},
	}
}

func (tk *Toolkit) recordResultTool() protocol.Tool {
	return protocol.Tool{
		Name:        "record_result",
		Description: "Stores the final score of a fixture previously passed to record_prediction.",
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"match_key":  {Type: "string", Description: "The match_key returned by record_prediction"},
				"home_goals": {Type: "integer", Description: "Goals scored by the home side"},
				"away_goals": {Type: "integer", Description: "Goals scored by the away side"},
			},
			Required: []string{"match_key", "home_goals", "away_goals"},
		},
	}
}

func (tk *Toolkit) predictionAccuracyTool() protocol.Tool {
	return protocol.Tool{
		Name: "prediction_accuracy",
		Description: `
		Scores stored predictions against recorded results: winner accuracy, exact score rate,
		mean goal-difference and total-goals error, Brier score and accuracy by confidence band
		(high >= 70, medium 40-69, low < 40).
		`,
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"league": {Type: "string", Description: "Optionally restrict to one league"},
			},
			Required: []string{},
		},
	}
}

func (tk *Toolkit) handleRecordPrediction(ctx context.Context, params any) (any, error) {
	if tk.tracker == nil {
		return nil, ErrTrackingDisabled
	}
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	match := forecast.TrackedMatch{}
	if match.HomeTeam, err = requiredString(m, "home_team"); err != nil {
		return nil, err
	}
	if match.AwayTeam, err = requiredString(m, "away_team"); err != nil {
		return nil, err
	}
	if match.League, err = optionalString(m, "league"); err != nil {
		return nil, err
	}
	if match.MatchDate, err = optionalString(m, "match_date"); err != nil {
		return nil, err
	}
	if match.MatchKey, err = optionalString(m, "match_key"); err != nil {
		return nil, err
	}

	prediction := tk.predictor.Predict(match.HomeTeam, match.AwayTeam, match.League)
	tk.observer.PredictionServed()
	record, err := tk.tracker.RecordPrediction(ctx, match, prediction)
	if err != nil {
		return nil, err
	}
	return RecordedPrediction{Prediction: prediction, Record: record}, nil
}

func (tk *Toolkit) handleRecordResult(ctx context.Context, params any) (any, error) {
	if tk.tracker == nil {
		return nil, ErrTrackingDisabled
	}
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	key, err := requiredString(m, "match_key")
	if err != nil {
		return nil, err
	}
	home, err := requiredInt(m, "home_goals")
	if err != nil {
		return nil, err
	}
	away, err := requiredInt(m, "away_goals")
	if err != nil {
		return nil, err
	}
	rec, err := tk.tracker.RecordResult(ctx, key, home, away)
	if err != nil {
		return nil, err
	}
	if err := tk.RefreshRatings(ctx); err != nil {
		logger.Warn("Ratings not refreshed after", key, err)
	}
	return rec, nil
}

func (tk *Toolkit) handlePredictionAccuracy(ctx context.Context, params any) (any, error) {
	if tk.tracker == nil {
		return nil, ErrTrackingDisabled
	}
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	league, err := optionalString(m, "league")
	if err != nil {
		return nil, err
	}
	return tk.tracker.Accuracy(ctx, league)
}
