package tools

import (
	"context"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
)

func (tk *Toolkit) predictMatchTool() protocol.Tool {
	return protocol.Tool{
		Name: "predict_match",
		Description: `
		Predicts the outcome of a single football match from the two team names.
		Returns home/draw/away probabilities (two decimal places, summing to 1),
		a predicted score, a 0-100 confidence figure, the expected goals behind
		the score and the tier (elite or standard) assigned to each side.
		Unknown or empty team names are treated as standard sides; this never
		fails on a name.
		`,
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"home_team": {
					Type:        "string",
					Description: "The home side, e.g. 'Arsenal' or 'Manchester City FC'",
				},
				"away_team": {
					Type:        "string",
					Description: "The away side",
				},
				"league": {
					Type:        "string",
					Description: "Optional league hint such as 'premier_league'. Selects a per-league elite roster when one is configured.",
				},
			},
			Required: []string{"home_team", "away_team"},
		},
	}
}

func (tk *Toolkit) handlePredictMatch(ctx context.Context, params any) (any, error) {
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	home, err := optionalString(m, "home_team")
	if err != nil {
		return nil, err
	}
	away, err := optionalString(m, "away_team")
	if err != nil {
		return nil, err
	}
	league, err := optionalString(m, "league")
	if err != nil {
		return nil, err
	}

	logger.Info("Predicting", home, "v", away)
	result := tk.predictor.Predict(home, away, league)
	tk.observer.PredictionServed()
	return result, nil
}
