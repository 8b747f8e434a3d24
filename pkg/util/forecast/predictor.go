package forecast

import (
	"math"
)

// Score is a home/away scoreline
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// ExpectedGoals holds the xG figures behind a predicted score
type ExpectedGoals struct {
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

// PredictionResult holds the complete outcome prediction for one fixture
type PredictionResult struct {
	HomeWin        float64       `json:"home_win"`
	Draw           float64       `json:"draw"`
	AwayWin        float64       `json:"away_win"`
	PredictedScore Score         `json:"predicted_score"`
	Confidence     int           `json:"confidence"`
	ExpectedGoals  ExpectedGoals `json:"expected_goals"`
	HomeTier       string        `json:"home_tier"`
	AwayTier       string        `json:"away_tier"`
}

// MatchOutcomePredictor maps two team identities to outcome probabilities.
// It holds no mutable state and is safe for concurrent use.
type MatchOutcomePredictor struct {
	cfg   *ForecastConfig
	tiers *TierTable
}

// NewMatchOutcomePredictor creates a predictor over the given configuration and tier table
func NewMatchOutcomePredictor(cfg *ForecastConfig, tiers *TierTable) *MatchOutcomePredictor {
	return &MatchOutcomePredictor{cfg: cfg.Clone(), tiers: tiers}
}

// Probabilities returns the normalised, unrounded outcome triple for a fixture
func (p *MatchOutcomePredictor) Probabilities(homeTeam, awayTeam, leagueHint string) Outcome {
	homeTier := p.tiers.TierOf(homeTeam, leagueHint)
	awayTier := p.tiers.TierOf(awayTeam, leagueHint)
	return normaliseOutcome(p.outcomeFor(homeTier, awayTier))
}

func (p *MatchOutcomePredictor) outcomeFor(home, away Tier) Outcome {
	switch {
	case home == TierElite && away == TierElite:
		return p.cfg.BothEliteOutcome
	case home == TierElite:
		return p.cfg.HomeEliteOutcome
	case away == TierElite:
		return p.cfg.AwayEliteOutcome
	default:
		return p.cfg.BaseOutcome
	}
}

// Predict calculates the outcome probabilities, predicted score and confidence
// for a fixture. It never fails: unknown names fall back to the baseline.
func (p *MatchOutcomePredictor) Predict(homeTeam, awayTeam, leagueHint string) PredictionResult {
	homeTier := p.tiers.TierOf(homeTeam, leagueHint)
	awayTier := p.tiers.TierOf(awayTeam, leagueHint)
	o := normaliseOutcome(p.outcomeFor(homeTier, awayTier))

	// Expected goals are an outcome-weighted blend of per-outcome scoring rates
	homeXG := o.Home*p.cfg.HomeXG.Win + o.Draw*p.cfg.HomeXG.Draw + o.Away*p.cfg.HomeXG.Loss
	awayXG := o.Away*p.cfg.AwayXG.Win + o.Draw*p.cfg.AwayXG.Draw + o.Home*p.cfg.AwayXG.Loss

	return PredictionResult{
		HomeWin: round2(o.Home),
		Draw:    round2(o.Draw),
		AwayWin: round2(o.Away),
		PredictedScore: Score{
			Home: roundGoals(homeXG),
			Away: roundGoals(awayXG),
		},
		Confidence: p.confidence(o),
		ExpectedGoals: ExpectedGoals{
			Home: round2(homeXG),
			Away: round2(awayXG),
		},
		HomeTier: homeTier.String(),
		AwayTier: awayTier.String(),
	}
}

// confidence maps the favourite's probability onto 0-100, where an even three
// way split scores 0
func (p *MatchOutcomePredictor) confidence(o Outcome) int {
	top := math.Max(o.Home, math.Max(o.Draw, o.Away))
	c := int(math.Round((top - p.cfg.ConfidenceBaseline) * p.cfg.ConfidenceScale))
	return clampInt(c, 0, 100)
}

// normaliseOutcome divides each component by the total so the triple sums to 1
func normaliseOutcome(o Outcome) Outcome {
	o.Home = math.Max(o.Home, 0)
	o.Draw = math.Max(o.Draw, 0)
	o.Away = math.Max(o.Away, 0)
	total := o.Sum()
	if total <= 0 {
		return Outcome{Home: 1.0 / 3, Draw: 1.0 / 3, Away: 1.0 / 3}
	}
	return Outcome{
		Home: clamp01(o.Home / total),
		Draw: clamp01(o.Draw / total),
		Away: clamp01(o.Away / total),
	}
}

// roundGoals rounds half away from zero and never goes below zero
func roundGoals(xg float64) int {
	if math.IsNaN(xg) || xg < 0 {
		return 0
	}
	return int(math.Round(xg))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
