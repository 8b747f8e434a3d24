package forecast

import (
	"cmp"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/richard-senior/forecast/pkg/util"
	"github.com/samber/lo"
)

// TeamRating is a team's Elo rating and the number of results that moved it
type TeamRating struct {
	Team    string  `json:"team"`
	Elo     float64 `json:"elo"`
	Matches int     `json:"matches"`
}

// EloRatings holds one rating per team, keyed by normalised name. Teams start
// from the configured seed table or, failing that, the default rating.
// Safe for concurrent use.
type EloRatings struct {
	cfg          *ForecastConfig
	seeds        map[string]TeamRating
	coefficients map[string]float64

	mu      sync.RWMutex
	ratings map[string]TeamRating
}

// NewEloRatings creates ratings seeded from cfg.EloRatings
func NewEloRatings(cfg *ForecastConfig) *EloRatings {
	r := &EloRatings{
		cfg:          cfg.Clone(),
		seeds:        make(map[string]TeamRating, len(cfg.EloRatings)),
		coefficients: make(map[string]float64, len(cfg.LeagueCoefficients)),
	}
	for team, elo := range cfg.EloRatings {
		r.seeds[util.NormaliseName(team)] = TeamRating{Team: team, Elo: elo}
	}
	for league, c := range cfg.LeagueCoefficients {
		r.coefficients[util.NormaliseKey(league)] = c
	}
	r.ratings = maps.Clone(r.seeds)
	return r
}

// Rating returns a team's current rating
func (r *EloRatings) Rating(team string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(team).Elo
}

// Ratings returns the current rating of each named team, in order
func (r *EloRatings) Ratings(teams []string) []TeamRating {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(teams, func(team string, _ int) TeamRating {
		return r.lookupLocked(team)
	})
}

func (r *EloRatings) lookupLocked(team string) TeamRating {
	if tr, ok := r.ratings[util.NormaliseName(team)]; ok {
		return tr
	}
	return TeamRating{Team: team, Elo: r.cfg.EloDefault}
}

// Expected is the home side's expected score, home advantage included.
// The away side's is one minus this.
func (r *EloRatings) Expected(homeElo, awayElo float64) float64 {
	return 1 / (1 + math.Pow(10, -(homeElo+r.cfg.EloHomeAdvantage-awayElo)/400))
}

// Update applies a final score and returns both sides' new ratings. Larger
// wins and upsets move ratings further, and the league picks the K factor
// multiplier. A team playing itself is left alone.
func (r *EloRatings) Update(home, away string, homeGoals, awayGoals int, league string) (TeamRating, TeamRating) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(home, away, homeGoals, awayGoals, league)
}

func (r *EloRatings) updateLocked(home, away string, homeGoals, awayGoals int, league string) (TeamRating, TeamRating) {
	h, a := r.lookupLocked(home), r.lookupLocked(away)
	homeKey, awayKey := util.NormaliseName(home), util.NormaliseName(away)
	if homeKey == awayKey {
		return h, a
	}

	actual, multiplier := 0.5, 1.0
	switch {
	case homeGoals > awayGoals:
		actual = 1
		multiplier = goalDiffMultiplier(homeGoals-awayGoals, h.Elo, a.Elo)
	case awayGoals > homeGoals:
		actual = 0
		multiplier = goalDiffMultiplier(awayGoals-homeGoals, a.Elo, h.Elo)
	}

	k := r.cfg.EloKFactor * multiplier * r.coefficient(league)
	change := k * (actual - r.Expected(h.Elo, a.Elo))
	h.Elo += change
	a.Elo -= change
	h.Matches++
	a.Matches++
	r.ratings[homeKey] = h
	r.ratings[awayKey] = a
	return h, a
}

// Replay resets every rating to its seed and applies the completed records
// in match order. It returns how many results were applied.
func (r *EloRatings) Replay(records []PredictionRecord) int {
	done := lo.Filter(records, func(rec PredictionRecord, _ int) bool { return rec.Completed })
	slices.SortStableFunc(done, func(x, y PredictionRecord) int {
		if c := cmp.Compare(x.MatchDate, y.MatchDate); c != 0 {
			return c
		}
		if c := cmp.Compare(x.ResolvedAt, y.ResolvedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.MatchKey, y.MatchKey)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings = maps.Clone(r.seeds)
	for _, rec := range done {
		r.updateLocked(rec.HomeTeam, rec.AwayTeam, rec.ActualHome, rec.ActualAway, rec.League)
	}
	return len(done)
}

// Rankings lists rated teams, best first. top <= 0 returns them all.
func (r *EloRatings) Rankings(top int) []TeamRating {
	r.mu.RLock()
	ranked := lo.Values(r.ratings)
	r.mu.RUnlock()

	slices.SortFunc(ranked, func(x, y TeamRating) int {
		if c := cmp.Compare(y.Elo, x.Elo); c != 0 {
			return c
		}
		return cmp.Compare(x.Team, y.Team)
	})
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}
	return ranked
}

func (r *EloRatings) coefficient(league string) float64 {
	if c, ok := r.coefficients[util.NormaliseKey(league)]; ok {
		return c
	}
	return r.cfg.LeagueCoefficientDefault
}

// goalDiffMultiplier scales K by the margin of victory, with a boost of up to
// 30% when the winner was the lower rated side
func goalDiffMultiplier(margin int, winnerElo, loserElo float64) float64 {
	var m float64
	switch {
	case margin <= 1:
		m = 1
	case margin == 2:
		m = 1.5
	case margin == 3:
		m = 1.75
	default:
		m = 1.75 + float64(margin-3)*0.125
	}
	if loserElo > winnerElo {
		m *= 1 + min(0.3, (loserElo-winnerElo)/500)
	}
	return m
}
