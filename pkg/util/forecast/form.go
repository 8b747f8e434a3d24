package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/richard-senior/forecast/pkg/util"
	"github.com/samber/lo"
)

// Form results
const (
	ResultWin  = "W"
	ResultDraw = "D"
	ResultLoss = "L"
)

// FormMatch is one synthetic recent fixture from the team's point of view
type FormMatch struct {
	Date         string `json:"date"`
	Opponent     string `json:"opponent"`
	Venue        string `json:"venue"`
	GoalsFor     int    `json:"goalsFor"`
	GoalsAgainst int    `json:"goalsAgainst"`
	Score        string `json:"score"`
	Result       string `json:"result"`
}

// SeasonStats are season-to-date totals. Wins + Draws + Losses == Matches.
type SeasonStats struct {
	Matches      int `json:"matches"`
	Wins         int `json:"wins"`
	Draws        int `json:"draws"`
	Losses       int `json:"losses"`
	GoalsFor     int `json:"goalsFor"`
	GoalsAgainst int `json:"goalsAgainst"`
	CleanSheets  int `json:"cleanSheets"`
}

// TeamFormRecord is a team's recent form and season summary
type TeamFormRecord struct {
	Team          string      `json:"team"`
	Tier          string      `json:"tier"`
	RecentForm    []string    `json:"recentForm"`
	RecentMatches []FormMatch `json:"recentMatches"`
	SeasonStats   SeasonStats `json:"seasonStats"`
	Synthetic     bool        `json:"synthetic"`
}

// Form synthesises a team's recent form. Opponents are drawn from the
// configured pool and never resemble the team itself or exclude, which is
// usually the side the team is about to play. Pass "" to exclude nobody.
func (g *SyntheticStatsGenerator) Form(team, exclude string) TeamFormRecord {
	tier := g.tiers.TierOf(team, "")
	profile := profileFor(g.cfg, tier)
	s := NewStream(SeedFor(g.cfg.FormSeedOffset, team))

	opponents := g.opponentsFor(team, exclude)
	results := make([]string, 0, len(opponents))
	for i := range opponents {
		results = append(results, resultFor(s.Float(i), profile))
	}

	ref := g.referenceDate()
	matches := make([]FormMatch, 0, len(opponents))
	for i, opp := range opponents {
		oppProfile := profileFor(g.cfg, g.tiers.TierOf(opp, ""))
		var gf, ga int
		switch results[i] {
		case ResultWin:
			gf, ga = winningScore(s, posMatch+i*4, profile, oppProfile)
		case ResultLoss:
			ga, gf = winningScore(s, posMatch+i*4, oppProfile, profile)
		default:
			gf = drawnScore(s, posMatch+i*4, profile, oppProfile)
			ga = gf
		}
		venue := "away"
		if s.Float(posVenue+i) < 0.5 {
			venue = "home"
		}
		matches = append(matches, FormMatch{
			Date:         ref.AddDate(0, 0, -(i+1)*g.cfg.FormIntervalDays).Format(time.DateOnly),
			Opponent:     opp,
			Venue:        venue,
			GoalsFor:     gf,
			GoalsAgainst: ga,
			Score:        fmt.Sprintf("%d-%d", gf, ga),
			Result:       results[i],
		})
	}

	return TeamFormRecord{
		Team:          team,
		Tier:          tier.String(),
		RecentForm:    results,
		RecentMatches: matches,
		SeasonStats:   g.seasonStats(team, profile),
		Synthetic:     true,
	}
}

// opponentsFor filters the pool and takes a deterministic sample of up to
// FormLength opponents. A small pool yields a shorter form.
func (g *SyntheticStatsGenerator) opponentsFor(team, exclude string) []string {
	pool := lo.Filter(g.cfg.OpponentPool, func(o string, _ int) bool {
		if util.FuzzyContains(o, team) {
			return false
		}
		return exclude == "" || !util.FuzzyContains(o, exclude)
	})
	s := NewStream(SeedFor(g.cfg.OpponentSeedOffset, team, exclude))
	pool = Shuffle(s, 0, pool)
	if len(pool) > g.cfg.FormLength {
		pool = pool[:g.cfg.FormLength]
	}
	return pool
}

func resultFor(u float64, p TierProfile) string {
	switch {
	case u < p.WinRate:
		return ResultWin
	case u < p.WinRate+p.DrawRate:
		return ResultDraw
	default:
		return ResultLoss
	}
}

// seasonStats scales the tier profile over a season with up to ten percent
// of noise either way. Losses take whatever wins and draws leave.
func (g *SyntheticStatsGenerator) seasonStats(team string, p TierProfile) SeasonStats {
	s := NewStream(SeedFor(g.cfg.SeasonSeedOffset, team))
	n := g.cfg.SeasonMatches
	noisy := func(pos int, rate float64) int {
		v := float64(n) * rate * (0.9 + 0.2*s.Float(posSeason+pos))
		return int(math.Round(v))
	}

	stats := SeasonStats{Matches: n}
	stats.Wins = clampInt(noisy(0, p.WinRate), 0, n)
	stats.Draws = clampInt(noisy(1, p.DrawRate), 0, n-stats.Wins)
	stats.Losses = max(0, n-stats.Wins-stats.Draws)
	stats.GoalsFor = max(0, noisy(2, p.GoalsPerMatch))
	stats.GoalsAgainst = max(0, noisy(3, p.ConcededPerMatch))
	// a clean sheet cannot come from a defeat
	stats.CleanSheets = clampInt(noisy(4, p.CleanSheetRate), 0, stats.Wins+stats.Draws)
	return stats
}
