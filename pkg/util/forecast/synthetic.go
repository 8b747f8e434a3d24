package forecast

import (
	"math"
	"time"

	"github.com/richard-senior/forecast/pkg/util"
)

// Winner tags used in synthetic match records
const (
	WinnerTeam1 = "team1"
	WinnerTeam2 = "team2"
	WinnerDraw  = "draw"
)

// H2HTeamStats is one side's share of a head-to-head record
type H2HTeamStats struct {
	Name        string `json:"name"`
	Wins        int    `json:"wins"`
	Goals       int    `json:"goals"`
	CleanSheets int    `json:"cleanSheets"`
	HomeWins    int    `json:"homeWins"`
	AwayWins    int    `json:"awayWins"`
}

// H2HMatch is a single meeting, most recent first in a record
type H2HMatch struct {
	Date      string `json:"date"`
	HomeTeam  string `json:"homeTeam"`
	AwayTeam  string `json:"awayTeam"`
	HomeScore int    `json:"homeScore"`
	AwayScore int    `json:"awayScore"`
	Winner    string `json:"winner"`
}

// H2HRecord is the aggregate history between two teams.
// Team1.Wins + Team2.Wins + Draws always equals TotalMatches.
type H2HRecord struct {
	TotalMatches     int          `json:"totalMatches"`
	Team1            H2HTeamStats `json:"team1"`
	Team2            H2HTeamStats `json:"team2"`
	Draws            int          `json:"draws"`
	AvgGoalsPerMatch float64      `json:"avgGoalsPerMatch"`
	RecentMatches    []H2HMatch   `json:"recentMatches"`
	Synthetic        bool         `json:"synthetic"`
}

// SyntheticStatsGenerator produces plausible head-to-head and form records
// when no real history is available. Output is a pure function of the input
// names and the configured reference date.
type SyntheticStatsGenerator struct {
	cfg   *ForecastConfig
	tiers *TierTable
}

// NewSyntheticStatsGenerator creates a generator sharing the predictor's tier table
func NewSyntheticStatsGenerator(cfg *ForecastConfig, tiers *TierTable) *SyntheticStatsGenerator {
	return &SyntheticStatsGenerator{cfg: cfg.Clone(), tiers: tiers}
}

// stream positions, kept apart so no two draws share a counter
const (
	posTotal     = 0
	posWinJitter = 1
	posShuffle   = 100
	posMatch     = 1000
	posVenue     = 2000
	posSeason    = 3000
)

// H2H synthesises the record between team1 and team2. The same pair always
// yields the same record, and asking for (team2, team1) mirrors it.
func (g *SyntheticStatsGenerator) H2H(team1, team2 string) H2HRecord {
	// records are generated for the pair in name order
	if util.NormaliseName(team1) > util.NormaliseName(team2) {
		return g.H2H(team2, team1).mirrored()
	}

	s := NewStream(SeedFor(g.cfg.H2HSeedOffset, team1, team2))
	p1 := profileFor(g.cfg, g.tiers.TierOf(team1, ""))
	p2 := profileFor(g.cfg, g.tiers.TierOf(team2, ""))

	total := s.IntRange(posTotal, g.cfg.H2HMinMatches, g.cfg.H2HMaxMatches)
	wins1, wins2, draws := splitResults(s, total, p1, p2)

	outcomes := make([]string, 0, total)
	for i := 0; i < wins1; i++ {
		outcomes = append(outcomes, WinnerTeam1)
	}
	for i := 0; i < wins2; i++ {
		outcomes = append(outcomes, WinnerTeam2)
	}
	for i := 0; i < draws; i++ {
		outcomes = append(outcomes, WinnerDraw)
	}
	outcomes = Shuffle(s, posShuffle, outcomes)

	rec := H2HRecord{
		TotalMatches: total,
		Team1:        H2HTeamStats{Name: team1},
		Team2:        H2HTeamStats{Name: team2},
		Draws:        draws,
		Synthetic:    true,
	}

	ref := g.referenceDate()
	goals := 0
	for i, outcome := range outcomes {
		var g1, g2 int
		switch outcome {
		case WinnerTeam1:
			g1, g2 = winningScore(s, posMatch+i*4, p1, p2)
			rec.Team1.Wins++
		case WinnerTeam2:
			g2, g1 = winningScore(s, posMatch+i*4, p2, p1)
			rec.Team2.Wins++
		default:
			g1 = drawnScore(s, posMatch+i*4, p1, p2)
			g2 = g1
		}
		rec.Team1.Goals += g1
		rec.Team2.Goals += g2
		goals += g1 + g2
		if g2 == 0 {
			rec.Team1.CleanSheets++
		}
		if g1 == 0 {
			rec.Team2.CleanSheets++
		}

		// venues alternate, the first team by name hosting the most recent meeting
		team1Home := i%2 == 0
		switch {
		case outcome == WinnerTeam1 && team1Home:
			rec.Team1.HomeWins++
		case outcome == WinnerTeam1:
			rec.Team1.AwayWins++
		case outcome == WinnerTeam2 && team1Home:
			rec.Team2.AwayWins++
		case outcome == WinnerTeam2:
			rec.Team2.HomeWins++
		}

		if i >= g.cfg.H2HRecentMatches {
			continue
		}
		m := H2HMatch{
			Date:      ref.AddDate(0, 0, -(i+1)*g.cfg.H2HIntervalDays).Format(time.DateOnly),
			HomeTeam:  team1,
			AwayTeam:  team2,
			HomeScore: g1,
			AwayScore: g2,
			Winner:    outcome,
		}
		if !team1Home {
			m.HomeTeam, m.AwayTeam = team2, team1
			m.HomeScore, m.AwayScore = g2, g1
		}
		rec.RecentMatches = append(rec.RecentMatches, m)
	}
	if total > 0 {
		rec.AvgGoalsPerMatch = round2(float64(goals) / float64(total))
	}
	return rec
}

// mirrored swaps the sides of a record. Recent matches keep their venues and
// scores; only the winner tags change sides.
func (r H2HRecord) mirrored() H2HRecord {
	r.Team1, r.Team2 = r.Team2, r.Team1
	matches := make([]H2HMatch, len(r.RecentMatches))
	for i, m := range r.RecentMatches {
		switch m.Winner {
		case WinnerTeam1:
			m.Winner = WinnerTeam2
		case WinnerTeam2:
			m.Winner = WinnerTeam1
		}
		matches[i] = m
	}
	r.RecentMatches = matches
	return r
}

// splitResults divides total meetings into wins for each side and draws.
// Each side's share of the decisive results follows its tier win rate and the
// draw share is the mean of the two draw rates, nudged by one either way.
// Should the rounded wins overrun the total the draws are dropped and the
// wins re-derived in proportion.
func splitResults(s Stream, total int, p1, p2 TierProfile) (wins1, wins2, draws int) {
	decisive := 1 - (p1.DrawRate+p2.DrawRate)/2
	share1 := 0.5
	if p1.WinRate+p2.WinRate > 0 {
		share1 = p1.WinRate / (p1.WinRate + p2.WinRate)
	}
	wins1 = int(math.Round(float64(total) * decisive * share1))
	wins2 = int(math.Round(float64(total) * decisive * (1 - share1)))
	wins1 = max(0, wins1+s.IntRange(posWinJitter, -1, 1))

	draws = total - wins1 - wins2
	if draws < 0 {
		decided := wins1 + wins2
		wins1 = int(math.Round(float64(total) * float64(wins1) / float64(decided)))
		wins2 = total - wins1
		draws = 0
	}
	return wins1, wins2, draws
}

// winningScore returns a scoreline the winner takes. The loser scores up to
// its usual tally and the winner clears it by a margin that grows with its
// scoring rate.
func winningScore(s Stream, pos int, winner, loser TierProfile) (int, int) {
	l := s.IntRange(pos, 0, max(0, int(math.Round(loser.GoalsPerMatch))))
	margin := 1 + s.IntRange(pos+1, 0, max(0, int(math.Round(winner.GoalsPerMatch))-1))
	return l + margin, l
}

// drawnScore returns the goals each side scored in a draw
func drawnScore(s Stream, pos int, a, b TierProfile) int {
	avg := (a.GoalsPerMatch + b.GoalsPerMatch) / 2
	return s.IntRange(pos, 0, max(0, int(math.Round(avg))))
}

// referenceDate anchors synthetic dates. Without a configured date it is the
// start of the current UTC day so output is stable for a whole day.
func (g *SyntheticStatsGenerator) referenceDate() time.Time {
	if g.cfg.ReferenceDate != "" {
		if t, err := time.Parse(time.DateOnly, g.cfg.ReferenceDate); err == nil {
			return t
		}
	}
	return time.Now().UTC().Truncate(24 * time.Hour)
}
