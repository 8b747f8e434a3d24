package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEloSeededRatings(t *testing.T) {
	r := NewEloRatings(testConfig())

	assert.Equal(t, 1920.0, r.Rating("arsenal"))
	assert.Equal(t, 1920.0, r.Rating("  ARSENAL "))
	assert.Equal(t, 1500.0, r.Rating("Sunday Rovers"))
	assert.Equal(t, []TeamRating{
		{Team: "Liverpool", Elo: 1910},
		{Team: "Sunday Rovers", Elo: 1500},
	}, r.Ratings([]string{"Liverpool", "Sunday Rovers"}))
}

func TestEloExpected(t *testing.T) {
	r := NewEloRatings(testConfig())

	// home advantage alone tips an even match
	assert.InDelta(t, 0.5925, r.Expected(1500, 1500), 0.0001)
	assert.InDelta(t, 0.5, r.Expected(1500, 1565), 1e-9)
	assert.Greater(t, r.Expected(1900, 1500), 0.9)
}

func TestEloUpdateIsZeroSum(t *testing.T) {
	r := NewEloRatings(testConfig())

	home, away := r.Update("Burnley", "Arsenal", 2, 0, "premier_league")
	assert.Greater(t, home.Elo, 1570.0)
	assert.Less(t, away.Elo, 1920.0)
	assert.InDelta(t, 1570.0+1920.0, home.Elo+away.Elo, 1e-9)
	assert.Equal(t, 1, home.Matches)
	assert.Equal(t, 1, away.Matches)
	assert.Equal(t, home.Elo, r.Rating("Burnley"))

	// an even side drawing at home gives back its advantage
	home, _ = r.Update("New Town", "Old Town", 1, 1, "")
	assert.Less(t, home.Elo, 1500.0)
}

func TestEloUpdateScalesWithMarginAndLeague(t *testing.T) {
	change := func(homeGoals, awayGoals int, league string) float64 {
		r := NewEloRatings(testConfig())
		home, _ := r.Update("New Town", "Old Town", homeGoals, awayGoals, league)
		return home.Elo - 1500
	}

	narrow := change(1, 0, "premier_league")
	assert.Greater(t, narrow, 0.0)
	assert.InDelta(t, 1.5*narrow, change(2, 0, "premier_league"), 1e-9)
	assert.InDelta(t, 1.875*narrow, change(4, 0, "premier_league"), 1e-9)
	assert.InDelta(t, narrow*0.80/1.15, change(1, 0, "MLS"), 1e-9)
	assert.InDelta(t, narrow*0.85/1.15, change(1, 0, "sunday_league"), 1e-9)
}

func TestEloTeamCannotPlayItself(t *testing.T) {
	r := NewEloRatings(testConfig())

	home, away := r.Update("Arsenal", "arsenal", 5, 0, "")
	assert.Equal(t, 1920.0, home.Elo)
	assert.Equal(t, 1920.0, away.Elo)
	assert.Zero(t, home.Matches)
}

func TestGoalDiffMultiplier(t *testing.T) {
	tests := []struct {
		name           string
		margin         int
		winner, loser  float64
		wantMultiplier float64
	}{
		{"one goal", 1, 1600, 1500, 1},
		{"two goals", 2, 1600, 1500, 1.5},
		{"three goals", 3, 1600, 1500, 1.75},
		{"five goals", 5, 1600, 1500, 2},
		{"small upset", 1, 1500, 1600, 1.2},
		{"big upset is capped", 2, 1300, 1800, 1.5 * 1.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.wantMultiplier, goalDiffMultiplier(tt.margin, tt.winner, tt.loser), 1e-9)
		})
	}
}

func TestEloReplay(t *testing.T) {
	r := NewEloRatings(testConfig())
	records := []PredictionRecord{
		{MatchKey: "b", HomeTeam: "Fulham", AwayTeam: "Everton", League: "premier_league",
			MatchDate: "2025-05-17", Completed: true, ActualHome: 0, ActualAway: 2},
		{MatchKey: "a", HomeTeam: "Everton", AwayTeam: "Fulham", League: "premier_league",
			MatchDate: "2025-05-10", Completed: true, ActualHome: 1, ActualAway: 1},
		{MatchKey: "c", HomeTeam: "Fulham", AwayTeam: "Arsenal", MatchDate: "2025-05-24"},
	}

	assert.Equal(t, 2, r.Replay(records))
	everton := r.Ratings([]string{"Everton"})[0]
	assert.Equal(t, 2, everton.Matches)
	assert.Equal(t, 1920.0, r.Rating("Arsenal"))

	// the same results applied by hand, oldest first
	manual := NewEloRatings(testConfig())
	manual.Update("Everton", "Fulham", 1, 1, "premier_league")
	manual.Update("Fulham", "Everton", 0, 2, "premier_league")
	assert.Equal(t, manual.Rating("Everton"), everton.Elo)
	assert.Equal(t, manual.Rating("Fulham"), r.Rating("Fulham"))

	// replaying starts over from the seeds
	r.Update("Arsenal", "Fulham", 3, 0, "")
	assert.Equal(t, 2, r.Replay(records))
	assert.Equal(t, 1920.0, r.Rating("Arsenal"))
	assert.Equal(t, everton, r.Ratings([]string{"Everton"})[0])

	assert.Zero(t, r.Replay(nil))
	assert.Equal(t, 1640.0, r.Rating("Everton"))
}

func TestEloRankings(t *testing.T) {
	r := NewEloRatings(testConfig())

	ranked := r.Rankings(7)
	require.Len(t, ranked, 7)
	names := make([]string, len(ranked))
	for i, tr := range ranked {
		names[i] = tr.Team
	}
	// equal ratings fall back to name order
	assert.Equal(t, []string{
		"Real Madrid", "Bayern Munich", "Manchester City", "Barcelona",
		"Arsenal", "PSG", "Paris Saint-Germain",
	}, names)

	assert.Len(t, r.Rankings(0), len(DefaultEloRatings()))

	r.Update("Sunday Rovers", "Real Madrid", 4, 0, "")
	assert.Len(t, r.Rankings(0), len(DefaultEloRatings())+1)
	assert.NotEqual(t, "Real Madrid", r.Rankings(1)[0].Team)
}
