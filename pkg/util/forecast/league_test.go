package forecast

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// leagueRequest is a four team table with one round of fixtures left
func leagueRequest(n int, seed uint64) LeagueRequest {
	return LeagueRequest{
		Teams: []LeagueTeam{
			{Team: "Club 01", Points: 40, GoalDifference: 20, Played: 20, Rating: 1800},
			{Team: "Club 02", Points: 38, GoalDifference: 15, Played: 20, Rating: 1750},
			{Team: "Club 03", Points: 30, GoalDifference: 2, Played: 20},
			{Team: "Club 04", Points: 20, GoalDifference: -37, Played: 20, Rating: 1450},
		},
		Fixtures: []Fixture{
			{HomeTeam: "Club 01", AwayTeam: "Club 02"},
			{HomeTeam: "Club 03", AwayTeam: "Club 04"},
			{HomeTeam: "Club 02", AwayTeam: "Club 03"},
			{HomeTeam: "Club 04", AwayTeam: "Club 01"},
		},
		NSimulations: n,
		Seed:         &seed,
	}
}

// fullLeague is a twenty team table with every side still to play the next
// one down
func fullLeague(n int, seed uint64) LeagueRequest {
	req := LeagueRequest{Competition: "Premier League", NSimulations: n, Seed: &seed}
	for i := 0; i < 20; i++ {
		req.Teams = append(req.Teams, LeagueTeam{
			Team:           fmt.Sprintf("Club %02d", i+1),
			Points:         80 - 3*i,
			GoalDifference: 40 - 4*i,
			Played:         36,
			Rating:         1900 - 20*float64(i),
		})
	}
	for i := 0; i < 19; i++ {
		req.Fixtures = append(req.Fixtures, Fixture{HomeTeam: req.Teams[i].Team, AwayTeam: req.Teams[i+1].Team})
	}
	return req
}

func TestLeagueSeededRunsRepeat(t *testing.T) {
	sim := NewLeagueSimulator(testConfig())

	a, err := sim.Simulate(context.Background(), leagueRequest(3000, 21))
	require.NoError(t, err)
	b, err := sim.Simulate(context.Background(), leagueRequest(3000, 21))
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("seeded simulations differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, uint64(21), a.Seed)
	assert.Equal(t, 4, a.RemainingMatches)
	assert.Empty(t, a.Competition)
}

func TestLeagueProbabilitiesAreConsistent(t *testing.T) {
	sim := NewLeagueSimulator(testConfig())

	report, err := sim.Simulate(context.Background(), leagueRequest(5000, 4))
	require.NoError(t, err)
	require.Len(t, report.Standings, 4)

	columns := make([]float64, 4)
	title := 0.0
	for i, s := range report.Standings {
		require.Len(t, s.PositionProbabilities, 4, s.TeamName)
		row := 0.0
		for p, prob := range s.PositionProbabilities {
			row += prob
			columns[p] += prob
		}
		assert.InDelta(t, 1.0, row, 0.001, s.TeamName)
		assert.Equal(t, s.PositionProbabilities[0], s.TitleProbability)
		assert.Nil(t, s.ZoneProbabilities)
		title += s.TitleProbability
		if i > 0 {
			assert.GreaterOrEqual(t, s.AvgFinalPosition, report.Standings[i-1].AvgFinalPosition)
		}
	}
	for p, c := range columns {
		assert.InDelta(t, 1.0, c, 0.001, "position %d", p+1)
	}
	assert.InDelta(t, 1.0, title, 0.001)

	// one round left cannot lift the bottom side off the floor
	bottom := report.Standings[3]
	assert.Equal(t, "Club 04", bottom.TeamName)
	assert.Equal(t, 4.0, bottom.AvgFinalPosition)
	assert.Zero(t, bottom.PositionStd)
	assert.Equal(t, "Club 03", report.Standings[2].TeamName)
	assert.Equal(t, 1500.0, report.Standings[2].Rating)

	top := report.Standings[0]
	assert.Equal(t, "Club 01", report.MostLikelyChampion)
	assert.Equal(t, top.TitleProbability, report.ChampionProbability)
	assert.Greater(t, top.AvgFinalPoints, 40.0)
	assert.LessOrEqual(t, top.AvgFinalPoints, 46.0)
}

func TestLeagueWithoutFixturesBreaksTiesAtRandom(t *testing.T) {
	sim := NewLeagueSimulator(testConfig())
	seed := uint64(8)
	req := LeagueRequest{
		Teams: []LeagueTeam{
			{Team: "Level A", Points: 50, GoalDifference: 10},
			{Team: "Level B", Points: 50, GoalDifference: 10},
			{Team: "Behind", Points: 50, GoalDifference: 9},
		},
		NSimulations: 4000,
		Seed:         &seed,
	}

	report, err := sim.Simulate(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, report.RemainingMatches)
	for _, s := range report.Standings[:2] {
		assert.InDelta(t, 0.5, s.TitleProbability, 0.05, s.TeamName)
	}
	assert.Equal(t, "Behind", report.Standings[2].TeamName)
	assert.Equal(t, []float64{0, 0, 1}, report.Standings[2].PositionProbabilities)
	assert.Equal(t, 50.0, report.Standings[2].AvgFinalPoints)
}

func TestLeagueZoneProbabilities(t *testing.T) {
	sim := NewLeagueSimulator(testConfig())

	report, err := sim.Simulate(context.Background(), fullLeague(4000, 17))
	require.NoError(t, err)
	assert.Equal(t, "premier_league", report.Competition)

	// each zone holds exactly as many teams as it has places
	totals := map[string]float64{}
	for _, s := range report.Standings {
		for zone, p := range s.ZoneProbabilities {
			assert.Greater(t, p, 0.0, "%s %s", s.TeamName, zone)
			totals[zone] += p
		}
	}
	assert.InDelta(t, 4.0, totals["champions_league"], 0.01)
	assert.InDelta(t, 1.0, totals["europa_league"], 0.01)
	assert.InDelta(t, 3.0, totals["relegation"], 0.01)
	assert.NotContains(t, totals, ZoneNone)

	leader := report.Standings[0]
	assert.Equal(t, "Club 01", leader.TeamName)
	assert.Equal(t, map[string]float64{"champions_league": 1}, leader.ZoneProbabilities)
	last := report.Standings[19]
	assert.Equal(t, "Club 20", last.TeamName)
	assert.Equal(t, map[string]float64{"relegation": 1}, last.ZoneProbabilities)
}

func TestLeagueRejectsBadRequests(t *testing.T) {
	cfg := testConfig()
	sim := NewLeagueSimulator(cfg)

	withTeams := func(edit func(*LeagueRequest)) LeagueRequest {
		req := leagueRequest(100, 1)
		edit(&req)
		return req
	}
	tests := []struct {
		name  string
		req   LeagueRequest
		field string
	}{
		{"one team", withTeams(func(r *LeagueRequest) { r.Teams = r.Teams[:1]; r.Fixtures = nil }), "teams"},
		{"no trials", withTeams(func(r *LeagueRequest) { r.NSimulations = 0 }), "n_simulations"},
		{"too many trials", withTeams(func(r *LeagueRequest) { r.NSimulations = cfg.MaxSimulations + 1 }), "n_simulations"},
		{"unknown competition", withTeams(func(r *LeagueRequest) { r.Competition = "sunday_league" }), "competition"},
		{"blank team", withTeams(func(r *LeagueRequest) { r.Teams[2].Team = "" }), "teams[2]"},
		{"negative points", withTeams(func(r *LeagueRequest) { r.Teams[1].Points = -1 }), "teams[1]"},
		{"negative rating", withTeams(func(r *LeagueRequest) { r.Teams[3].Rating = -5 }), "teams[3]"},
		{"listed twice", withTeams(func(r *LeagueRequest) { r.Teams[3].Team = "club  01" }), "teams[3]"},
		{"stranger", withTeams(func(r *LeagueRequest) { r.Fixtures[1].AwayTeam = "Club 99" }), "fixtures[1]"},
		{"blank fixture", withTeams(func(r *LeagueRequest) { r.Fixtures[0].HomeTeam = "" }), "fixtures[0]"},
		{"plays itself", withTeams(func(r *LeagueRequest) { r.Fixtures[2].AwayTeam = "CLUB 02" }), "fixtures[2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Simulate(context.Background(), tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLeagueHonoursCancellation(t *testing.T) {
	sim := NewLeagueSimulator(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Simulate(ctx, fullLeague(50000, 1))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestLeagueExpectedGoals(t *testing.T) {
	sim := NewLeagueSimulator(testConfig())

	home, away := sim.expectedGoals(1500, 1500)
	assert.InDelta(t, 1.60, home, 1e-9)
	assert.InDelta(t, 1.35, away, 1e-9)

	// a 400 point edge shifts both sides by the goal scale
	home, away = sim.expectedGoals(1900, 1500)
	assert.InDelta(t, 1.35*1.3+0.25, home, 1e-9)
	assert.InDelta(t, 1.35*0.7, away, 1e-9)

	home, away = sim.expectedGoals(5000, 0)
	assert.Equal(t, 4.0, home)
	assert.Equal(t, 0.3, away)
	home, away = sim.expectedGoals(0, 5000)
	assert.Equal(t, 0.5, home)
	assert.Equal(t, 3.5, away)
}

func TestSamplePoissonMean(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, lambda := range []float64{0.3, 1.35, 3.2} {
		total := 0
		for i := 0; i < 20000; i++ {
			total += samplePoisson(rng, lambda)
		}
		assert.InDelta(t, lambda, float64(total)/20000, 0.05, "lambda %v", lambda)
	}
}
