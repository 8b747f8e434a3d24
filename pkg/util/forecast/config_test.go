package forecast

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultForecastConfig()))
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.yaml")
	yaml := `
max_simulations: 2000
default_simulations: 500
elite_teams: [Celtic, Rangers]
qualification:
  scottish_premiership:
    competition: Scottish Premiership
    zones:
      - {name: champions_league, from: 1, to: 2}
      - {name: relegation, from: 12, to: 12}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.MaxSimulations)
	assert.Equal(t, 500, cfg.DefaultSimulations)
	assert.Equal(t, []string{"Celtic", "Rangers"}, cfg.EliteTeams)
	// untouched keys keep their defaults
	assert.Equal(t, 8, cfg.MinEntrants)
	assert.Equal(t, Outcome{Home: 0.42, Draw: 0.28, Away: 0.30}, cfg.BaseOutcome)

	zone, err := NewQualificationTable(cfg.Qualification).ZoneFor("scottish_premiership", 2)
	require.NoError(t, err)
	assert.Equal(t, "champions_league", zone)
}

func TestLoadConfigEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultForecastConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("max_simulations: [nope"), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("default_simulations: 900000"), 0o644))
	_, err = LoadConfig(invalid)
	assert.ErrorContains(t, err, "default_simulations")
}

func TestValidateConfigRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ForecastConfig)
	}{
		{"negative outcome", func(c *ForecastConfig) { c.BaseOutcome.Draw = -0.1 }},
		{"zero outcome", func(c *ForecastConfig) { c.HomeEliteOutcome = Outcome{} }},
		{"two rounds", func(c *ForecastConfig) { c.BracketRounds = []int{8, 4}; c.RoundJitter = []float64{5, 3} }},
		{"growing round", func(c *ForecastConfig) { c.BracketRounds = []int{8, 4, 6} }},
		{"round above entrants", func(c *ForecastConfig) { c.BracketRounds = []int{16, 4, 2} }},
		{"negative jitter", func(c *ForecastConfig) { c.RoundJitter = []float64{5, -1, 3} }},
		{"zero divisor", func(c *ForecastConfig) { c.GoalDiffDivisor = 0 }},
		{"no workers", func(c *ForecastConfig) { c.SimulationWorkers = 0 }},
		{"zero k factor", func(c *ForecastConfig) { c.EloKFactor = 0 }},
		{"negative seed rating", func(c *ForecastConfig) { c.EloRatings["Arsenal"] = -1 }},
		{"zero league coefficient", func(c *ForecastConfig) { c.LeagueCoefficients["mls"] = 0 }},
		{"one team league", func(c *ForecastConfig) { c.MinLeagueTeams = 1 }},
		{"inverted xg range", func(c *ForecastConfig) { c.LeagueAwayXGRange = [2]float64{3.5, 0.3} }},
		{"h2h range", func(c *ForecastConfig) { c.H2HMaxMatches = 2 }},
		{"season too short", func(c *ForecastConfig) { c.SeasonMatches = 3 }},
		{"rates over one", func(c *ForecastConfig) { c.EliteProfile.WinRate = 0.9 }},
		{"bad date", func(c *ForecastConfig) { c.ReferenceDate = "01/06/2025" }},
		{"bad policy", func(c *ForecastConfig) {
			c.Qualification["broken"] = QualificationPolicy{Zones: []Zone{{"a", 1, 5}, {"b", 3, 8}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultForecastConfig()
			tt.mutate(cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultForecastConfig()
	cp := cfg.Clone()

	cp.EliteTeams[0] = "Changed"
	cp.BracketRounds[0] = 99
	cp.Qualification["premier_league"].Zones[0].Name = "changed"
	cp.LeagueEliteTeams["x"] = []string{"y"}
	cp.EloRatings["Arsenal"] = 1
	cp.LeagueCoefficients["mls"] = 9

	assert.Equal(t, "Manchester City", cfg.EliteTeams[0])
	assert.Equal(t, 8, cfg.BracketRounds[0])
	assert.Equal(t, "champions_league", cfg.Qualification["premier_league"].Zones[0].Name)
	assert.NotContains(t, cfg.LeagueEliteTeams, "x")
	assert.Equal(t, 1920.0, cfg.EloRatings["Arsenal"])
	assert.Equal(t, 0.80, cfg.LeagueCoefficients["mls"])
}
