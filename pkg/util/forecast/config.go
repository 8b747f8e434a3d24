package forecast

import (
	"fmt"
	"maps"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Outcome is a home/draw/away probability triple
type Outcome struct {
	Home float64 `yaml:"home" json:"home"`
	Draw float64 `yaml:"draw" json:"draw"`
	Away float64 `yaml:"away" json:"away"`
}

// Sum returns the total probability mass of the triple
func (o Outcome) Sum() float64 {
	return o.Home + o.Draw + o.Away
}

// XGCoefficients weight each outcome probability into an expected goals figure
type XGCoefficients struct {
	Win  float64 `yaml:"win"`
	Draw float64 `yaml:"draw"`
	Loss float64 `yaml:"loss"`
}

// TierProfile describes how a tier of teams performs on average. Used by the
// synthetic generator to shape records.
type TierProfile struct {
	WinRate          float64 `yaml:"win_rate"`
	DrawRate         float64 `yaml:"draw_rate"`
	GoalsPerMatch    float64 `yaml:"goals_per_match"`
	ConcededPerMatch float64 `yaml:"conceded_per_match"`
	CleanSheetRate   float64 `yaml:"clean_sheet_rate"`
}

// ForecastConfig contains all configurable parameters that influence forecasts.
// This centralizes all magic numbers and constants for easy adjustment.
// Components take a copy at construction and never mutate it.
type ForecastConfig struct {
	// === TEAM TIERS ===

	EliteTeams       []string            `yaml:"elite_teams"`        // the default elite roster
	LeagueEliteTeams map[string][]string `yaml:"league_elite_teams"` // per-league overrides keyed by league hint
	EliteProfile     TierProfile         `yaml:"elite_profile"`
	StandardProfile  TierProfile         `yaml:"standard_profile"`

	// === MATCH OUTCOME PREDICTION ===

	BaseOutcome        Outcome        `yaml:"base_outcome"`       // neither side elite
	HomeEliteOutcome   Outcome        `yaml:"home_elite_outcome"` // only the home side elite
	AwayEliteOutcome   Outcome        `yaml:"away_elite_outcome"` // only the away side elite
	BothEliteOutcome   Outcome        `yaml:"both_elite_outcome"`
	HomeXG             XGCoefficients `yaml:"home_xg"`
	AwayXG             XGCoefficients `yaml:"away_xg"`
	ConfidenceBaseline float64        `yaml:"confidence_baseline"` // max probability that maps to confidence 0
	ConfidenceScale    float64        `yaml:"confidence_scale"`

	// === BRACKET SIMULATION ===

	MinEntrants        int       `yaml:"min_entrants"`
	BracketRounds      []int     `yaml:"bracket_rounds"`      // cohort size after each cut, e.g. 8, 4, 2
	RoundJitter        []float64 `yaml:"round_jitter"`        // uniform noise added before each cut
	GoalDiffDivisor    float64   `yaml:"goal_diff_divisor"`   // goal differential is worth 1/divisor of a point
	StrengthEpsilon    float64   `yaml:"strength_epsilon"`    // floor for the finalist weighting total
	DefaultSimulations int       `yaml:"default_simulations"` // used when a caller does not say
	MaxSimulations     int       `yaml:"max_simulations"`     // hard cap, anything above is rejected
	SimulationShards   int       `yaml:"simulation_shards"`   // trials are split across this many goroutines
	SimulationWorkers  int       `yaml:"simulation_workers"`  // pool workers
	SimulationQueue    int       `yaml:"simulation_queue"`    // pending jobs before submissions are refused
	JobRetention       int       `yaml:"job_retention"`       // finished jobs kept for status queries

	// === SYNTHETIC STATISTICS ===

	H2HMinMatches       int      `yaml:"h2h_min_matches"`
	H2HMaxMatches       int      `yaml:"h2h_max_matches"`
	H2HRecentMatches    int      `yaml:"h2h_recent_matches"`
	H2HIntervalDays     int      `yaml:"h2h_interval_days"`
	FormLength          int      `yaml:"form_length"`
	FormIntervalDays    int      `yaml:"form_interval_days"`
	SeasonMatches       int      `yaml:"season_matches"`
	H2HSeedOffset       uint64   `yaml:"h2h_seed_offset"`
	FormSeedOffset      uint64   `yaml:"form_seed_offset"`
	OpponentSeedOffset  uint64   `yaml:"opponent_seed_offset"`
	SeasonSeedOffset    uint64   `yaml:"season_seed_offset"`
	ReferenceDate       string   `yaml:"reference_date"` // YYYY-MM-DD anchor for synthetic dates, empty means today (UTC)
	OpponentPool        []string `yaml:"opponent_pool"`

	// === QUALIFICATION ZONES ===

	Qualification map[string]QualificationPolicy `yaml:"qualification"`

	// === RATINGS AND LEAGUE SIMULATION ===

	EloDefault               float64            `yaml:"elo_default"`                // starting rating of an unseeded team
	EloKFactor               float64            `yaml:"elo_k_factor"`
	EloHomeAdvantage         float64            `yaml:"elo_home_advantage"`         // rating points added to the home side
	EloRatings               map[string]float64 `yaml:"elo_ratings"`                // starting ratings by team name
	LeagueCoefficients       map[string]float64 `yaml:"league_coefficients"`        // K multiplier by league id
	LeagueCoefficientDefault float64            `yaml:"league_coefficient_default"` // K multiplier for other leagues
	MinLeagueTeams           int                `yaml:"min_league_teams"`
	LeagueBaseGoals          float64            `yaml:"league_base_goals"`          // expected goals per side between equal teams
	LeagueHomeGoals          float64            `yaml:"league_home_goals"`          // extra expected goals for the home side
	LeagueEloGoalScale       float64            `yaml:"league_elo_goal_scale"`      // expected goals move by this fraction per 400 rating points
	LeagueHomeXGRange        [2]float64         `yaml:"league_home_xg_range"`
	LeagueAwayXGRange        [2]float64         `yaml:"league_away_xg_range"`

	// === TRACKING ===

	TrackerDSN string `yaml:"tracker_dsn"` // sqlite path, ":memory:" or postgres:// url; empty disables tracking

	// === RUNTIME ===

	LogLevel    string   `yaml:"log_level"`
	LogFile     string   `yaml:"log_file"`
	HTTPAddress string   `yaml:"http_address"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultForecastConfig returns the default configuration with all standard values
func DefaultForecastConfig() *ForecastConfig {
	return &ForecastConfig{
		EliteTeams: []string{
			"Manchester City", "Arsenal", "Liverpool", "Chelsea",
			"Real Madrid", "Barcelona", "Atletico Madrid",
			"Bayern", "Dortmund", "Paris Saint-Germain", "PSG",
			"Inter", "Juventus", "AC Milan", "Napoli",
		},
		LeagueEliteTeams: map[string][]string{},
		EliteProfile: TierProfile{
			WinRate:          0.60,
			DrawRate:         0.22,
			GoalsPerMatch:    2.1,
			ConcededPerMatch: 0.9,
			CleanSheetRate:   0.40,
		},
		StandardProfile: TierProfile{
			WinRate:          0.36,
			DrawRate:         0.28,
			GoalsPerMatch:    1.3,
			ConcededPerMatch: 1.4,
			CleanSheetRate:   0.25,
		},

		BaseOutcome:        Outcome{Home: 0.42, Draw: 0.28, Away: 0.30},
		HomeEliteOutcome:   Outcome{Home: 0.55, Draw: 0.25, Away: 0.20},
		AwayEliteOutcome:   Outcome{Home: 0.25, Draw: 0.30, Away: 0.45},
		BothEliteOutcome:   Outcome{Home: 0.38, Draw: 0.32, Away: 0.30},
		HomeXG:             XGCoefficients{Win: 2.2, Draw: 1.1, Loss: 0.8},
		AwayXG:             XGCoefficients{Win: 2.0, Draw: 1.0, Loss: 0.7},
		ConfidenceBaseline: 0.33,
		ConfidenceScale:    200,

		MinEntrants:        8,
		BracketRounds:      []int{8, 4, 2},
		RoundJitter:        []float64{5, 3, 3},
		GoalDiffDivisor:    10,
		StrengthEpsilon:    1e-9,
		DefaultSimulations: 10000,
		MaxSimulations:     50000,
		SimulationShards:   4,
		SimulationWorkers:  2,
		SimulationQueue:    32,
		JobRetention:       128,

		H2HMinMatches:      5,
		H2HMaxMatches:      15,
		H2HRecentMatches:   8,
		H2HIntervalDays:    120,
		FormLength:         5,
		FormIntervalDays:   7,
		SeasonMatches:      20,
		H2HSeedOffset:      1000,
		FormSeedOffset:     2000,
		OpponentSeedOffset: 3000,
		SeasonSeedOffset:   4000,
		OpponentPool: []string{
			"Manchester City", "Arsenal", "Liverpool", "Chelsea", "Manchester United",
			"Tottenham", "Newcastle United", "Aston Villa", "Brighton", "West Ham",
			"Brentford", "Crystal Palace", "Fulham", "Wolves", "Bournemouth",
			"Nottingham Forest", "Everton", "Burnley", "Leeds United", "Sunderland",
			"Real Madrid", "Barcelona", "Atletico Madrid", "Sevilla", "Bayern Munich",
			"Dortmund", "RB Leipzig", "Inter", "Juventus", "AC Milan", "Napoli",
			"Paris Saint-Germain", "Benfica", "Porto", "PSV",
		},

		Qualification: DefaultQualificationPolicies(),

		EloDefault:       1500,
		EloKFactor:       32,
		EloHomeAdvantage: 65,
		EloRatings:       DefaultEloRatings(),
		LeagueCoefficients: map[string]float64{
			"premier_league": 1.15,
			"la_liga":        1.10,
			"bundesliga":     1.05,
			"serie_a":        1.05,
			"ligue_1":        1.00,
			"eredivisie":     0.90,
			"primeira_liga":  0.90,
			"mls":            0.80,
			"championship":   0.85,
			"bundesliga_2":   0.75,
		},
		LeagueCoefficientDefault: 0.85,
		MinLeagueTeams:           2,
		LeagueBaseGoals:          1.35,
		LeagueHomeGoals:          0.25,
		LeagueEloGoalScale:       0.3,
		LeagueHomeXGRange:        [2]float64{0.5, 4.0},
		LeagueAwayXGRange:        [2]float64{0.3, 3.5},

		LogLevel:    "info",
		CORSOrigins: []string{"*"},
	}
}

// DefaultEloRatings returns starting ratings for well known clubs
func DefaultEloRatings() map[string]float64 {
	return map[string]float64{
		"Manchester City": 1950, "Arsenal": 1920, "Liverpool": 1910, "Chelsea": 1850,
		"Manchester United": 1830, "Tottenham": 1800, "Newcastle United": 1780,
		"Brighton": 1750, "Aston Villa": 1740, "West Ham": 1720, "Brentford": 1700,
		"Crystal Palace": 1690, "Fulham": 1680, "Leicester City": 1680, "Wolves": 1670,
		"Bournemouth": 1660, "Nottingham Forest": 1650, "Everton": 1640,
		"Leeds United": 1620, "Southampton": 1600, "Sunderland": 1590,
		"Luton Town": 1580, "Ipswich Town": 1580, "Burnley": 1570, "Sheffield United": 1560,

		"Real Madrid": 1970, "Barcelona": 1940, "Atletico Madrid": 1850,
		"Real Sociedad": 1780, "Athletic Bilbao": 1760, "Real Betis": 1740,
		"Villarreal": 1730, "Sevilla": 1720, "Valencia": 1700, "Girona": 1690,

		"Bayern Munich": 1960, "Dortmund": 1880, "Bayer Leverkusen": 1850,
		"RB Leipzig": 1840, "Eintracht Frankfurt": 1760,

		"Inter": 1900, "Napoli": 1870, "AC Milan": 1850, "Juventus": 1840,
		"Atalanta": 1800, "Roma": 1780, "Lazio": 1760,

		"Paris Saint-Germain": 1920, "PSG": 1920, "Monaco": 1780, "Marseille": 1760,
		"Lyon": 1740, "Lille": 1720,
	}
}

// LoadConfig reads a YAML file over the defaults. Keys missing from the file
// keep their default value.
func LoadConfig(path string) (*ForecastConfig, error) {
	config := DefaultForecastConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config, nil
}

// === CONFIGURATION VALIDATION ===

// ValidateConfig ensures all configuration values are within reasonable ranges
func ValidateConfig(config *ForecastConfig) error {
	outcomes := map[string]Outcome{
		"base_outcome":       config.BaseOutcome,
		"home_elite_outcome": config.HomeEliteOutcome,
		"away_elite_outcome": config.AwayEliteOutcome,
		"both_elite_outcome": config.BothEliteOutcome,
	}
	for name, o := range outcomes {
		if o.Home < 0 || o.Draw < 0 || o.Away < 0 || o.Sum() <= 0 {
			return fmt.Errorf("%s must be non-negative with a positive sum, got %+v", name, o)
		}
	}

	if config.MinEntrants < 2 {
		return fmt.Errorf("min_entrants must be at least 2, got: %d", config.MinEntrants)
	}
	// reports carry quarter-final, semi-final and final columns so the bracket
	// always has exactly three cuts
	if len(config.BracketRounds) != 3 || len(config.RoundJitter) != 3 {
		return fmt.Errorf("bracket_rounds and round_jitter must each have 3 entries, got %d and %d",
			len(config.BracketRounds), len(config.RoundJitter))
	}
	prev := config.MinEntrants
	for i, size := range config.BracketRounds {
		if size < 1 || size > prev {
			return fmt.Errorf("bracket_rounds[%d] must shrink the cohort, got %d after %d", i, size, prev)
		}
		prev = size
	}
	for i, j := range config.RoundJitter {
		if j < 0 {
			return fmt.Errorf("round_jitter[%d] must not be negative, got: %f", i, j)
		}
	}
	if config.GoalDiffDivisor <= 0 {
		return fmt.Errorf("goal_diff_divisor must be positive, got: %f", config.GoalDiffDivisor)
	}
	if config.MaxSimulations < 1 || config.DefaultSimulations < 1 || config.DefaultSimulations > config.MaxSimulations {
		return fmt.Errorf("default_simulations (%d) must be between 1 and max_simulations (%d)",
			config.DefaultSimulations, config.MaxSimulations)
	}
	if config.SimulationShards < 1 || config.SimulationWorkers < 1 || config.SimulationQueue < 1 || config.JobRetention < 1 {
		return fmt.Errorf("simulation_shards, simulation_workers, simulation_queue and job_retention must all be at least 1")
	}

	if config.H2HMinMatches < 1 || config.H2HMaxMatches < config.H2HMinMatches {
		return fmt.Errorf("h2h match range [%d, %d] is invalid", config.H2HMinMatches, config.H2HMaxMatches)
	}
	if config.FormLength < 1 || config.SeasonMatches < config.FormLength {
		return fmt.Errorf("season_matches (%d) must be at least form_length (%d) which must be positive",
			config.SeasonMatches, config.FormLength)
	}
	for name, p := range map[string]TierProfile{"elite_profile": config.EliteProfile, "standard_profile": config.StandardProfile} {
		if p.WinRate < 0 || p.DrawRate < 0 || p.WinRate+p.DrawRate > 1 {
			return fmt.Errorf("%s win_rate + draw_rate must lie in [0, 1], got %f + %f", name, p.WinRate, p.DrawRate)
		}
		if p.CleanSheetRate < 0 || p.CleanSheetRate > 1 {
			return fmt.Errorf("%s clean_sheet_rate must lie in [0, 1], got %f", name, p.CleanSheetRate)
		}
	}
	if config.ReferenceDate != "" {
		if _, err := time.Parse(time.DateOnly, config.ReferenceDate); err != nil {
			return fmt.Errorf("reference_date must be YYYY-MM-DD: %w", err)
		}
	}

	if config.EloDefault <= 0 || config.EloKFactor <= 0 || config.EloHomeAdvantage < 0 {
		return fmt.Errorf("elo_default and elo_k_factor must be positive and elo_home_advantage not negative")
	}
	for team, elo := range config.EloRatings {
		if elo <= 0 {
			return fmt.Errorf("elo_ratings[%s] must be positive, got: %f", team, elo)
		}
	}
	if config.LeagueCoefficientDefault <= 0 {
		return fmt.Errorf("league_coefficient_default must be positive, got: %f", config.LeagueCoefficientDefault)
	}
	for league, c := range config.LeagueCoefficients {
		if c <= 0 {
			return fmt.Errorf("league_coefficients[%s] must be positive, got: %f", league, c)
		}
	}
	if config.MinLeagueTeams < 2 {
		return fmt.Errorf("min_league_teams must be at least 2, got: %d", config.MinLeagueTeams)
	}
	if config.LeagueBaseGoals <= 0 || config.LeagueHomeGoals < 0 || config.LeagueEloGoalScale < 0 {
		return fmt.Errorf("league_base_goals must be positive, league_home_goals and league_elo_goal_scale not negative")
	}
	for name, r := range map[string][2]float64{"league_home_xg_range": config.LeagueHomeXGRange, "league_away_xg_range": config.LeagueAwayXGRange} {
		if r[0] <= 0 || r[1] < r[0] {
			return fmt.Errorf("%s must be a positive [min, max] pair, got %v", name, r)
		}
	}

	for key, policy := range config.Qualification {
		if err := policy.validate(); err != nil {
			return fmt.Errorf("qualification policy %s: %w", key, err)
		}
	}

	if math.IsNaN(config.ConfidenceScale) || config.ConfidenceScale <= 0 {
		return fmt.Errorf("confidence_scale must be positive, got: %f", config.ConfidenceScale)
	}
	return nil
}

// Clone returns a deep copy so a component can hold configuration that no
// caller can mutate afterwards
func (c *ForecastConfig) Clone() *ForecastConfig {
	cp := *c
	cp.EliteTeams = append([]string(nil), c.EliteTeams...)
	cp.LeagueEliteTeams = make(map[string][]string, len(c.LeagueEliteTeams))
	for k, v := range c.LeagueEliteTeams {
		cp.LeagueEliteTeams[k] = append([]string(nil), v...)
	}
	cp.BracketRounds = append([]int(nil), c.BracketRounds...)
	cp.RoundJitter = append([]float64(nil), c.RoundJitter...)
	cp.OpponentPool = append([]string(nil), c.OpponentPool...)
	cp.Qualification = make(map[string]QualificationPolicy, len(c.Qualification))
	for k, v := range c.Qualification {
		v.Zones = append([]Zone(nil), v.Zones...)
		cp.Qualification[k] = v
	}
	cp.EloRatings = maps.Clone(c.EloRatings)
	cp.LeagueCoefficients = maps.Clone(c.LeagueCoefficients)
	cp.CORSOrigins = append([]string(nil), c.CORSOrigins...)
	return &cp
}
