package forecast

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/richard-senior/forecast/pkg/util"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// LeagueTeam is a side's standing before the remaining fixtures. A zero
// Rating falls back to the default Elo rating.
type LeagueTeam struct {
	Team           string  `json:"team" validate:"required"`
	Points         int     `json:"points" validate:"gte=0"`
	GoalDifference int     `json:"goalDifference"`
	Played         int     `json:"played" validate:"gte=0"`
	Rating         float64 `json:"rating,omitempty" validate:"gte=0"`
}

// Fixture is a league match still to be played
type Fixture struct {
	HomeTeam string `json:"home_team" validate:"required"`
	AwayTeam string `json:"away_team" validate:"required"`
}

// LeagueRequest asks for the rest of a season to be simulated. Competition
// names a qualification policy; without one no zone probabilities are
// reported.
type LeagueRequest struct {
	Competition  string
	Teams        []LeagueTeam
	Fixtures     []Fixture
	NSimulations int
	Seed         *uint64
}

// LeagueStanding is one team's simulated end of season. PositionProbabilities
// starts at first place.
type LeagueStanding struct {
	TeamName              string             `json:"team_name"`
	CurrentPoints         int                `json:"current_points"`
	CurrentGoalDifference int                `json:"current_goal_difference"`
	Rating                float64            `json:"rating"`
	AvgFinalPosition      float64            `json:"avg_final_position"`
	AvgFinalPoints        float64            `json:"avg_final_points"`
	PositionStd           float64            `json:"position_std"`
	TitleProbability      float64            `json:"title_probability"`
	ZoneProbabilities     map[string]float64 `json:"zone_probabilities,omitempty"`
	PositionProbabilities []float64          `json:"position_probabilities"`
}

// LeagueReport aggregates every trial of a league simulation. Standings are
// ordered by average finishing position.
type LeagueReport struct {
	Competition         string           `json:"competition,omitempty"`
	NSimulations        int              `json:"n_simulations"`
	RemainingMatches    int              `json:"remaining_matches"`
	Standings           []LeagueStanding `json:"standings"`
	MostLikelyChampion  string           `json:"most_likely_champion"`
	ChampionProbability float64          `json:"champion_probability"`
	Seed                uint64           `json:"seed"`
}

// LeagueSimulator plays out the remaining fixtures of a league many times.
// Each match draws Poisson goals around expected goals shifted by the Elo gap
// between the sides; the table is ordered by points, then goal difference,
// then a coin toss.
type LeagueSimulator struct {
	cfg      *ForecastConfig
	zones    *QualificationTable
	validate *validator.Validate
}

// NewLeagueSimulator creates a simulator reporting zones from cfg.Qualification
func NewLeagueSimulator(cfg *ForecastConfig) *LeagueSimulator {
	return &LeagueSimulator{
		cfg:      cfg.Clone(),
		zones:    NewQualificationTable(cfg.Qualification),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate checks a request without running it
func (l *LeagueSimulator) Validate(req LeagueRequest) error {
	if len(req.Teams) < l.cfg.MinLeagueTeams {
		return invalid("teams", "need at least %d teams, got %d", l.cfg.MinLeagueTeams, len(req.Teams))
	}
	if req.NSimulations <= 0 {
		return invalid("n_simulations", "must be positive, got %d", req.NSimulations)
	}
	if req.NSimulations > l.cfg.MaxSimulations {
		return invalid("n_simulations", "must not exceed %d, got %d", l.cfg.MaxSimulations, req.NSimulations)
	}
	if req.Competition != "" {
		if _, err := l.zones.Policy(req.Competition); err != nil {
			return err
		}
	}

	known := make(map[string]bool, len(req.Teams))
	for i, t := range req.Teams {
		field := fmt.Sprintf("teams[%d]", i)
		if err := l.validate.Struct(t); err != nil {
			return invalid(field, "%v", err)
		}
		key := util.NormaliseName(t.Team)
		if known[key] {
			return invalid(field, "team %q is listed twice", t.Team)
		}
		known[key] = true
	}
	for i, f := range req.Fixtures {
		field := fmt.Sprintf("fixtures[%d]", i)
		if err := l.validate.Struct(f); err != nil {
			return invalid(field, "%v", err)
		}
		home, away := util.NormaliseName(f.HomeTeam), util.NormaliseName(f.AwayTeam)
		switch {
		case !known[home]:
			return invalid(field, "%q is not in the table", f.HomeTeam)
		case !known[away]:
			return invalid(field, "%q is not in the table", f.AwayTeam)
		case home == away:
			return invalid(field, "%q cannot play itself", f.HomeTeam)
		}
	}
	return nil
}

// fixtureOdds is a fixture resolved to table indexes and expected goals
type fixtureOdds struct {
	home, away     int
	homeXG, awayXG float64
}

// Simulate runs req.NSimulations seasons. Like the bracket simulator the
// trials are split over seeded shards, so a seeded run is reproducible.
func (l *LeagueSimulator) Simulate(ctx context.Context, req LeagueRequest) (*LeagueReport, error) {
	if err := l.Validate(req); err != nil {
		return nil, err
	}
	seed := drawSeed(req.Seed)

	teams := lo.Map(req.Teams, func(t LeagueTeam, _ int) LeagueTeam {
		if t.Rating == 0 {
			t.Rating = l.cfg.EloDefault
		}
		return t
	})
	index := make(map[string]int, len(teams))
	for i, t := range teams {
		index[util.NormaliseName(t.Team)] = i
	}
	fixtures := lo.Map(req.Fixtures, func(f Fixture, _ int) fixtureOdds {
		h, a := index[util.NormaliseName(f.HomeTeam)], index[util.NormaliseName(f.AwayTeam)]
		homeXG, awayXG := l.expectedGoals(teams[h].Rating, teams[a].Rating)
		return fixtureOdds{home: h, away: a, homeXG: homeXG, awayXG: awayXG}
	})

	shards := min(l.cfg.SimulationShards, req.NSimulations)
	perShard := req.NSimulations / shards
	remainder := req.NSimulations % shards
	results := make([]*seasonTally, shards)

	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		trials := perShard
		if s < remainder {
			trials++
		}
		rng := rand.New(rand.NewPCG(seed, uint64(s)))
		g.Go(func() error {
			t, err := l.runShard(gctx, teams, fixtures, trials, rng)
			results[s] = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := newSeasonTally(len(teams))
	for _, t := range results {
		total.merge(t)
	}
	return l.report(req, teams, total, seed), nil
}

// expectedGoals shifts the base scoring rate by the rating gap, one
// LeagueEloGoalScale per 400 points, and clamps both sides to their ranges
func (l *LeagueSimulator) expectedGoals(homeElo, awayElo float64) (float64, float64) {
	gap := (homeElo - awayElo) / 400 * l.cfg.LeagueEloGoalScale
	home := l.cfg.LeagueBaseGoals*(1+gap) + l.cfg.LeagueHomeGoals
	away := l.cfg.LeagueBaseGoals * (1 - gap)
	hr, ar := l.cfg.LeagueHomeXGRange, l.cfg.LeagueAwayXGRange
	return math.Max(hr[0], math.Min(hr[1], home)), math.Max(ar[0], math.Min(ar[1], away))
}

// seasonTally accumulates finishing positions and points per team
type seasonTally struct {
	positions [][]int // [team][position-1]
	points    []float64
	posSum    []float64
	posSqSum  []float64
}

func newSeasonTally(teams int) *seasonTally {
	t := &seasonTally{
		positions: make([][]int, teams),
		points:    make([]float64, teams),
		posSum:    make([]float64, teams),
		posSqSum:  make([]float64, teams),
	}
	for i := range t.positions {
		t.positions[i] = make([]int, teams)
	}
	return t
}

func (t *seasonTally) merge(other *seasonTally) {
	for i := range t.positions {
		for p, c := range other.positions[i] {
			t.positions[i][p] += c
		}
		t.points[i] += other.points[i]
		t.posSum[i] += other.posSum[i]
		t.posSqSum[i] += other.posSqSum[i]
	}
}

func (l *LeagueSimulator) runShard(ctx context.Context, teams []LeagueTeam, fixtures []fixtureOdds, trials int, rng *rand.Rand) (*seasonTally, error) {
	n := len(teams)
	t := newSeasonTally(n)
	points := make([]int, n)
	goalDiff := make([]int, n)
	tiebreak := make([]float64, n)
	order := make([]int, n)
	byTable := func(x, y int) int {
		if c := cmp.Compare(points[y], points[x]); c != 0 {
			return c
		}
		if c := cmp.Compare(goalDiff[y], goalDiff[x]); c != 0 {
			return c
		}
		return cmp.Compare(tiebreak[y], tiebreak[x])
	}

	for trial := 0; trial < trials; trial++ {
		if trial%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for i, team := range teams {
			points[i] = team.Points
			goalDiff[i] = team.GoalDifference
			tiebreak[i] = rng.Float64()
			order[i] = i
		}
		for _, f := range fixtures {
			hg, ag := samplePoisson(rng, f.homeXG), samplePoisson(rng, f.awayXG)
			switch {
			case hg > ag:
				points[f.home] += 3
			case ag > hg:
				points[f.away] += 3
			default:
				points[f.home]++
				points[f.away]++
			}
			goalDiff[f.home] += hg - ag
			goalDiff[f.away] += ag - hg
		}

		slices.SortFunc(order, byTable)
		for pos, idx := range order {
			t.positions[idx][pos]++
			t.points[idx] += float64(points[idx])
			t.posSum[idx] += float64(pos + 1)
			t.posSqSum[idx] += float64((pos + 1) * (pos + 1))
		}
	}
	return t, nil
}

func (l *LeagueSimulator) report(req LeagueRequest, teams []LeagueTeam, t *seasonTally, seed uint64) *LeagueReport {
	n := float64(req.NSimulations)
	standings := lo.Map(teams, func(team LeagueTeam, i int) LeagueStanding {
		probs := lo.Map(t.positions[i], func(c int, _ int) float64 {
			return round4(clamp01(float64(c) / n))
		})
		mean := t.posSum[i] / n
		variance := math.Max(0, t.posSqSum[i]/n-mean*mean)

		s := LeagueStanding{
			TeamName:              team.Team,
			CurrentPoints:         team.Points,
			CurrentGoalDifference: team.GoalDifference,
			Rating:                round2(team.Rating),
			AvgFinalPosition:      round2(mean),
			AvgFinalPoints:        round2(t.points[i] / n),
			PositionStd:           round2(math.Sqrt(variance)),
			TitleProbability:      probs[0],
			PositionProbabilities: probs,
		}
		if req.Competition != "" {
			s.ZoneProbabilities = l.zoneProbabilities(req.Competition, t.positions[i], n)
		}
		return s
	})
	slices.SortStableFunc(standings, func(x, y LeagueStanding) int {
		if c := cmp.Compare(x.AvgFinalPosition, y.AvgFinalPosition); c != 0 {
			return c
		}
		return cmp.Compare(y.TitleProbability, x.TitleProbability)
	})

	champion := lo.MaxBy(standings, func(a, b LeagueStanding) bool {
		return a.TitleProbability > b.TitleProbability
	})
	competition := ""
	if req.Competition != "" {
		competition = util.NormaliseKey(req.Competition)
	}
	return &LeagueReport{
		Competition:         competition,
		NSimulations:        req.NSimulations,
		RemainingMatches:    len(req.Fixtures),
		Standings:           standings,
		MostLikelyChampion:  champion.TeamName,
		ChampionProbability: champion.TitleProbability,
		Seed:                seed,
	}
}

// zoneProbabilities sums a team's position counts by the zone each position
// falls in. Positions outside every zone, and zones the team never reached,
// are left out.
func (l *LeagueSimulator) zoneProbabilities(competition string, counts []int, n float64) map[string]float64 {
	sums := map[string]int{}
	for p, c := range counts {
		if c == 0 {
			continue
		}
		zone, err := l.zones.ZoneFor(competition, p+1)
		if err != nil || zone == ZoneNone {
			continue
		}
		sums[zone] += c
	}
	return lo.MapValues(sums, func(c int, _ string) float64 {
		return round4(clamp01(float64(c) / n))
	})
}

// samplePoisson draws from a Poisson distribution by multiplying uniforms
// until the product drops below e^-lambda. Fine for the small means of
// football scores.
func samplePoisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	for p := rng.Float64(); p > limit; p *= rng.Float64() {
		k++
	}
	return k
}
