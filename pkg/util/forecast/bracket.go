package forecast

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// cancellation is checked once every this many trials
const cancelCheckInterval = 256

// Entrant is a team with its current standing
type Entrant struct {
	Team           string `json:"team" validate:"required"`
	Points         int    `json:"points" validate:"gte=0"`
	GoalDifference int    `json:"goalDifference"`
}

// BracketProbabilityRow holds one team's advancement probabilities.
// Values never increase from quarter-final through to win.
type BracketProbabilityRow struct {
	TeamName                string  `json:"team_name"`
	CurrentPoints           int     `json:"current_points"`
	WinProbability          float64 `json:"win_probability"`
	FinalProbability        float64 `json:"final_probability"`
	SemiFinalProbability    float64 `json:"semi_final_probability"`
	QuarterFinalProbability float64 `json:"quarter_final_probability"`
}

// SimulationReport aggregates every trial of a bracket simulation
type SimulationReport struct {
	NSimulations      int                     `json:"n_simulations"`
	Teams             []BracketProbabilityRow `json:"teams"`
	MostLikelyWinner  string                  `json:"most_likely_winner"`
	WinnerProbability float64                 `json:"winner_probability"`
	Seed              uint64                  `json:"seed"`
}

// MaxDrawnSeed bounds the seeds a run draws for itself. Keeping them within
// 2^53 lets a reported seed pass through a JSON number unchanged.
const MaxDrawnSeed = 1<<53 - 1

// SimulationOptions tweak a single run. A nil Seed draws a random one no
// larger than MaxDrawnSeed.
type SimulationOptions struct {
	Seed *uint64
}

// BracketSimulator runs Monte Carlo trials over a knockout bracket seeded by
// league standing. Each trial scores every entrant with some noise, keeps the
// strongest cohort, re-scores and cuts again until the finalists remain, then
// draws a champion in proportion to strength.
type BracketSimulator struct {
	cfg      *ForecastConfig
	validate *validator.Validate
}

// NewBracketSimulator creates a simulator over the given configuration
func NewBracketSimulator(cfg *ForecastConfig) *BracketSimulator {
	return &BracketSimulator{
		cfg:      cfg.Clone(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate checks a request without running it. Too few entrants is reported
// before anything else so callers get InsufficientDataError whatever n is.
func (b *BracketSimulator) Validate(entrants []Entrant, nSimulations int) error {
	if len(entrants) < b.cfg.MinEntrants {
		return &InsufficientDataError{Minimum: b.cfg.MinEntrants, Actual: len(entrants)}
	}
	if nSimulations <= 0 {
		return invalid("n_simulations", "must be positive, got %d", nSimulations)
	}
	if nSimulations > b.cfg.MaxSimulations {
		return invalid("n_simulations", "must not exceed %d, got %d", b.cfg.MaxSimulations, nSimulations)
	}
	for i, e := range entrants {
		if err := b.validate.Struct(e); err != nil {
			return invalid(fmt.Sprintf("entrants[%d]", i), "%v", err)
		}
	}
	return nil
}

// Simulate runs nSimulations trials and reports per-team probabilities.
// Trials are split over a fixed number of shards, each with its own generator
// derived from the seed, so a seeded run is reproducible on any machine.
// A cancelled context aborts the run with the context's error.
func (b *BracketSimulator) Simulate(ctx context.Context, entrants []Entrant, nSimulations int, opts SimulationOptions) (*SimulationReport, error) {
	if err := b.Validate(entrants, nSimulations); err != nil {
		return nil, err
	}

	seed := drawSeed(opts.Seed)

	base := lo.Map(entrants, func(e Entrant, _ int) float64 {
		return float64(e.Points) + float64(e.GoalDifference)/b.cfg.GoalDiffDivisor
	})

	shards := min(b.cfg.SimulationShards, nSimulations)
	perShard := nSimulations / shards
	remainder := nSimulations % shards
	results := make([]*tally, shards)

	g, gctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		trials := perShard
		if s < remainder {
			trials++
		}
		rng := rand.New(rand.NewPCG(seed, uint64(s)))
		g.Go(func() error {
			t, err := b.runShard(gctx, base, trials, rng)
			results[s] = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := newTally(len(b.cfg.BracketRounds)+1, len(entrants))
	for _, t := range results {
		total.merge(t)
	}
	return b.report(entrants, total, nSimulations, seed), nil
}

func drawSeed(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	return rand.Uint64() >> 11
}

// tally counts, per stage and per entrant, how often the entrant got that far.
// The last stage is the championship.
type tally struct {
	counts [][]int
}

func newTally(stages, entrants int) *tally {
	t := &tally{counts: make([][]int, stages)}
	for i := range t.counts {
		t.counts[i] = make([]int, entrants)
	}
	return t
}

func (t *tally) merge(other *tally) {
	for stage := range t.counts {
		for i, c := range other.counts[stage] {
			t.counts[stage][i] += c
		}
	}
}

func (b *BracketSimulator) runShard(ctx context.Context, base []float64, trials int, rng *rand.Rand) (*tally, error) {
	rounds := b.cfg.BracketRounds
	jitter := b.cfg.RoundJitter
	t := newTally(len(rounds)+1, len(base))

	strength := make([]float64, len(base))
	cohort := make([]int, len(base))
	weights := make([]float64, rounds[len(rounds)-1])
	byStrength := func(x, y int) int { return cmp.Compare(strength[y], strength[x]) }

	for trial := 0; trial < trials; trial++ {
		if trial%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		for i := range cohort {
			cohort[i] = i
		}
		active := cohort

		// Each cut keeps the strongest teams of the previous cohort, so every
		// later stage is a subset of the one before it
		for r, size := range rounds {
			for _, idx := range active {
				noise := rng.Float64() * jitter[r]
				if r == 0 {
					strength[idx] = base[idx] + noise
				} else {
					strength[idx] += noise
				}
			}
			slices.SortFunc(active, byStrength)
			active = active[:size]
			for _, idx := range active {
				t.counts[r][idx]++
			}
		}

		for i, idx := range active {
			weights[i] = strength[idx]
		}
		winner := sampleCategorical(weights[:len(active)], rng.Float64(), b.cfg.StrengthEpsilon)
		t.counts[len(rounds)][active[winner]]++
	}
	return t, nil
}

func (b *BracketSimulator) report(entrants []Entrant, t *tally, nSimulations int, seed uint64) *SimulationReport {
	n := float64(nSimulations)
	prob := func(stage, idx int) float64 {
		return round4(clamp01(float64(t.counts[stage][idx]) / n))
	}

	rows := lo.Map(entrants, func(e Entrant, i int) BracketProbabilityRow {
		return BracketProbabilityRow{
			TeamName:                e.Team,
			CurrentPoints:           e.Points,
			QuarterFinalProbability: prob(0, i),
			SemiFinalProbability:    prob(1, i),
			FinalProbability:        prob(2, i),
			WinProbability:          prob(3, i),
		}
	})
	slices.SortStableFunc(rows, func(x, y BracketProbabilityRow) int {
		if c := cmp.Compare(y.WinProbability, x.WinProbability); c != 0 {
			return c
		}
		return cmp.Compare(y.QuarterFinalProbability, x.QuarterFinalProbability)
	})

	return &SimulationReport{
		NSimulations:      nSimulations,
		Teams:             rows,
		MostLikelyWinner:  rows[0].TeamName,
		WinnerProbability: rows[0].WinProbability,
		Seed:              seed,
	}
}
