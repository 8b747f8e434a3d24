package forecast

import (
	"github.com/richard-senior/forecast/pkg/util"
)

// Tier classifies a team for the outcome heuristics
type Tier int

const (
	TierStandard Tier = iota
	TierElite
)

func (t Tier) String() string {
	if t == TierElite {
		return "elite"
	}
	return "standard"
}

// TierTable is an immutable lookup of elite rosters. A team is elite when its
// name contains a roster entry, ignoring case, so "Manchester City FC" matches
// "Manchester City". The table is shared by the predictor and the synthetic
// generator.
type TierTable struct {
	elite    []string
	byLeague map[string][]string
}

// NewTierTable builds a table from the default roster and optional per-league
// rosters keyed by league hint
func NewTierTable(elite []string, byLeague map[string][]string) *TierTable {
	t := &TierTable{
		elite:    normaliseAll(elite),
		byLeague: make(map[string][]string, len(byLeague)),
	}
	for league, teams := range byLeague {
		t.byLeague[util.NormaliseKey(league)] = normaliseAll(teams)
	}
	return t
}

// NewTierTableFromConfig is a convenience for NewTierTable(cfg.EliteTeams, cfg.LeagueEliteTeams)
func NewTierTableFromConfig(cfg *ForecastConfig) *TierTable {
	return NewTierTable(cfg.EliteTeams, cfg.LeagueEliteTeams)
}

// TierOf classifies a team. A league hint with its own roster replaces the
// default roster; unknown hints fall back to it. Unknown or empty names are
// always standard.
func (t *TierTable) TierOf(name, leagueHint string) Tier {
	roster := t.elite
	if leagueHint != "" {
		if r, ok := t.byLeague[util.NormaliseKey(leagueHint)]; ok {
			roster = r
		}
	}
	for _, entry := range roster {
		if util.ContainsFold(name, entry) {
			return TierElite
		}
	}
	return TierStandard
}

func normaliseAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = util.NormaliseName(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// profileFor returns the performance profile for a tier
func profileFor(cfg *ForecastConfig, tier Tier) TierProfile {
	if tier == TierElite {
		return cfg.EliteProfile
	}
	return cfg.StandardProfile
}
