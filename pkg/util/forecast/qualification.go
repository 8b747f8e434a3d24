package forecast

import (
	"fmt"
	"slices"
	"sort"

	"github.com/richard-senior/forecast/pkg/util"
)

// ZoneNone is reported for a position no zone of the policy covers
const ZoneNone = "none"

// Zone is an inclusive range of table positions sharing a fate
type Zone struct {
	Name string `yaml:"name" json:"name"`
	From int    `yaml:"from" json:"from"`
	To   int    `yaml:"to" json:"to"`
}

// QualificationPolicy lists the zones of one competition's table
type QualificationPolicy struct {
	Competition string `yaml:"competition" json:"competition"`
	Zones       []Zone `yaml:"zones" json:"zones"`
}

func (p QualificationPolicy) validate() error {
	if len(p.Zones) == 0 {
		return fmt.Errorf("no zones defined")
	}
	sorted := slices.Clone(p.Zones)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })
	for i, z := range sorted {
		if z.Name == "" {
			return fmt.Errorf("zone %d has no name", i)
		}
		if z.From < 1 || z.To < z.From {
			return fmt.Errorf("zone %s has an invalid range %d-%d", z.Name, z.From, z.To)
		}
		if i > 0 && z.From <= sorted[i-1].To {
			return fmt.Errorf("zone %s overlaps zone %s", z.Name, sorted[i-1].Name)
		}
	}
	return nil
}

// DefaultQualificationPolicies returns the built-in competition policies
func DefaultQualificationPolicies() map[string]QualificationPolicy {
	leaguePhase := func(name string) QualificationPolicy {
		return QualificationPolicy{
			Competition: name,
			Zones: []Zone{
				{Name: "direct", From: 1, To: 8},
				{Name: "playoff", From: 9, To: 24},
				{Name: "eliminated", From: 25, To: 36},
			},
		}
	}
	return map[string]QualificationPolicy{
		"champions_league": leaguePhase("UEFA Champions League"),
		"europa_league":    leaguePhase("UEFA Europa League"),
		"premier_league": {
			Competition: "Premier League",
			Zones: []Zone{
				{Name: "champions_league", From: 1, To: 4},
				{Name: "europa_league", From: 5, To: 5},
				{Name: "relegation", From: 18, To: 20},
			},
		},
	}
}

// QualificationTable answers zone lookups for a fixed set of policies
type QualificationTable struct {
	policies map[string]QualificationPolicy
}

// NewQualificationTable builds a table keyed by normalised competition id
func NewQualificationTable(policies map[string]QualificationPolicy) *QualificationTable {
	t := &QualificationTable{policies: make(map[string]QualificationPolicy, len(policies))}
	for key, p := range policies {
		p.Zones = slices.Clone(p.Zones)
		t.policies[util.NormaliseKey(key)] = p
	}
	return t
}

// Competitions lists the known competition ids in sorted order
func (t *QualificationTable) Competitions() []string {
	keys := make([]string, 0, len(t.policies))
	for k := range t.policies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Policy returns the policy for a competition id
func (t *QualificationTable) Policy(competition string) (QualificationPolicy, error) {
	p, ok := t.policies[util.NormaliseKey(competition)]
	if !ok {
		return QualificationPolicy{}, invalid("competition", "unknown competition %q", competition)
	}
	return p, nil
}

// ZoneFor returns the zone name a table position falls in, or ZoneNone when
// no zone covers it
func (t *QualificationTable) ZoneFor(competition string, position int) (string, error) {
	p, err := t.Policy(competition)
	if err != nil {
		return "", err
	}
	if position < 1 {
		return "", invalid("position", "must be at least 1, got %d", position)
	}
	for _, z := range p.Zones {
		if position >= z.From && position <= z.To {
			return z.Name, nil
		}
	}
	return ZoneNone, nil
}
