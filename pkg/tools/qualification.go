package tools

import (
	"context"
	"strings"

	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/richard-senior/forecast/pkg/util/forecast"
)

// ZoneResult is the zone a league position falls into
type ZoneResult struct {
	Position int    `json:"position"`
	Zone     string `json:"zone"`
}

// QualificationResponse is the output of qualification_zones
type QualificationResponse struct {
	Competition  string          `json:"competition,omitempty"`
	Zones        []forecast.Zone `json:"zones,omitempty"`
	Positions    []ZoneResult    `json:"positions,omitempty"`
	Competitions []string        `json:"competitions,omitempty"`
}

func (tk *Toolkit) qualificationZonesTool() protocol.Tool {
	return protocol.Tool{
		Name: "qualification_zones",
		Description: `
		Looks up qualification zones (e.g. direct, playoff, eliminated, relegation) for a competition.
		With only a competition it returns the zone table; with positions it also says
		which zone each position falls into ('none' when no zone covers it).
		Without a competition it lists the known competitions.
		Available competitions: ` + strings.Join(tk.zones.Competitions(), ", "),
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"competition": {Type: "string", Description: "Competition id, e.g. 'champions_league'"},
				"positions": {
					Type:        "array",
					Description: "League positions to classify, 1 is top",
					Items:       &protocol.ToolProperty{Type: "integer"},
				},
				"position": {Type: "integer", Description: "A single league position to classify"},
			},
			Required: []string{},
		},
	}
}

func (tk *Toolkit) handleQualificationZones(ctx context.Context, params any) (any, error) {
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	competition, err := optionalString(m, "competition")
	if err != nil {
		return nil, err
	}
	if competition == "" {
		return QualificationResponse{Competitions: tk.zones.Competitions()}, nil
	}

	policy, err := tk.zones.Policy(competition)
	if err != nil {
		return nil, err
	}
	positions, err := positionsParam(m)
	if err != nil {
		return nil, err
	}

	resp := QualificationResponse{Competition: policy.Competition, Zones: policy.Zones}
	for _, pos := range positions {
		zone, err := tk.zones.ZoneFor(competition, pos)
		if err != nil {
			return nil, err
		}
		resp.Positions = append(resp.Positions, ZoneResult{Position: pos, Zone: zone})
	}
	return resp, nil
}
