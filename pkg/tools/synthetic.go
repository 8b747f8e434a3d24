package tools

import (
	"context"

	"github.com/richard-senior/forecast/pkg/protocol"
)

func (tk *Toolkit) synthesizeH2HTool() protocol.Tool {
	return protocol.Tool{
		Name: "synthesize_h2h",
		Description: `
		Generates a plausible head-to-head history between two teams for use when no
		real data is available. The record is deterministic for the pair of names, is
		flagged synthetic, and always satisfies team1.wins + team2.wins + draws == totalMatches.
		Swapping team1 and team2 mirrors the record. Empty names are treated as unknown teams.
		`,
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"team1": {Type: "string", Description: "First team"},
				"team2": {Type: "string", Description: "Second team"},
			},
			Required: []string{"team1", "team2"},
		},
	}
}

func (tk *Toolkit) synthesizeFormTool() protocol.Tool {
	return protocol.Tool{
		Name: "synthesize_form",
		Description: `
		Generates a plausible recent-form record for a team: the last few results
		(W/D/L, most recent first) with opponents and scores, and season totals.
		Deterministic for the team name. Flagged synthetic.
		`,
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"team": {Type: "string", Description: "The team"},
				"exclude": {
					Type:        "string",
					Description: "Optional opponent to leave out of the recent matches, usually the team's next opponent",
				},
			},
			Required: []string{"team"},
		},
	}
}

func (tk *Toolkit) handleSynthesizeH2H(ctx context.Context, params any) (any, error) {
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	team1, err := optionalString(m, "team1")
	if err != nil {
		return nil, err
	}
	team2, err := optionalString(m, "team2")
	if err != nil {
		return nil, err
	}
	record := tk.synth.H2H(team1, team2)
	tk.observer.SyntheticGenerated("h2h")
	return record, nil
}

func (tk *Toolkit) handleSynthesizeForm(ctx context.Context, params any) (any, error) {
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	team, err := optionalString(m, "team")
	if err != nil {
		return nil, err
	}
	exclude, err := optionalString(m, "exclude")
	if err != nil {
		return nil, err
	}
	record := tk.synth.Form(team, exclude)
	tk.observer.SyntheticGenerated("form")
	return record, nil
}
