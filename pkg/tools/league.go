package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/richard-senior/forecast/pkg/util/forecast"
	"github.com/samber/lo"
)

func (tk *Toolkit) leagueProperties() map[string]protocol.ToolProperty {
	return map[string]protocol.ToolProperty{
		"competition": {
			Type: "string",
			Description: "Optional competition whose qualification zones are reported per team. Available: " +
				strings.Join(tk.zones.Competitions(), ", "),
		},
		"teams": {
			Type: "array",
			Description: fmt.Sprintf(
				"Every team in the table with its current standing. At least %d are needed. "+
					"Teams without a rating use their current Elo rating.", tk.cfg.MinLeagueTeams),
			Items: &protocol.ToolProperty{
				Type: "object",
				Properties: map[string]protocol.ToolProperty{
					"team":           {Type: "string", Description: "Team name"},
					"points":         {Type: "integer", Description: "Points so far", Minimum: lo.ToPtr(0.0)},
					"goalDifference": {Type: "integer", Description: "Goal difference so far"},
					"played":         {Type: "integer", Description: "Matches played so far", Minimum: lo.ToPtr(0.0)},
					"rating":         {Type: "number", Description: "Optional Elo rating override", Minimum: lo.ToPtr(0.0)},
				},
				Required: []string{"team", "points"},
			},
		},
		"fixtures": {
			Type:        "array",
			Description: "The matches still to be played. Both sides must be in teams.",
			Items: &protocol.ToolProperty{
				Type: "object",
				Properties: map[string]protocol.ToolProperty{
					"home_team": {Type: "string", Description: "The home side"},
					"away_team": {Type: "string", Description: "The away side"},
				},
				Required: []string{"home_team", "away_team"},
			},
		},
		"n_simulations": {
			Type: "integer",
			Description: fmt.Sprintf("How many seasons to simulate. Defaults to %d, at most %d.",
				tk.cfg.DefaultSimulations, tk.cfg.MaxSimulations),
			Minimum: lo.ToPtr(1.0),
			Maximum: lo.ToPtr(float64(tk.cfg.MaxSimulations)),
		},
		"seed": {
			Type:        "integer",
			Description: "Optional seed. The same seed and table always give the same report. Seeds above 2^53 must be passed as strings.",
			Minimum:     lo.ToPtr(0.0),
		},
	}
}

func (tk *Toolkit) simulateLeagueTool() protocol.Tool {
	return protocol.Tool{
		Name: "simulate_league",
		Description: `
		Plays out the remaining fixtures of a league many times, with goals drawn around
		expected goals set by the Elo ratings of the two sides, and waits for the result.
		Returns, per team, the average finishing position and points, the probability of each
		position and of the title, and with a competition the probability of ending in each
		qualification zone. For long runs consider submit_league_simulation instead.
		`,
		InputSchema: protocol.InputSchema{
			Type:       "object",
			Properties: tk.leagueProperties(),
			Required:   []string{"teams"},
		},
	}
}

func (tk *Toolkit) submitLeagueSimulationTool() protocol.Tool {
	return protocol.Tool{
		Name: "submit_league_simulation",
		Description: `
		Queues the same simulation as simulate_league and returns a job id immediately.
		Poll with simulation_status and stop with cancel_simulation.
		`,
		InputSchema: protocol.InputSchema{
			Type:       "object",
			Properties: tk.leagueProperties(),
			Required:   []string{"teams"},
		},
	}
}

func (tk *Toolkit) teamRatingsTool() protocol.Tool {
	return protocol.Tool{
		Name: "team_ratings",
		Description: `
		Reports Elo ratings. Ratings start from a seeded table and move with every result
		stored through record_result. With teams it returns those teams in order, otherwise
		the top rated teams.
		`,
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"teams": {
					Type:        "array",
					Description: "Teams to look up. Unknown teams report the default rating.",
					Items:       &protocol.ToolProperty{Type: "string"},
				},
				"top": {
					Type:        "integer",
					Description: "How many of the best rated teams to list when no teams are given. Defaults to 20.",
					Minimum:     lo.ToPtr(1.0),
				},
			},
			Required: []string{},
		},
	}
}

// RefreshRatings rebuilds the Elo ratings from the results held by the
// tracker. Without a tracker the seeded ratings stand.
func (tk *Toolkit) RefreshRatings(ctx context.Context) error {
	if tk.tracker == nil {
		return nil
	}
	records, err := tk.tracker.Records(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load results for ratings: %w", err)
	}
	n := tk.ratings.Replay(records)
	logger.Debug("Ratings replayed from", n, "results")
	return nil
}

func (tk *Toolkit) parseLeagueRequest(params any) (forecast.LeagueRequest, error) {
	m, err := paramsMap(params)
	if err != nil {
		return forecast.LeagueRequest{}, err
	}
	req := forecast.LeagueRequest{}
	if req.Competition, err = optionalString(m, "competition"); err != nil {
		return req, err
	}
	if req.Teams, err = leagueTeamsParam(m); err != nil {
		return req, err
	}
	if req.Fixtures, err = fixturesParam(m); err != nil {
		return req, err
	}
	if req.NSimulations, err = optionalInt(m, "n_simulations", tk.cfg.DefaultSimulations); err != nil {
		return req, err
	}
	if req.Seed, err = optionalSeed(m); err != nil {
		return req, err
	}

	for i, t := range req.Teams {
		if t.Rating == 0 {
			req.Teams[i].Rating = tk.ratings.Rating(t.Team)
		}
	}
	return req, nil
}

func (tk *Toolkit) handleSimulateLeague(ctx context.Context, params any) (any, error) {
	req, err := tk.parseLeagueRequest(params)
	if err != nil {
		return nil, err
	}
	logger.Info("Simulating league", len(req.Teams), "teams", len(req.Fixtures), "fixtures", req.NSimulations, "trials")
	report, err := tk.pool.RunLeague(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("simulate_league: %w", err)
	}
	return report, nil
}

func (tk *Toolkit) handleSubmitLeagueSimulation(ctx context.Context, params any) (any, error) {
	req, err := tk.parseLeagueRequest(params)
	if err != nil {
		return nil, err
	}
	id, err := tk.pool.SubmitLeague(req)
	if err != nil {
		return nil, fmt.Errorf("submit_league_simulation: %w", err)
	}
	logger.Info("Submitted league simulation job", id)
	return tk.pool.Status(id)
}

func (tk *Toolkit) handleTeamRatings(ctx context.Context, params any) (any, error) {
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	if v, ok := m["teams"]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, badParam("teams", "expected an array, got %T", v)
		}
		teams := make([]string, 0, len(list))
		for i, item := range list {
			name, err := optionalString(map[string]any{"team": item}, "team")
			if err != nil || name == "" {
				return nil, badParam(fmt.Sprintf("teams[%d]", i), "expected a team name")
			}
			teams = append(teams, name)
		}
		return tk.ratings.Ratings(teams), nil
	}
	top, err := optionalInt(m, "top", 20)
	if err != nil {
		return nil, err
	}
	if top < 1 {
		return nil, badParam("top", "must be positive, got %d", top)
	}
	return tk.ratings.Rankings(top), nil
}

// leagueTeamsParam reads the teams array. Entries are read like entrants,
// plus the played count and an optional rating.
func leagueTeamsParam(m map[string]any) ([]forecast.LeagueTeam, error) {
	v, ok := m["teams"]
	if !ok || v == nil {
		return nil, badParam("teams", "is required")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, badParam("teams", "expected an array, got %T", v)
	}

	teams := make([]forecast.LeagueTeam, 0, len(list))
	for i, item := range list {
		field := fmt.Sprintf("teams[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, badParam(field, "expected an object, got %T", item)
		}
		standing, err := standingParam(obj)
		if err != nil {
			return nil, badParam(field, "%v", err)
		}
		played, err := optionalInt(obj, "played", 0)
		if err != nil {
			return nil, badParam(field, "%v", err)
		}
		rating := 0.0
		if r, ok := obj["rating"]; ok && r != nil {
			if rating, ok = r.(float64); !ok {
				return nil, badParam(field, "rating must be a number, got %T", r)
			}
		}
		teams = append(teams, forecast.LeagueTeam{
			Team:           standing.Team,
			Points:         standing.Points,
			GoalDifference: standing.GoalDifference,
			Played:         played,
			Rating:         rating,
		})
	}
	return teams, nil
}

func fixturesParam(m map[string]any) ([]forecast.Fixture, error) {
	v, ok := m["fixtures"]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, badParam("fixtures", "expected an array, got %T", v)
	}
	fixtures := make([]forecast.Fixture, 0, len(list))
	for i, item := range list {
		field := fmt.Sprintf("fixtures[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, badParam(field, "expected an object, got %T", item)
		}
		home, err := optionalString(obj, "home_team")
		if err != nil {
			return nil, badParam(field, "%v", err)
		}
		away, err := optionalString(obj, "away_team")
		if err != nil {
			return nil, badParam(field, "%v", err)
		}
		fixtures = append(fixtures, forecast.Fixture{HomeTeam: home, AwayTeam: away})
	}
	return fixtures, nil
}
