package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/richard-senior/forecast/pkg/util/forecast"
	"github.com/samber/lo"
)

// maxWaitSeconds bounds how long simulation_status may block
const maxWaitSeconds = 60

func (tk *Toolkit) bracketProperties() map[string]protocol.ToolProperty {
	return map[string]protocol.ToolProperty{
		"entrants": {
			Type: "array",
			Description: fmt.Sprintf(
				"The teams in the competition with their league standing. At least %d are needed.",
				tk.cfg.MinEntrants),
			Items: &protocol.ToolProperty{
				Type: "object",
				Properties: map[string]protocol.ToolProperty{
					"team":           {Type: "string", Description: "Team name"},
					"points":         {Type: "integer", Description: "Points so far", Minimum: lo.ToPtr(0.0)},
					"goalDifference": {Type: "integer", Description: "Goal difference so far"},
				},
				Required: []string{"team", "points"},
			},
		},
		"n_simulations": {
			Type: "integer",
			Description: fmt.Sprintf("How many trials to run. Defaults to %d, at most %d.",
				tk.cfg.DefaultSimulations, tk.cfg.MaxSimulations),
			Minimum: lo.ToPtr(1.0),
			Maximum: lo.ToPtr(float64(tk.cfg.MaxSimulations)),
		},
		"seed": {
			Type:        "integer",
			Description: "Optional seed. The same seed and entrants always give the same report. Seeds above 2^53 must be passed as strings.",
			Minimum:     lo.ToPtr(0.0),
		},
	}
}

func (tk *Toolkit) simulateBracketTool() protocol.Tool {
	return protocol.Tool{
		Name: "simulate_bracket",
		Description: `
		Runs a Monte Carlo simulation of a knockout bracket seeded from league standings
		(quarter-final, semi-final, final) and waits for the result.
		Returns, per team, the probability of reaching each round and of winning,
		sorted by win probability, plus the most likely winner.
		For long runs consider submit_simulation instead.
		`,
		InputSchema: protocol.InputSchema{
			Type:       "object",
			Properties: tk.bracketProperties(),
			Required:   []string{"entrants"},
		},
	}
}

func (tk *Toolkit) submitSimulationTool() protocol.Tool {
	return protocol.Tool{
		Name: "submit_simulation",
		Description: `
		Queues the same simulation as simulate_bracket and returns a job id immediately.
		Poll with simulation_status and stop with cancel_simulation.
		`,
		InputSchema: protocol.InputSchema{
			Type:       "object",
			Properties: tk.bracketProperties(),
			Required:   []string{"entrants"},
		},
	}
}

func (tk *Toolkit) simulationStatusTool() protocol.Tool {
	return protocol.Tool{
		Name:        "simulation_status",
		Description: "Reports the state of a submitted bracket or league simulation (queued, running, done, failed or cancelled) and its report once done.",
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"job_id": {Type: "string", Description: "The id returned by submit_simulation or submit_league_simulation"},
				"wait_seconds": {
					Type:        "integer",
					Description: fmt.Sprintf("Optionally wait up to this many seconds (max %d) for the job to finish", maxWaitSeconds),
					Minimum:     lo.ToPtr(0.0),
					Maximum:     lo.ToPtr(float64(maxWaitSeconds)),
				},
			},
			Required: []string{"job_id"},
		},
	}
}

func (tk *Toolkit) cancelSimulationTool() protocol.Tool {
	return protocol.Tool{
		Name:        "cancel_simulation",
		Description: "Cancels a queued or running bracket or league simulation. Cancelling a finished job has no effect.",
		InputSchema: protocol.InputSchema{
			Type: "object",
			Properties: map[string]protocol.ToolProperty{
				"job_id": {Type: "string", Description: "The id returned by submit_simulation or submit_league_simulation"},
			},
			Required: []string{"job_id"},
		},
	}
}

type bracketRequest struct {
	entrants []forecast.Entrant
	n        int
	opts     forecast.SimulationOptions
}

func (tk *Toolkit) parseBracketRequest(params any) (bracketRequest, error) {
	m, err := paramsMap(params)
	if err != nil {
		return bracketRequest{}, err
	}
	entrants, err := entrantsParam(m)
	if err != nil {
		return bracketRequest{}, err
	}
	n, err := optionalInt(m, "n_simulations", tk.cfg.DefaultSimulations)
	if err != nil {
		return bracketRequest{}, err
	}
	seed, err := optionalSeed(m)
	if err != nil {
		return bracketRequest{}, err
	}
	return bracketRequest{entrants: entrants, n: n, opts: forecast.SimulationOptions{Seed: seed}}, nil
}

func (tk *Toolkit) handleSimulateBracket(ctx context.Context, params any) (any, error) {
	req, err := tk.parseBracketRequest(params)
	if err != nil {
		return nil, err
	}
	logger.Info("Simulating bracket", len(req.entrants), "entrants", req.n, "trials")
	report, err := tk.pool.Run(ctx, req.entrants, req.n, req.opts)
	if err != nil {
		return nil, fmt.Errorf("simulate_bracket: %w", err)
	}
	return report, nil
}

func (tk *Toolkit) handleSubmitSimulation(ctx context.Context, params any) (any, error) {
	req, err := tk.parseBracketRequest(params)
	if err != nil {
		return nil, err
	}
	id, err := tk.pool.Submit(req.entrants, req.n, req.opts)
	if err != nil {
		return nil, fmt.Errorf("submit_simulation: %w", err)
	}
	logger.Info("Submitted simulation job", id)
	return tk.pool.Status(id)
}

func (tk *Toolkit) handleSimulationStatus(ctx context.Context, params any) (any, error) {
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	id, err := requiredString(m, "job_id")
	if err != nil {
		return nil, err
	}
	wait, err := optionalInt(m, "wait_seconds", 0)
	if err != nil {
		return nil, err
	}
	if wait < 0 || wait > maxWaitSeconds {
		return nil, badParam("wait_seconds", "must be between 0 and %d, got %d", maxWaitSeconds, wait)
	}

	if wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(wait)*time.Second)
		defer cancel()
		status, err := tk.pool.Wait(waitCtx, id)
		switch {
		case err == nil:
			return status, nil
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// still running, report where it is
		default:
			return nil, err
		}
	}
	return tk.pool.Status(id)
}

func (tk *Toolkit) handleCancelSimulation(ctx context.Context, params any) (any, error) {
	m, err := paramsMap(params)
	if err != nil {
		return nil, err
	}
	id, err := requiredString(m, "job_id")
	if err != nil {
		return nil, err
	}
	if err := tk.pool.Cancel(id); err != nil {
		return nil, err
	}
	logger.Info("Cancelled simulation job", id)
	return tk.pool.Status(id)
}
