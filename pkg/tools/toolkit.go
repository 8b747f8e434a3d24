package tools

import (
	"context"
	"errors"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/protocol"
	"github.com/richard-senior/forecast/pkg/util/forecast"
)

// ErrTrackingDisabled is returned by the tracker tools when no tracker DSN is configured
var ErrTrackingDisabled = errors.New("prediction tracking is disabled (set tracker_dsn)")

// Handler runs one tool. params is the decoded "arguments" object.
type Handler func(ctx context.Context, params any) (any, error)

// Definition pairs a tool's advertised schema with its handler
type Definition struct {
	Tool    protocol.Tool
	Handler Handler
}

// Observer is told about work the tools do, usually to feed metrics
type Observer interface {
	PredictionServed()
	SyntheticGenerated(kind string)
}

type noopObserver struct{}

func (noopObserver) PredictionServed()         {}
func (noopObserver) SyntheticGenerated(string) {}

// Toolkit exposes the forecasting engine as MCP tools. The predictor,
// generator, qualification table and Elo ratings are built from cfg and shared by every
// call; the pool and tracker are owned by the caller.
type Toolkit struct {
	cfg       *forecast.ForecastConfig
	predictor *forecast.MatchOutcomePredictor
	synth     *forecast.SyntheticStatsGenerator
	zones     *forecast.QualificationTable
	ratings   *forecast.EloRatings
	pool      *forecast.SimulationPool
	tracker   *forecast.Tracker
	observer  Observer
}

// NewToolkit wires the tools. tracker and observer may be nil.
func NewToolkit(cfg *forecast.ForecastConfig, pool *forecast.SimulationPool, tracker *forecast.Tracker, observer Observer) *Toolkit {
	if observer == nil {
		observer = noopObserver{}
	}
	tiers := forecast.NewTierTableFromConfig(cfg)
	return &Toolkit{
		cfg:       cfg.Clone(),
		predictor: forecast.NewMatchOutcomePredictor(cfg, tiers),
		synth:     forecast.NewSyntheticStatsGenerator(cfg, tiers),
		zones:     forecast.NewQualificationTable(cfg.Qualification),
		ratings:   forecast.NewEloRatings(cfg),
		pool:      pool,
		tracker:   tracker,
		observer:  observer,
	}
}

// Definitions lists every tool in the order tools/list reports them
func (tk *Toolkit) Definitions() []Definition {
	defs := []Definition{
		{tk.predictMatchTool(), tk.handlePredictMatch},
		{tk.simulateBracketTool(), tk.handleSimulateBracket},
		{tk.submitSimulationTool(), tk.handleSubmitSimulation},
		{tk.simulationStatusTool(), tk.handleSimulationStatus},
		{tk.cancelSimulationTool(), tk.handleCancelSimulation},
		{tk.simulateLeagueTool(), tk.handleSimulateLeague},
		{tk.submitLeagueSimulationTool(), tk.handleSubmitLeagueSimulation},
		{tk.teamRatingsTool(), tk.handleTeamRatings},
		{tk.synthesizeH2HTool(), tk.handleSynthesizeH2H},
		{tk.synthesizeFormTool(), tk.handleSynthesizeForm},
		{tk.qualificationZonesTool(), tk.handleQualificationZones},
		{tk.recordPredictionTool(), tk.handleRecordPrediction},
		{tk.recordResultTool(), tk.handleRecordResult},
		{tk.predictionAccuracyTool(), tk.handlePredictionAccuracy},
	}
	logger.Debug("Toolkit definitions built", len(defs))
	return defs
}
