// Package app assembles the forecasting server from a configuration: the
// simulation pool, the optional prediction tracker, metrics, tools and
// resources. Both commands build through here.
package app

import (
	"context"
	"fmt"

	"github.com/richard-senior/forecast/internal/logger"
	"github.com/richard-senior/forecast/pkg/metrics"
	"github.com/richard-senior/forecast/pkg/resources"
	"github.com/richard-senior/forecast/pkg/server"
	"github.com/richard-senior/forecast/pkg/tools"
	"github.com/richard-senior/forecast/pkg/transport"
	"github.com/richard-senior/forecast/pkg/util/forecast"
)

const (
	Name    = "forecast"
	Version = "1.0.0"
)

// App owns everything that must be closed when the process exits
type App struct {
	Config  *forecast.ForecastConfig
	Server  *server.Server
	Metrics *metrics.Metrics

	pool  *forecast.SimulationPool
	store *forecast.Store
}

// New wires the server for cfg. Tracking is enabled only when cfg.TrackerDSN
// is set, in which case stored results also move the Elo ratings.
func New(ctx context.Context, cfg *forecast.ForecastConfig) (*App, error) {
	m := metrics.New()
	pool := forecast.NewSimulationPool(forecast.NewBracketSimulator(cfg), cfg, m)
	m.WatchQueue(pool.QueueDepth)

	a := &App{Config: cfg, Metrics: m, pool: pool}

	var tracker *forecast.Tracker
	if cfg.TrackerDSN != "" {
		store, err := forecast.OpenStore(cfg.TrackerDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open tracker store: %w", err)
		}
		a.store = store
		tracker, err = forecast.NewTracker(ctx, store)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialise tracker: %w", err)
		}
		logger.Info("Prediction tracking enabled using", store.Dialect())
	} else {
		logger.Info("Prediction tracking disabled")
	}

	s := server.NewServer(server.Info{Name: Name, Version: Version})
	tk := tools.NewToolkit(cfg, pool, tracker, m)
	if err := tk.RefreshRatings(ctx); err != nil {
		a.Close()
		return nil, err
	}
	s.RegisterToolkit(tk)
	for _, r := range resources.GetResources(cfg) {
		s.RegisterResource(r)
	}
	s.OnToolCall(m.ToolCalled)
	a.Server = s
	return a, nil
}

// Transports returns the transports the options ask for. The HTTP
// transport also serves /metrics.
func (a *App) Transports(stdio bool, httpAddr string) []transport.Transport {
	var ts []transport.Transport
	if stdio {
		ts = append(ts, transport.NewStdioTransport())
	}
	if httpAddr != "" {
		ts = append(ts, transport.NewHTTPTransport(httpAddr, a.Config.CORSOrigins, a.Metrics.Handler()))
	}
	return ts
}

// Close stops the simulation workers and closes the tracker store
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close tracker store", err)
		}
		a.store = nil
	}
}
