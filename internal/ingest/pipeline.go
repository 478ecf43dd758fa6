package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"example.com/webshopsessions/internal/feed"
	"example.com/webshopsessions/internal/logging"
	"example.com/webshopsessions/internal/sessionize"
	"example.com/webshopsessions/internal/telemetry"
)

// Invalidator drops derived state once new rows are loaded.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Pipeline runs feed -> sessionize -> store for the load command.
type Pipeline struct {
	Loader  *Loader
	Timeout time.Duration
	Workers int
	Feed    feed.Options
	Cache   Invalidator
	Log     *logging.Logger
}

// PipelineReport is what a load did, stage by stage.
type PipelineReport struct {
	Feed      feed.Stats `json:"feed"`
	Customers int        `json:"customers"`
	Sessions  int        `json:"sessions"`
	Load      Report     `json:"load"`
}

// Run consumes r to the end and stores the sessionized events.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (PipelineReport, error) {
	log := p.Log
	if log == nil {
		log = logging.Default()
	}
	log = log.With(logging.Component("pipeline"))
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = sessionize.DefaultTimeout
	}
	fopts := p.Feed
	if fopts.Logger == nil {
		fopts.Logger = log
	}

	var rep PipelineReport
	res, err := feed.Read(ctx, r, fopts)
	rep.Feed = res.Stats
	if err != nil {
		return rep, fmt.Errorf("pipeline: read feed: %w", err)
	}

	events, err := sessionize.Parallel(ctx, res.Events, timeout, p.Workers)
	if err != nil {
		return rep, fmt.Errorf("pipeline: sessionize: %w", err)
	}
	sessions := sessionize.Sessions(events)
	customers := make(map[string]struct{})
	for _, s := range sessions {
		customers[s.CustomerID] = struct{}{}
	}
	rep.Customers = len(customers)
	rep.Sessions = len(sessions)
	log.InfoContext(ctx, "sessionized",
		"events", len(events), "customers", rep.Customers, "sessions", rep.Sessions, "timeout", timeout.String())

	rep.Load, err = p.Loader.Load(ctx, events)
	if err != nil {
		return rep, fmt.Errorf("pipeline: %w", err)
	}
	telemetry.LastLoadSessions.Set(float64(rep.Sessions))

	if p.Cache != nil {
		if err := p.Cache.Invalidate(ctx); err != nil {
			log.WarnContext(ctx, "metrics cache invalidation failed", logging.Error(err))
		}
	}
	return rep, nil
}
