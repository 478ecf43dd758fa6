// Package service answers the order metrics questions on top of a store,
// either pushed down into the database or computed in process.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/logging"
)

// Mode selects where the medians are computed.
type Mode string

const (
	ModeStore  Mode = "store"
	ModeMemory Mode = "memory"
)

// DefaultTolerance absorbs floating point noise between database and
// in-process results.
const DefaultTolerance = 1e-9

var (
	ErrUnknownMode  = errors.New("unknown metrics mode")
	ErrPathMismatch = errors.New("metric paths disagree")
)

// ParseMode maps a user supplied mode; empty means ModeStore.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStore:
		return ModeStore, nil
	case ModeMemory:
		return ModeMemory, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Store is the read side of webshop_events.
type Store interface {
	PriorPurchaseMetrics(ctx context.Context) (analytics.Metrics, error)
	Events(ctx context.Context) ([]domain.NormalizedEvent, error)
	Preview(ctx context.Context, limit int) ([]domain.NormalizedEvent, error)
	Ready(ctx context.Context) error
}

// Cache holds computed metrics between loads.
type Cache interface {
	Get(ctx context.Context, name string) (*analytics.Metrics, bool, error)
	Set(ctx context.Context, name string, m analytics.Metrics) error
}

type Options struct {
	Logger    *logging.Logger
	Tolerance float64
	Histogram analytics.HistogramSpec
}

type OrderMetrics struct {
	store     Store
	cache     Cache
	log       *logging.Logger
	tolerance float64
	histogram analytics.HistogramSpec
}

// NewOrderMetrics wires the service. cache may be nil.
func NewOrderMetrics(store Store, cache Cache, opts Options) *OrderMetrics {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Histogram == (analytics.HistogramSpec{}) {
		opts.Histogram = analytics.DefaultHistogram
	}
	return &OrderMetrics{
		store:     store,
		cache:     cache,
		log:       opts.Logger.With(logging.Component("order_metrics")),
		tolerance: opts.Tolerance,
		histogram: opts.Histogram,
	}
}

// Get returns the two pre-purchase medians, from cache when possible.
func (s *OrderMetrics) Get(ctx context.Context, mode Mode) (analytics.Metrics, error) {
	if mode == "" {
		mode = ModeStore
	}
	if mode != ModeStore && mode != ModeMemory {
		return analytics.Metrics{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	if s.cache != nil {
		m, ok, err := s.cache.Get(ctx, string(mode))
		if err != nil {
			s.log.WarnContext(ctx, "metrics cache read failed", logging.Error(err))
		} else if ok {
			return *m, nil
		}
	}

	var (
		m   analytics.Metrics
		err error
	)
	switch mode {
	case ModeStore:
		m, err = s.store.PriorPurchaseMetrics(ctx)
	case ModeMemory:
		m, err = s.memory(ctx)
	}
	if err != nil {
		return analytics.Metrics{}, fmt.Errorf("order metrics (%s): %w", mode, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, string(mode), m); err != nil {
			s.log.WarnContext(ctx, "metrics cache write failed", logging.Error(err))
		}
	}
	return m, nil
}

func (s *OrderMetrics) memory(ctx context.Context) (analytics.Metrics, error) {
	events, err := s.store.Events(ctx)
	if err != nil {
		return analytics.Metrics{}, err
	}
	return analytics.Compute(events), nil
}

// Verification holds the same statistics computed three ways.
type Verification struct {
	Store      analytics.Metrics `json:"store"`
	Memory     analytics.Metrics `json:"memory"`
	Relational analytics.Metrics `json:"relational"`
}

// Verify recomputes the medians by every path, bypassing the cache, and
// returns ErrPathMismatch when they disagree.
func (s *OrderMetrics) Verify(ctx context.Context) (Verification, error) {
	var v Verification
	var err error

	if v.Store, err = s.store.PriorPurchaseMetrics(ctx); err != nil {
		return v, fmt.Errorf("verify: store: %w", err)
	}
	events, err := s.store.Events(ctx)
	if err != nil {
		return v, fmt.Errorf("verify: read back: %w", err)
	}
	v.Memory = analytics.Compute(events)
	v.Relational = analytics.ComputeRelational(events)

	if !v.Memory.Equal(v.Relational) {
		return v, fmt.Errorf("%w: in-process paths", ErrPathMismatch)
	}
	if !v.Store.Within(v.Memory, s.tolerance) {
		return v, fmt.Errorf("%w: store vs in-process", ErrPathMismatch)
	}
	s.log.InfoContext(ctx, "metric paths agree", slog.Int("events", len(events)))
	return v, nil
}

// Distributions runs the timeout exploration over the stored events.
func (s *OrderMetrics) Distributions(ctx context.Context, minTimeout, maxTimeout int) (analytics.Exploration, error) {
	events, err := s.store.Events(ctx)
	if err != nil {
		return analytics.Exploration{}, fmt.Errorf("distributions: %w", err)
	}
	return analytics.Explore(events, minTimeout, maxTimeout, s.histogram)
}

// Preview returns up to limit stored rows.
func (s *OrderMetrics) Preview(ctx context.Context, limit int) ([]domain.NormalizedEvent, error) {
	rows, err := s.store.Preview(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	return rows, nil
}

// Ready reports whether the store answers.
func (s *OrderMetrics) Ready(ctx context.Context) error {
	return s.store.Ready(ctx)
}
