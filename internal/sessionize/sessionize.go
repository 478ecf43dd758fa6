// Package sessionize splits each customer's events into browsing sessions
// using an inactivity timeout.
package sessionize

import (
	"context"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/webshopsessions/internal/domain"
)

// DefaultTimeout is the idle gap used by the load job.
const DefaultTimeout = 8 * time.Minute

// state is the accumulator carried across the sorted sequence.
type state struct {
	started      bool
	prevCustomer string
	prevTime     time.Time
	sessionID    int
}

// step folds one event into the accumulator and returns the session id
// the event belongs to. A gap equal to the timeout stays in the session.
func (s state) step(ev *domain.NormalizedEvent, timeout time.Duration) state {
	switch {
	case !s.started || ev.CustomerID != s.prevCustomer:
		s.sessionID = 1
	case ev.Timestamp.Sub(s.prevTime) > timeout:
		s.sessionID++
	}
	s.started = true
	s.prevCustomer = ev.CustomerID
	s.prevTime = ev.Timestamp
	return s
}

func byCustomerThenTime(a, b domain.NormalizedEvent) int {
	if a.CustomerID != b.CustomerID {
		if a.CustomerID < b.CustomerID {
			return -1
		}
		return 1
	}
	return a.Timestamp.Compare(b.Timestamp)
}

// fold assigns session ids in place over an already sorted slice.
func fold(events []domain.NormalizedEvent, timeout time.Duration) {
	var s state
	for i := range events {
		s = s.step(&events[i], timeout)
		events[i].SessionID = s.sessionID
	}
}

// Sessionize returns a copy of events ordered by (customer, timestamp) with
// SessionID populated. Ties keep their arrival order.
func Sessionize(events []domain.NormalizedEvent, timeout time.Duration) []domain.NormalizedEvent {
	out := slices.Clone(events)
	slices.SortStableFunc(out, byCustomerThenTime)
	fold(out, timeout)
	return out
}

// Parallel produces the same result as Sessionize, running the fold for
// each customer partition on up to workers goroutines.
func Parallel(ctx context.Context, events []domain.NormalizedEvent, timeout time.Duration, workers int) ([]domain.NormalizedEvent, error) {
	parts := Partition(events)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, part := range parts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slices.SortStableFunc(part, byCustomerThenTime)
			fold(part, timeout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.NormalizedEvent, 0, len(events))
	for _, part := range parts {
		out = append(out, part...)
	}
	return out, nil
}

// Partition groups a copy of events by customer, preserving arrival order
// inside each group. Groups are ordered by customer id.
func Partition(events []domain.NormalizedEvent) [][]domain.NormalizedEvent {
	idx := make(map[string]int)
	var parts [][]domain.NormalizedEvent
	for _, ev := range events {
		i, ok := idx[ev.CustomerID]
		if !ok {
			i = len(parts)
			idx[ev.CustomerID] = i
			parts = append(parts, nil)
		}
		parts[i] = append(parts[i], ev)
	}
	sort.Slice(parts, func(a, b int) bool {
		return parts[a][0].CustomerID < parts[b][0].CustomerID
	})
	return parts
}
