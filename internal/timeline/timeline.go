// Package timeline implements the timeline builder (spec §4.2): for a pad
// or aircraft and a query window, compose busy intervals from the
// resource's calendar and its committed flight-plan occupancy, then take
// the free complement as its Availability.
package timeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aetheric-oss/svc-scheduler/internal/calendar"
	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// PlanLookup is the subset of the Storage adapter (C4) the timeline
// builder needs: committed flight plans intersecting a window, for a given
// aircraft or pad.
type PlanLookup interface {
	PlansForAircraft(ctx context.Context, aircraftID string, window domain.Timeslot) ([]domain.FlightPlan, error)
	PlansForPad(ctx context.Context, padID string, window domain.Timeslot) ([]domain.FlightPlan, error)
}

// Builder computes resource Availability over a bounded window.
type Builder struct {
	Evaluator *calendar.Evaluator
	Plans     PlanLookup
	Clock     clockwork.Clock
}

// NewBuilder constructs a Builder. clock defaults to the real wall clock if
// nil.
func NewBuilder(evaluator *calendar.Evaluator, plans PlanLookup, clock clockwork.Clock) *Builder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Builder{Evaluator: evaluator, Plans: plans, Clock: clock}
}

// PadAvailability computes the free-slot sequence for pad over window,
// combining its operating-hour calendar with the occupancy windows of
// every non-cancelled flight plan that touches it as origin or
// destination: [scheduled_time − LoadOffset, scheduled_time + LoadOffset]
// around departure (if origin) and/or arrival (if destination).
func (b *Builder) PadAvailability(ctx context.Context, pad domain.Pad, window domain.Timeslot) (domain.Availability, error) {
	busy, err := b.Evaluator.BusyIntervals(pad.OperatingHours, window.Start, window.End)
	if err != nil {
		return domain.Availability{}, err
	}

	plans, err := b.Plans.PlansForPad(ctx, pad.ID, window)
	if err != nil {
		return domain.Availability{}, err
	}

	loadOffset := pad.LoadOffset
	if loadOffset <= 0 {
		loadOffset = time.Minute
	}

	for _, p := range plans {
		if p.Status == domain.FlightPlanCancelled {
			continue
		}
		if p.OriginPad == pad.ID {
			busy = append(busy, domain.Timeslot{Start: p.Departure.Add(-loadOffset), End: p.Departure.Add(loadOffset)})
		}
		if p.DestPad == pad.ID {
			busy = append(busy, domain.Timeslot{Start: p.Arrival.Add(-loadOffset), End: p.Arrival.Add(loadOffset)})
		}
	}

	free := calendar.Free(sortMerge(busy), window.Start, window.End)
	free = b.truncateToNow(free)
	return domain.Availability{ResourceID: pad.ID, Slots: free}, nil
}

// AircraftAvailability computes the free-slot sequence for an aircraft
// over window: its base calendar, minus [departure, arrival] for every
// non-cancelled flight plan it flies.
func (b *Builder) AircraftAvailability(ctx context.Context, aircraft domain.Aircraft, window domain.Timeslot) (domain.Availability, error) {
	busy, err := b.Evaluator.BusyIntervals(aircraft.BaseCalendar, window.Start, window.End)
	if err != nil {
		return domain.Availability{}, err
	}

	plans, err := b.Plans.PlansForAircraft(ctx, aircraft.ID, window)
	if err != nil {
		return domain.Availability{}, err
	}

	for _, p := range plans {
		if p.Status == domain.FlightPlanCancelled {
			continue
		}
		busy = append(busy, domain.Timeslot{Start: p.Departure, End: p.Arrival})
	}

	free := calendar.Free(sortMerge(busy), window.Start, window.End)
	free = b.truncateToNow(free)
	return domain.Availability{ResourceID: aircraft.ID, Slots: free}, nil
}

// truncateToNow drops slots that end before "now" and clamps the start of
// any slot that begins before "now" forward to "now" (spec §4.2: "no
// retro-bookings").
func (b *Builder) truncateToNow(slots []domain.Timeslot) []domain.Timeslot {
	now := b.Clock.Now()
	out := make([]domain.Timeslot, 0, len(slots))
	for _, s := range slots {
		if s.End.Before(now) {
			continue
		}
		if s.Start.Before(now) {
			s.Start = now
		}
		if s.Start.Before(s.End) {
			out = append(out, s)
		}
	}
	return out
}

func sortMerge(slots []domain.Timeslot) []domain.Timeslot {
	sorted := make([]domain.Timeslot, len(slots))
	copy(sorted, slots)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Start.After(sorted[j].Start); j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	merged := make([]domain.Timeslot, 0, len(sorted))
	for _, s := range sorted {
		if n := len(merged); n > 0 && !s.Start.After(merged[n-1].End) {
			if s.End.After(merged[n-1].End) {
				merged[n-1].End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}
