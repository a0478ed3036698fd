// Package search implements the itinerary search engine (spec §4.5), the
// hard part: enumerating (departure slot, arrival slot, aircraft,
// deadheads) tuples against resource timelines and a routing service, and
// ranking the results. The engine is priority-blind — priority only
// governs queueing (C7), never search order.
package search

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/errs"
	"github.com/aetheric-oss/svc-scheduler/internal/gisclient"
	"github.com/aetheric-oss/svc-scheduler/internal/timeline"
)

// ResourceSource is the subset of the Storage adapter (C4) the search
// engine needs directly (beyond what it reaches through timeline.Builder).
type ResourceSource interface {
	SearchPad(ctx context.Context, id string) (domain.Pad, error)
	SearchAllAircraft(ctx context.Context) ([]domain.Aircraft, error)
	SearchAircraft(ctx context.Context, id string) (domain.Aircraft, error)
	timeline.PlanLookup
}

// Router is the routing client adapter (C3) surface the engine calls.
type Router interface {
	BestPath(ctx context.Context, originPad, destPad string, departAt time.Time) (gisclient.PathResult, error)
}

// Query describes one feasibility search (spec §4.5 "Inputs").
type Query struct {
	Payload   domain.Payload
	OriginPad string
	DestPad   string
	Earliest  time.Time
	Latest    time.Time
}

// Engine is the itinerary search engine (C5).
type Engine struct {
	Storage     ResourceSource
	Timeline    *timeline.Builder
	GIS         Router
	MaxDeadhead time.Duration
	Clock       clockwork.Clock
}

// NewEngine constructs an Engine. clock defaults to the real wall clock;
// maxDeadhead defaults to 2h (spec §4.5 "max_deadhead is a configured
// upper bound, e.g. 2h").
func NewEngine(storage ResourceSource, tl *timeline.Builder, gis Router, maxDeadhead time.Duration, clock clockwork.Clock) *Engine {
	if maxDeadhead <= 0 {
		maxDeadhead = 2 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{Storage: storage, Timeline: tl, GIS: gis, MaxDeadhead: maxDeadhead, Clock: clock}
}

type candidateLeg struct {
	Depart, Arrive time.Time
	Path           []byte
	Altitudes      domain.AltitudeProfile
}

// Search enumerates feasible itineraries for q (spec §4.5 steps 1-7). An
// empty result is not an error (empty pad availability, or a payload that
// fits no aircraft). If every origin/destination probe fails against GIS,
// it surfaces errs.GISUnavailable.
func (e *Engine) Search(ctx context.Context, q Query) ([]domain.ItineraryCandidate, error) {
	start := e.Clock.Now()
	defer func() { metricSearchDuration.Observe(e.Clock.Now().Sub(start).Seconds()) }()

	origin, err := e.Storage.SearchPad(ctx, q.OriginPad)
	if err != nil {
		return nil, err
	}
	dest, err := e.Storage.SearchPad(ctx, q.DestPad)
	if err != nil {
		return nil, err
	}

	window := domain.Timeslot{Start: q.Earliest, End: q.Latest}
	originAvail, err := e.Timeline.PadAvailability(ctx, origin, window)
	if err != nil {
		return nil, err
	}
	destAvail, err := e.Timeline.PadAvailability(ctx, dest, window)
	if err != nil {
		return nil, err
	}
	if len(originAvail.Slots) == 0 || len(destAvail.Slots) == 0 {
		return nil, nil
	}

	legs, err := e.enumerateLegs(ctx, q, originAvail.Slots, destAvail.Slots)
	if err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, nil
	}

	aircraft, err := e.Storage.SearchAllAircraft(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(aircraft, func(i, j int) bool { return aircraft[i].ID < aircraft[j].ID })

	resolved := map[string]domain.ItineraryCandidate{}
	for _, leg := range legs {
		for _, a := range aircraft {
			if _, done := resolved[a.ID]; done {
				continue
			}
			if !q.Payload.Fits(a) {
				continue
			}
			pre, post, deadheadTotal, feasible, err := e.resolveDeadheads(ctx, a, leg, q.OriginPad, q.DestPad)
			if err != nil {
				return nil, err
			}
			if !feasible {
				continue
			}
			resolved[a.ID] = buildCandidate(a, pre, leg, post, deadheadTotal, q.OriginPad, q.DestPad)
		}
	}

	out := make([]domain.ItineraryCandidate, 0, len(resolved))
	for _, c := range resolved {
		out = append(out, c)
	}
	sortCandidates(out, q.Payload, aircraftByID(aircraft))
	return out, nil
}

// enumerateLegs is spec §4.5 step 3: for each origin slot and destination
// slot where the destination slot ends after the origin slot starts, probe GIS
// once at the origin slot's start and accept the pair iff a feasible
// departure instant exists. The tightest (earliest) such instant is kept.
func (e *Engine) enumerateLegs(ctx context.Context, q Query, originSlots, destSlots []domain.Timeslot) ([]candidateLeg, error) {
	var legs []candidateLeg
	attempted, succeeded := 0, 0

	for _, so := range originSlots {
		for _, sd := range destSlots {
			// A leg departing in so can only land in sd if sd extends past
			// so's earliest possible departure.
			if !sd.End.After(so.Start) {
				continue
			}
			attempted++

			pr, err := e.GIS.BestPath(ctx, q.OriginPad, q.DestPad, so.Start)
			if err != nil {
				continue
			}
			succeeded++

			d := pr.Duration
			lowT := maxTime(q.Earliest, so.Start)
			highT := minTime(q.Latest.Add(-d), so.End.Add(-d))
			tMin := maxTime(lowT, sd.Start.Add(-d))
			tMax := minTime(highT, sd.End.Add(-d))
			if tMax.Before(tMin) {
				continue
			}
			t := tMin
			legs = append(legs, candidateLeg{Depart: t, Arrive: t.Add(d), Path: pr.Path, Altitudes: pr.Altitudes})
		}
	}

	if attempted > 0 && succeeded == 0 {
		return nil, errs.New(errs.GISUnavailable, "no GIS path available for any origin/destination pair")
	}

	sort.Slice(legs, func(i, j int) bool { return legs[i].Depart.Before(legs[j].Depart) })
	return legs, nil
}

// resolveDeadheads is spec §4.5 step 5. feasible is false (with no error)
// when no deadhead arrangement closes the gap in time, and also when a GIS
// probe for a deadhead leg fails; err carries storage lookup failures only.
func (e *Engine) resolveDeadheads(ctx context.Context, a domain.Aircraft, leg candidateLeg, originPad, destPad string) (pre, post *domain.FlightPlanDraft, total time.Duration, feasible bool, err error) {
	window := domain.Timeslot{Start: leg.Depart.Add(-e.MaxDeadhead), End: leg.Arrive.Add(e.MaxDeadhead)}
	plans, err := e.Storage.PlansForAircraft(ctx, a.ID, window)
	if err != nil {
		return nil, nil, 0, false, err
	}

	if overlapsAny(plans, leg.Depart, leg.Arrive) {
		return nil, nil, 0, false, nil
	}

	prev := latestEndingAtOrBefore(plans, leg.Depart)
	next := earliestStartingAtOrAfter(plans, leg.Arrive)

	if prev != nil && !(prev.DestPad == originPad && !prev.Arrival.After(leg.Depart)) {
		pr, err := e.GIS.BestPath(ctx, prev.DestPad, originPad, prev.Arrival)
		if err != nil {
			return nil, nil, 0, false, nil
		}
		if prev.Arrival.Add(pr.Duration).After(leg.Depart) {
			return nil, nil, 0, false, nil
		}
		pre = &domain.FlightPlanDraft{
			AircraftID: a.ID, OriginPad: prev.DestPad, DestPad: originPad,
			Departure: prev.Arrival, Arrival: prev.Arrival.Add(pr.Duration),
			Path: pr.Path, Altitudes: pr.Altitudes, IsDeadhead: true,
		}
		total += pr.Duration
	}

	if next != nil && next.OriginPad != destPad {
		pr, err := e.GIS.BestPath(ctx, destPad, next.OriginPad, leg.Arrive)
		if err != nil {
			return nil, nil, 0, false, nil
		}
		if leg.Arrive.Add(pr.Duration).After(next.Departure) {
			return nil, nil, 0, false, nil
		}
		post = &domain.FlightPlanDraft{
			AircraftID: a.ID, OriginPad: destPad, DestPad: next.OriginPad,
			Departure: leg.Arrive, Arrival: leg.Arrive.Add(pr.Duration),
			Path: pr.Path, Altitudes: pr.Altitudes, IsDeadhead: true,
		}
		total += pr.Duration
	}

	return pre, post, total, true, nil
}

// overlapsAny reports whether any non-cancelled plan straddles
// [depart, arrive) — the same departure < arrive AND arrival > depart test
// storage.go's queries use. latestEndingAtOrBefore/earliestStartingAtOrAfter
// only see plans that end at-or-before depart or start at-or-after arrive,
// so a plan fully inside (or overlapping) the candidate window is invisible
// to them and must be checked separately.
func overlapsAny(plans []domain.FlightPlan, depart, arrive time.Time) bool {
	for i := range plans {
		p := &plans[i]
		if p.Status == domain.FlightPlanCancelled {
			continue
		}
		if p.Departure.Before(arrive) && p.Arrival.After(depart) {
			return true
		}
	}
	return false
}

func latestEndingAtOrBefore(plans []domain.FlightPlan, t time.Time) *domain.FlightPlan {
	var best *domain.FlightPlan
	for i := range plans {
		p := &plans[i]
		if p.Arrival.After(t) {
			continue
		}
		if best == nil || p.Arrival.After(best.Arrival) {
			best = p
		}
	}
	return best
}

func earliestStartingAtOrAfter(plans []domain.FlightPlan, t time.Time) *domain.FlightPlan {
	var best *domain.FlightPlan
	for i := range plans {
		p := &plans[i]
		if p.Departure.Before(t) {
			continue
		}
		if best == nil || p.Departure.Before(best.Departure) {
			best = p
		}
	}
	return best
}

func buildCandidate(a domain.Aircraft, pre *domain.FlightPlanDraft, main candidateLeg, post *domain.FlightPlanDraft, deadheadTotal time.Duration, originPad, destPad string) domain.ItineraryCandidate {
	legs := make([]domain.FlightPlanDraft, 0, 3)
	if pre != nil {
		legs = append(legs, *pre)
	}
	legs = append(legs, domain.FlightPlanDraft{
		AircraftID: a.ID, OriginPad: originPad, DestPad: destPad,
		Departure: main.Depart, Arrival: main.Arrive,
		Path: main.Path, Altitudes: main.Altitudes,
	})
	if post != nil {
		legs = append(legs, *post)
	}
	departure := legs[0].Departure
	arrival := legs[len(legs)-1].Arrival
	return domain.ItineraryCandidate{
		AircraftID: a.ID, Legs: legs, DeadheadTotal: deadheadTotal,
		Departure: departure, Arrival: arrival,
	}
}

// sortCandidates implements spec §4.5's rank (payload-fit, deadhead total
// ascending, departure ascending) with a lexicographic-aircraft-id
// tie-break for stable output (spec §4.5 "Tie-breaks").
//
// Open question resolved here (see DESIGN.md): "payload-fit" is scored as
// unused capacity (grams + persons headroom) ascending — the tightest-fit
// aircraft ranks first — since the spec leaves the exact metric
// unspecified beyond naming it as the primary rank key.
func sortCandidates(cands []domain.ItineraryCandidate, payload domain.Payload, byID map[string]domain.Aircraft) {
	sort.Slice(cands, func(i, j int) bool {
		ci, cj := cands[i], cands[j]
		fi := payloadFitScore(byID[ci.AircraftID], payload)
		fj := payloadFitScore(byID[cj.AircraftID], payload)
		if fi != fj {
			return fi < fj
		}
		if ci.DeadheadTotal != cj.DeadheadTotal {
			return ci.DeadheadTotal < cj.DeadheadTotal
		}
		if !ci.Departure.Equal(cj.Departure) {
			return ci.Departure.Before(cj.Departure)
		}
		return ci.AircraftID < cj.AircraftID
	})
}

func payloadFitScore(a domain.Aircraft, p domain.Payload) int64 {
	weightHeadroom := a.CapacityGrams - p.WeightG
	personHeadroom := int64(a.CapacityPeople - p.Persons)
	return weightHeadroom + personHeadroom
}

func aircraftByID(aircraft []domain.Aircraft) map[string]domain.Aircraft {
	m := make(map[string]domain.Aircraft, len(aircraft))
	for _, a := range aircraft {
		m[a.ID] = a
	}
	return m
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// RevalidationSlack is the default tolerance window used by Revalidate
// when comparing a previously-searched candidate's times against the
// current timelines (spec §4.5 "Commit-time re-validation").
const RevalidationSlack = 30 * time.Second

// Revalidate re-checks that candidate is still feasible against current
// timelines: every leg's [Departure, Arrival) must still fit, within
// slack, inside the aircraft's and both pads' current free-slot
// sequences. Used by the task processor before committing a
// CREATE_ITINERARY task (spec §4.5 "Commit-time re-validation").
func (e *Engine) Revalidate(ctx context.Context, candidate domain.ItineraryCandidate, slack time.Duration) (bool, error) {
	if slack <= 0 {
		slack = RevalidationSlack
	}

	aircraft, err := e.Storage.SearchAircraft(ctx, candidate.AircraftID)
	if err != nil {
		return false, err
	}

	for _, leg := range candidate.Legs {
		window := domain.Timeslot{Start: leg.Departure.Add(-slack - e.MaxDeadhead), End: leg.Arrival.Add(slack + e.MaxDeadhead)}

		aAvail, err := e.Timeline.AircraftAvailability(ctx, aircraft, window)
		if err != nil {
			return false, err
		}
		if !slotsCover(aAvail.Slots, leg.Departure, leg.Arrival, slack) {
			return false, nil
		}

		origin, err := e.Storage.SearchPad(ctx, leg.OriginPad)
		if err != nil {
			return false, err
		}
		oAvail, err := e.Timeline.PadAvailability(ctx, origin, window)
		if err != nil {
			return false, err
		}
		if !slotsCover(oAvail.Slots, leg.Departure, leg.Departure, slack) {
			return false, nil
		}

		dest, err := e.Storage.SearchPad(ctx, leg.DestPad)
		if err != nil {
			return false, err
		}
		dAvail, err := e.Timeline.PadAvailability(ctx, dest, window)
		if err != nil {
			return false, err
		}
		if !slotsCover(dAvail.Slots, leg.Arrival, leg.Arrival, slack) {
			return false, nil
		}
	}
	return true, nil
}

func slotsCover(slots []domain.Timeslot, start, end time.Time, slack time.Duration) bool {
	for _, s := range slots {
		if !s.Start.After(start.Add(slack)) && !s.End.Before(end.Add(-slack)) {
			return true
		}
	}
	return false
}
