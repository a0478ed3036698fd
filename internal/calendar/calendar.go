// Package calendar implements the calendar/recurrence evaluator (spec §4.1):
// a pure, side-effect-free function from an iCalendar recurrence expression
// and a time window to an ordered, non-overlapping sequence of busy
// intervals. Operating-hour calendars encode "unavailable" events; their
// complement within a window is free time.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/errs"
)

// Evaluator expands RFC 5545 recurrence expressions into busy intervals.
// It holds no mutable state: given the same expression and window it
// always produces the same output (required for the idempotence tests in
// spec §8).
type Evaluator struct {
	// BlockDuration is the fixed length of each recurring busy event.
	BlockDuration time.Duration
}

// NewEvaluator constructs an Evaluator. blockDuration defaults to one
// minute (the internal time resolution from spec §3) if non-positive.
func NewEvaluator(blockDuration time.Duration) *Evaluator {
	if blockDuration <= 0 {
		blockDuration = time.Minute
	}
	return &Evaluator{BlockDuration: blockDuration}
}

// BusyIntervals expands expr into an ordered, non-overlapping sequence of
// busy [start, end) intervals intersecting [from, until]. An empty
// expression means "never busy". Recurring events whose fixed-duration
// occurrence does not intersect the window are skipped. Malformed input
// fails with an errs.CalendarParse error.
func (e *Evaluator) BusyIntervals(expr string, from, until time.Time) ([]domain.Timeslot, error) {
	if expr == "" {
		return nil, nil
	}
	if until.Before(from) {
		return nil, errs.New(errs.CalendarParse, "window end before window start")
	}

	// Look back one block so an occurrence that starts just before "from"
	// but whose fixed-duration tail overlaps the window isn't missed.
	lookback := from.Add(-e.BlockDuration)

	occurrences, err := e.occurrencesBetween(expr, lookback, until)
	if err != nil {
		return nil, errs.Wrap(errs.CalendarParse, fmt.Sprintf("malformed calendar expression %q", expr), err)
	}

	return e.toIntervals(occurrences, from, until), nil
}

func (e *Evaluator) occurrencesBetween(expr string, from, until time.Time) ([]time.Time, error) {
	if set, err := rrule.StrToRRuleSet(expr); err == nil {
		return set.Between(from, until, true), nil
	}
	r, err := rrule.StrToRRule(expr)
	if err != nil {
		return nil, err
	}
	return r.Between(from, until, true), nil
}

func (e *Evaluator) toIntervals(occurrences []time.Time, from, until time.Time) []domain.Timeslot {
	slots := make([]domain.Timeslot, 0, len(occurrences))
	for _, occ := range occurrences {
		start, end := occ, occ.Add(e.BlockDuration)
		if end.Before(from) || !start.Before(until) {
			continue
		}
		if start.Before(from) {
			start = from
		}
		if end.After(until) {
			end = until
		}
		if !start.Before(end) {
			continue
		}
		slots = append(slots, domain.Timeslot{Start: start, End: end})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return mergeOverlapping(slots)
}

// mergeOverlapping collapses adjacent/overlapping slots in a sorted
// sequence into the minimal disjoint sequence covering the same time.
func mergeOverlapping(slots []domain.Timeslot) []domain.Timeslot {
	if len(slots) == 0 {
		return slots
	}
	merged := make([]domain.Timeslot, 0, len(slots))
	cur := slots[0]
	for _, s := range slots[1:] {
		if !s.Start.After(cur.End) {
			if s.End.After(cur.End) {
				cur.End = s.End
			}
			continue
		}
		merged = append(merged, cur)
		cur = s
	}
	return append(merged, cur)
}

// Free returns the complement of busy within [from, until): the free
// Timeslot sequence used as a resource's Availability (spec §3/§4.2).
func Free(busy []domain.Timeslot, from, until time.Time) []domain.Timeslot {
	free := make([]domain.Timeslot, 0, len(busy)+1)
	cursor := from
	for _, b := range busy {
		if b.Start.After(cursor) {
			free = append(free, domain.Timeslot{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(until) {
		free = append(free, domain.Timeslot{Start: cursor, End: until})
	}
	return free
}
