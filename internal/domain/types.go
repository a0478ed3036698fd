// Package domain holds the data model shared across the scheduling core:
// pads, aircraft, flight plans, itineraries, tasks and timeslots (spec §3).
// Pads, aircraft, flight plans and itineraries are owned by Storage; this
// package only carries the transient, in-process shape the engine needs.
package domain

import "time"

// FlightPlanStatus is the lifecycle state of a FlightPlan.
type FlightPlanStatus string

const (
	FlightPlanStatusDraft FlightPlanStatus = "DRAFT"
	FlightPlanCommitted FlightPlanStatus = "COMMITTED"
	FlightPlanCancelled FlightPlanStatus = "CANCELLED"
)

// ItineraryStatus is the lifecycle state of an Itinerary.
type ItineraryStatus string

const (
	ItineraryActive    ItineraryStatus = "ACTIVE"
	ItineraryCancelled ItineraryStatus = "CANCELLED"
)

// Priority is one of the four strictly ordered task priority classes (§4.7).
// Lower numeric value means higher urgency; EMERGENCY always pops before
// HIGH, HIGH before MEDIUM, and so on.
type Priority int

const (
	PriorityEmergency Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// Classes lists every priority class in strict pop order, EMERGENCY first.
var Classes = []Priority{PriorityEmergency, PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "EMERGENCY"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority parses the string form produced by Priority.String.
func ParsePriority(s string) (Priority, bool) {
	for _, p := range Classes {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// TaskAction names the state-changing operation a Task performs.
type TaskAction string

const (
	ActionCreateItinerary TaskAction = "CREATE_ITINERARY"
	ActionCancelItinerary TaskAction = "CANCEL_ITINERARY"
)

// TaskStatus is the lifecycle state of a Task (§4.8 state machine).
type TaskStatus string

const (
	TaskQueued   TaskStatus = "QUEUED"
	TaskComplete TaskStatus = "COMPLETE"
	TaskRejected TaskStatus = "REJECTED"
	TaskNotFound TaskStatus = "NOT_FOUND"
)

// TaskRationale explains a terminal, non-success Task status.
type TaskRationale string

const (
	RationaleNone              TaskRationale = ""
	RationaleClientCancelled   TaskRationale = "CLIENT_CANCELLED"
	RationaleExpired           TaskRationale = "EXPIRED"
	RationaleScheduleConflict  TaskRationale = "SCHEDULE_CONFLICT"
	RationaleItineraryNotFound TaskRationale = "ITINERARY_ID_NOT_FOUND"
	RationalePriorityChange    TaskRationale = "PRIORITY_CHANGE"
	RationaleInternal          TaskRationale = "INTERNAL"
	RationaleInvalidAction     TaskRationale = "INVALID_ACTION"
)

// Timeslot is a half-open interval [Start, End) during which a resource is
// free. A sequence of Timeslots for one resource is always ordered by Start
// and pairwise disjoint.
type Timeslot struct {
	Start time.Time
	End   time.Time
}

// Duration returns the slot's length.
func (t Timeslot) Duration() time.Duration { return t.End.Sub(t.Start) }

// Overlaps reports whether t and o share any instant.
func (t Timeslot) Overlaps(o Timeslot) bool {
	return t.Start.Before(o.End) && o.Start.Before(t.End)
}

// Contains reports whether instant ts falls within [Start, End).
func (t Timeslot) Contains(ts time.Time) bool {
	return !ts.Before(t.Start) && ts.Before(t.End)
}

// Availability is the free-timeslot sequence computed for one resource over
// a bounded query window (§3).
type Availability struct {
	ResourceID string
	Slots      []Timeslot
}

// Pad is a single landing zone (vertipad). Its lifecycle is owned by
// Storage; this is a transient, read-only copy.
type Pad struct {
	ID              string
	VertiportID     string
	OperatingHours  string // iCalendar RRULE expression, busy-complement encoded
	LoadOffset      time.Duration
	Latitude        float64
	Longitude       float64
}

// Aircraft performance and scheduling parameters.
type Aircraft struct {
	ID             string
	CruiseSpeedMPS float64
	RangeMeters    float64
	LoiterCostKWh  float64
	BaseCalendar   string // iCalendar RRULE expression
	CapacityPeople int
	CapacityGrams  int64
}

// Payload describes what a requested itinerary needs to carry.
type Payload struct {
	IsCargo  bool
	Persons  int
	WeightG  int64
}

// Fits reports whether the aircraft can carry the payload.
func (p Payload) Fits(a Aircraft) bool {
	if p.Persons > a.CapacityPeople {
		return false
	}
	if p.WeightG > a.CapacityGrams {
		return false
	}
	return true
}

// AltitudeProfile is the opaque-to-the-engine altitude-over-path sample
// forwarded verbatim from GIS into flight plans (§4.3).
type AltitudeProfile []float64

// FlightPlan is one aircraft's scheduled trajectory between two pads.
type FlightPlan struct {
	ID          string
	AircraftID  string
	OriginPad   string
	DestPad     string
	Departure   time.Time
	Arrival     time.Time
	Path        []byte // opaque polyline, forwarded verbatim
	Altitudes   AltitudeProfile
	SessionID   string
	Status      FlightPlanStatus
	IsDeadhead  bool
}

// Interval returns the plan's [Departure, Arrival) occupancy window.
func (f FlightPlan) Interval() Timeslot {
	return Timeslot{Start: f.Departure, End: f.Arrival}
}

// Itinerary is a committed, continuous aircraft trajectory made of 1..N
// flight plans (§3).
type Itinerary struct {
	ID          string
	UserID      string
	AircraftID  string
	PlanIDs     []string
	Status      ItineraryStatus
	CreatedAt   time.Time
}

// FlightPlanDraft is a proposed, not-yet-persisted leg produced by the
// search engine (§4.5 step 7): an optional pre-deadhead, the main leg, and
// an optional post-deadhead.
type FlightPlanDraft struct {
	AircraftID string
	OriginPad  string
	DestPad    string
	Departure  time.Time
	Arrival    time.Time
	Path       []byte
	Altitudes  AltitudeProfile
	IsDeadhead bool
}

// ItineraryCandidate is one ranked, feasible result from the search engine.
type ItineraryCandidate struct {
	AircraftID     string
	Legs           []FlightPlanDraft // pre-deadhead?, main, post-deadhead?
	DeadheadTotal  time.Duration
	Departure      time.Time
	Arrival        time.Time
}

// Task is a unit of state-changing work processed serially by the
// scheduler (§3, §4.6, §4.8).
type Task struct {
	ID          int64
	Action      TaskAction
	Priority    Priority
	UserID      string
	CreatedAt   time.Time
	Expiry      time.Time
	Payload     []byte // action-dependent, JSON-encoded
	Status      TaskStatus
	Rationale   TaskRationale
	Result      string // itinerary id on success; diagnostic string on rejection
}

// CreateItineraryPayload is the JSON payload carried by a CREATE_ITINERARY
// task: the candidate itinerary chosen by the caller from a prior
// queryFlight response, re-validated at commit time (§4.5 "Commit-time
// re-validation").
type CreateItineraryPayload struct {
	Payload   Payload   `json:"payload"`
	OriginPad string    `json:"origin_pad"`
	DestPad   string    `json:"dest_pad"`
	Earliest  time.Time `json:"earliest"`
	Latest    time.Time `json:"latest"`
	Candidate ItineraryCandidate `json:"candidate"`
}

// CancelItineraryPayload is the JSON payload carried by a CANCEL_ITINERARY
// task.
type CancelItineraryPayload struct {
	ItineraryID string `json:"itinerary_id"`
}
