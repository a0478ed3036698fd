package rpc

import "time"

// Wire message types for the RPC surface (spec §6). Wire encoding is
// implementer's choice; this service uses a JSON codec (codec.go) over
// gRPC's transport rather than protoc-generated messages.

// FlightPlanDraft mirrors domain.FlightPlanDraft on the wire.
type FlightPlanDraft struct {
	AircraftID string    `json:"aircraft_id"`
	OriginPad  string    `json:"origin_pad"`
	DestPad    string    `json:"dest_pad"`
	Departure  time.Time `json:"departure"`
	Arrival    time.Time `json:"arrival"`
	Path       []byte    `json:"path"`
	Altitudes  []float64 `json:"altitudes"`
	IsDeadhead bool      `json:"is_deadhead"`
}

// Itinerary mirrors domain.ItineraryCandidate on the wire.
type Itinerary struct {
	AircraftID    string            `json:"aircraft_id"`
	Legs          []FlightPlanDraft `json:"legs"`
	DeadheadTotal time.Duration     `json:"deadhead_total_ns"`
	Departure     time.Time         `json:"departure"`
	Arrival       time.Time         `json:"arrival"`
}

// QueryFlightRequest is queryFlight's input.
type QueryFlightRequest struct {
	OriginPad  string    `json:"origin_pad"`
	DestPad    string    `json:"dest_pad"`
	EarliestDep time.Time `json:"earliest_dep"`
	LatestArr  time.Time `json:"latest_arr"`
	IsCargo    bool      `json:"is_cargo"`
	Persons    int       `json:"persons"`
	WeightG    int64     `json:"weight_g"`
	Priority   string    `json:"priority"`
}

// QueryFlightResponse is queryFlight's output.
type QueryFlightResponse struct {
	Itineraries []Itinerary `json:"itineraries"`
}

// CreateItineraryRequest is createItinerary's input: the caller submits
// back one Itinerary it received from a prior queryFlight response.
type CreateItineraryRequest struct {
	Priority  string    `json:"priority"`
	Candidate Itinerary `json:"candidate"`
	OriginPad string    `json:"origin_pad"`
	DestPad   string    `json:"dest_pad"`
	Expiry    time.Time `json:"expiry"`
	UserID    string    `json:"user_id"`
}

// CancelItineraryRequest is cancelItinerary's input.
type CancelItineraryRequest struct {
	Priority    string    `json:"priority"`
	ItineraryID string    `json:"itinerary_id"`
	UserID      string    `json:"user_id"`
	Expiry      time.Time `json:"expiry"`
}

// CancelTaskRequest is cancelTask's input.
type CancelTaskRequest struct {
	TaskID int64 `json:"task_id"`
}

// GetTaskStatusRequest is getTaskStatus's input.
type GetTaskStatusRequest struct {
	TaskID int64 `json:"task_id"`
}

// TaskMetadata is the status snapshot embedded in a TaskResponse.
type TaskMetadata struct {
	Status          string `json:"status"`
	StatusRationale string `json:"status_rationale,omitempty"`
	Action          string `json:"action"`
	UserID          string `json:"user_id"`
	Result          string `json:"result,omitempty"`
}

// TaskResponse is the common response shape for every task-submitting and
// task-polling RPC (spec §6 "TaskResponse").
type TaskResponse struct {
	TaskID       int64        `json:"task_id"`
	TaskMetadata TaskMetadata `json:"task_metadata"`
}

// IsReadyResponse is isReady's output.
type IsReadyResponse struct {
	Ready bool `json:"ready"`
}
