package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/errs"
	"github.com/aetheric-oss/svc-scheduler/internal/queuestore"
	"github.com/aetheric-oss/svc-scheduler/internal/search"
)

// Searcher is the read-only search surface QueryFlight invokes directly,
// bypassing the queue (spec §4.9).
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]domain.ItineraryCandidate, error)
}

// TaskQueue is the subset of the C6+C7 adapter the RPC edge drives.
type TaskQueue interface {
	NextTaskID(ctx context.Context) (int64, error)
	PutTask(ctx context.Context, t domain.Task, ttl time.Duration) error
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus, rationale domain.TaskRationale, result string, ttl time.Duration) error
	Add(ctx context.Context, class domain.Priority, taskID int64, score float64) error
	Remove(ctx context.Context, class domain.Priority, taskID int64) error
	Ping(ctx context.Context) error
}

// Pinger is satisfied by the storage adapter; used by IsReady.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server implements SchedulerServer over the search engine and the C6/C7
// queue store (spec §4.9).
type Server struct {
	log     *slog.Logger
	search  Searcher
	queue   TaskQueue
	storage Pinger
	ttl     time.Duration
	clock   clockwork.Clock
}

// NewServer constructs a Server. ttl defaults to 24h (config.Config's
// DefaultTaskTTL default) if non-positive.
func NewServer(log *slog.Logger, searcher Searcher, queue TaskQueue, storage Pinger, ttl time.Duration, clock clockwork.Clock) *Server {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Server{log: log, search: searcher, queue: queue, storage: storage, ttl: ttl, clock: clock}
}

// QueryFlight is a pure read-only search (spec §4.9 query_itineraries):
// does not create a task or reserve anything; failures surface directly.
func (s *Server) QueryFlight(ctx context.Context, req *QueryFlightRequest) (*QueryFlightResponse, error) {
	if req.OriginPad == "" || req.DestPad == "" {
		return nil, toStatus(errs.New(errs.InvalidArgument, "origin_pad and dest_pad are required"))
	}
	if !req.LatestArr.After(req.EarliestDep) {
		return nil, toStatus(errs.New(errs.InvalidArgument, "latest_arr must be after earliest_dep"))
	}

	q := search.Query{
		Payload:   domain.Payload{IsCargo: req.IsCargo, Persons: req.Persons, WeightG: req.WeightG},
		OriginPad: req.OriginPad,
		DestPad:   req.DestPad,
		Earliest:  req.EarliestDep,
		Latest:    req.LatestArr,
	}
	candidates, err := s.search.Search(ctx, q)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QueryFlightResponse{Itineraries: toItineraryDTOs(candidates)}, nil
}

// CreateItinerary allocates a Task id, stores it QUEUED, and enqueues it at
// the requested priority (spec §4.9 create_itinerary).
func (s *Server) CreateItinerary(ctx context.Context, req *CreateItineraryRequest) (*TaskResponse, error) {
	priority, ok := domain.ParsePriority(req.Priority)
	if !ok {
		return nil, toStatus(errs.New(errs.InvalidArgument, "unrecognized priority "+req.Priority))
	}
	if len(req.Candidate.Legs) == 0 {
		return nil, toStatus(errs.New(errs.InvalidArgument, "candidate must carry at least one leg"))
	}
	if req.Expiry.Before(s.clock.Now()) {
		return nil, toStatus(errs.New(errs.InvalidArgument, "expiry must be in the future"))
	}

	payload := domain.CreateItineraryPayload{
		Payload:   domain.Payload{},
		OriginPad: req.OriginPad,
		DestPad:   req.DestPad,
		Candidate: fromItineraryDTO(req.Candidate),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, toStatus(errs.Wrap(errs.Internal, "encode create_itinerary payload", err))
	}

	resp, err := s.submit(ctx, domain.ActionCreateItinerary, priority, req.UserID, req.Expiry, body)
	return resp, toStatus(err)
}

// CancelItinerary creates a CANCEL_ITINERARY task (spec §4.9
// cancel_itinerary), symmetric to CreateItinerary.
func (s *Server) CancelItinerary(ctx context.Context, req *CancelItineraryRequest) (*TaskResponse, error) {
	priority, ok := domain.ParsePriority(req.Priority)
	if !ok {
		return nil, toStatus(errs.New(errs.InvalidArgument, "unrecognized priority "+req.Priority))
	}
	if req.ItineraryID == "" {
		return nil, toStatus(errs.New(errs.InvalidArgument, "itinerary_id is required"))
	}
	expiry := req.Expiry
	if expiry.IsZero() {
		expiry = s.clock.Now().Add(s.ttl)
	}

	body, err := json.Marshal(domain.CancelItineraryPayload{ItineraryID: req.ItineraryID})
	if err != nil {
		return nil, toStatus(errs.Wrap(errs.Internal, "encode cancel_itinerary payload", err))
	}

	resp, err := s.submit(ctx, domain.ActionCancelItinerary, priority, req.UserID, expiry, body)
	return resp, toStatus(err)
}

func (s *Server) submit(ctx context.Context, action domain.TaskAction, priority domain.Priority, userID string, expiry time.Time, payload []byte) (*TaskResponse, error) {
	id, err := s.queue.NextTaskID(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "allocate task id", err)
	}

	task := domain.Task{
		ID: id, Action: action, Priority: priority, UserID: userID,
		CreatedAt: s.clock.Now(), Expiry: expiry, Payload: payload, Status: domain.TaskQueued,
	}
	if err := s.queue.PutTask(ctx, task, s.ttl); err != nil {
		return nil, errs.Wrap(errs.Storage, "put task", err)
	}
	if err := s.queue.Add(ctx, priority, id, float64(expiry.Unix())); err != nil {
		return nil, errs.Wrap(errs.Storage, "enqueue task", err)
	}

	return taskResponse(task), nil
}

// CancelTask marks a QUEUED task REJECTED/CLIENT_CANCELLED; the processor
// observes the status change and skips it (spec §4.9 cancel_task).
func (s *Server) CancelTask(ctx context.Context, req *CancelTaskRequest) (*TaskResponse, error) {
	task, err := s.queue.GetTask(ctx, req.TaskID)
	if errors.Is(err, queuestore.ErrNotFound) {
		return nil, toStatus(errs.New(errs.NotFound, "task not found"))
	}
	if err != nil {
		return nil, toStatus(errs.Wrap(errs.Storage, "get task", err))
	}
	if task.Status != domain.TaskQueued {
		return nil, toStatus(errs.New(errs.InvalidArgument, "task is already finalized"))
	}
	if err := s.queue.UpdateTaskStatus(ctx, req.TaskID, domain.TaskRejected, domain.RationaleClientCancelled, "", s.ttl); err != nil {
		return nil, toStatus(errs.Wrap(errs.Storage, "update task status", err))
	}
	// Best-effort: pull the task out of its priority queue so the processor
	// never pops it at all. A failure here is not fatal — the status flip
	// above already makes handle() skip it as non-QUEUED when it is popped.
	if err := s.queue.Remove(ctx, task.Priority, task.ID); err != nil {
		s.log.Warn("remove cancelled task from queue failed", "task_id", task.ID, "error", err)
	}
	task.Status = domain.TaskRejected
	task.Rationale = domain.RationaleClientCancelled
	return taskResponse(task), nil
}

// GetTaskStatus returns the Task record or NOT_FOUND (spec §4.9
// get_task_status).
func (s *Server) GetTaskStatus(ctx context.Context, req *GetTaskStatusRequest) (*TaskResponse, error) {
	task, err := s.queue.GetTask(ctx, req.TaskID)
	if errors.Is(err, queuestore.ErrNotFound) {
		return &TaskResponse{TaskID: req.TaskID, TaskMetadata: TaskMetadata{Status: string(domain.TaskNotFound)}}, nil
	}
	if err != nil {
		return nil, toStatus(errs.Wrap(errs.Storage, "get task", err))
	}
	return taskResponse(task), nil
}

// IsReady reports ready once both the Queue Store and Storage handshakes
// succeed (spec §4.9 is_ready).
func (s *Server) IsReady(ctx context.Context, _ *struct{}) (*IsReadyResponse, error) {
	if err := s.queue.Ping(ctx); err != nil {
		return &IsReadyResponse{Ready: false}, nil
	}
	if err := s.storage.Ping(ctx); err != nil {
		return &IsReadyResponse{Ready: false}, nil
	}
	return &IsReadyResponse{Ready: true}, nil
}

func taskResponse(t domain.Task) *TaskResponse {
	return &TaskResponse{
		TaskID: t.ID,
		TaskMetadata: TaskMetadata{
			Status: string(t.Status), StatusRationale: string(t.Rationale),
			Action: string(t.Action), UserID: t.UserID, Result: t.Result,
		},
	}
}

func toItineraryDTOs(candidates []domain.ItineraryCandidate) []Itinerary {
	out := make([]Itinerary, len(candidates))
	for i, c := range candidates {
		legs := make([]FlightPlanDraft, len(c.Legs))
		for j, l := range c.Legs {
			legs[j] = FlightPlanDraft{
				AircraftID: l.AircraftID, OriginPad: l.OriginPad, DestPad: l.DestPad,
				Departure: l.Departure, Arrival: l.Arrival, Path: l.Path,
				Altitudes: []float64(l.Altitudes), IsDeadhead: l.IsDeadhead,
			}
		}
		out[i] = Itinerary{
			AircraftID: c.AircraftID, Legs: legs, DeadheadTotal: c.DeadheadTotal,
			Departure: c.Departure, Arrival: c.Arrival,
		}
	}
	return out
}

func fromItineraryDTO(dto Itinerary) domain.ItineraryCandidate {
	legs := make([]domain.FlightPlanDraft, len(dto.Legs))
	for i, l := range dto.Legs {
		legs[i] = domain.FlightPlanDraft{
			AircraftID: l.AircraftID, OriginPad: l.OriginPad, DestPad: l.DestPad,
			Departure: l.Departure, Arrival: l.Arrival, Path: l.Path,
			Altitudes: domain.AltitudeProfile(l.Altitudes), IsDeadhead: l.IsDeadhead,
		}
	}
	return domain.ItineraryCandidate{
		AircraftID: dto.AircraftID, Legs: legs, DeadheadTotal: dto.DeadheadTotal,
		Departure: dto.Departure, Arrival: dto.Arrival,
	}
}
