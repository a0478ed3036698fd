package processor_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/errs"
	"github.com/aetheric-oss/svc-scheduler/internal/processor"
	"github.com/aetheric-oss/svc-scheduler/internal/queuestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	tasks map[int64]domain.Task
	pop   queuestore.PopResult
	popOK bool
}

func (f *fakeQueue) GetTask(_ context.Context, id int64) (domain.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return domain.Task{}, queuestore.ErrNotFound
	}
	return t, nil
}

func (f *fakeQueue) UpdateTaskStatus(_ context.Context, id int64, status domain.TaskStatus, rationale domain.TaskRationale, result string, _ time.Duration) error {
	t := f.tasks[id]
	t.Status = status
	t.Rationale = rationale
	t.Result = result
	f.tasks[id] = t
	return nil
}

func (f *fakeQueue) PopMinBlocking(_ context.Context, _ []domain.Priority, _ time.Duration) (queuestore.PopResult, bool, error) {
	if !f.popOK {
		return queuestore.PopResult{}, false, nil
	}
	f.popOK = false
	return f.pop, true, nil
}

func (f *fakeQueue) QueueDepths(_ context.Context) (map[domain.Priority]int64, error) {
	return map[domain.Priority]int64{}, nil
}

type fakeStorage struct {
	plans       map[string]domain.FlightPlan
	itineraries map[string]domain.Itinerary
	failInsertPlan bool
	failInsertItin bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{plans: map[string]domain.FlightPlan{}, itineraries: map[string]domain.Itinerary{}}
}

func (f *fakeStorage) InsertFlightPlan(_ context.Context, draft domain.FlightPlanDraft, sessionID string) (domain.FlightPlan, error) {
	if f.failInsertPlan {
		return domain.FlightPlan{}, errs.New(errs.Storage, "boom")
	}
	id := "plan-" + sessionID + "-" + draft.OriginPad + "-" + draft.DestPad
	fp := domain.FlightPlan{ID: id, AircraftID: draft.AircraftID, OriginPad: draft.OriginPad, DestPad: draft.DestPad,
		Departure: draft.Departure, Arrival: draft.Arrival, Status: domain.FlightPlanStatusDraft, SessionID: sessionID}
	f.plans[id] = fp
	return fp, nil
}

func (f *fakeStorage) UpdateFlightPlanStatus(_ context.Context, id string, status domain.FlightPlanStatus) error {
	fp, ok := f.plans[id]
	if !ok {
		return errs.New(errs.NotFound, "plan not found")
	}
	fp.Status = status
	f.plans[id] = fp
	return nil
}

func (f *fakeStorage) InsertItinerary(_ context.Context, userID, aircraftID string, planIDs []string) (domain.Itinerary, error) {
	if f.failInsertItin {
		return domain.Itinerary{}, errs.New(errs.Storage, "boom")
	}
	itin := domain.Itinerary{ID: "itin-1", UserID: userID, AircraftID: aircraftID, PlanIDs: planIDs, Status: domain.ItineraryActive}
	f.itineraries[itin.ID] = itin
	return itin, nil
}

func (f *fakeStorage) UpdateItineraryStatus(_ context.Context, id string, status domain.ItineraryStatus) error {
	itin, ok := f.itineraries[id]
	if !ok {
		return errs.New(errs.NotFound, "itinerary not found")
	}
	itin.Status = status
	f.itineraries[id] = itin
	return nil
}

func (f *fakeStorage) GetItinerary(_ context.Context, id string) (domain.Itinerary, []domain.FlightPlan, error) {
	itin, ok := f.itineraries[id]
	if !ok {
		return domain.Itinerary{}, nil, errs.New(errs.NotFound, "itinerary not found")
	}
	var plans []domain.FlightPlan
	for _, pid := range itin.PlanIDs {
		plans = append(plans, f.plans[pid])
	}
	return itin, plans, nil
}

type fakeRevalidator struct {
	ok  bool
	err error
}

func (f *fakeRevalidator) Revalidate(_ context.Context, _ domain.ItineraryCandidate, _ time.Duration) (bool, error) {
	return f.ok, f.err
}

func createPayload(t *testing.T, candidate domain.ItineraryCandidate) []byte {
	t.Helper()
	body, err := json.Marshal(domain.CreateItineraryPayload{Candidate: candidate})
	require.NoError(t, err)
	return body
}

func TestProcessor_HandleCreate_Success(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	candidate := domain.ItineraryCandidate{
		AircraftID: "AC_1",
		Legs:       []domain.FlightPlanDraft{{AircraftID: "AC_1", OriginPad: "PAD_A", DestPad: "PAD_B", Departure: now, Arrival: now.Add(20 * time.Minute)}},
	}
	task := domain.Task{ID: 1, Action: domain.ActionCreateItinerary, UserID: "u1", Status: domain.TaskQueued, Expiry: now.Add(time.Hour), Payload: createPayload(t, candidate)}

	queue := &fakeQueue{tasks: map[int64]domain.Task{1: task}, pop: queuestore.PopResult{TaskID: 1}, popOK: true}
	storage := newFakeStorage()
	reval := &fakeRevalidator{ok: true}

	proc := processor.New(testLogger(), queue, storage, reval, processor.Config{Clock: clockwork.NewFakeClockAt(now)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = proc.Run(ctx)

	got := queue.tasks[1]
	require.Equal(t, domain.TaskComplete, got.Status)
	require.Equal(t, "itin-1", got.Result)
	require.Equal(t, domain.ItineraryActive, storage.itineraries["itin-1"].Status)
	for _, fp := range storage.plans {
		require.Equal(t, domain.FlightPlanCommitted, fp.Status)
	}
}

func TestProcessor_HandleCreate_RevalidateRejects(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	candidate := domain.ItineraryCandidate{AircraftID: "AC_1"}
	task := domain.Task{ID: 1, Action: domain.ActionCreateItinerary, Status: domain.TaskQueued, Expiry: now.Add(time.Hour), Payload: createPayload(t, candidate)}

	queue := &fakeQueue{tasks: map[int64]domain.Task{1: task}, pop: queuestore.PopResult{TaskID: 1}, popOK: true}
	storage := newFakeStorage()
	reval := &fakeRevalidator{ok: false}

	proc := processor.New(testLogger(), queue, storage, reval, processor.Config{Clock: clockwork.NewFakeClockAt(now)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = proc.Run(ctx)

	got := queue.tasks[1]
	require.Equal(t, domain.TaskRejected, got.Status)
	require.Equal(t, domain.RationaleScheduleConflict, got.Rationale)
}

func TestProcessor_HandleCreate_InsertFailureCompensates(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	candidate := domain.ItineraryCandidate{
		AircraftID: "AC_1",
		Legs: []domain.FlightPlanDraft{
			{AircraftID: "AC_1", OriginPad: "PAD_X", DestPad: "PAD_A", Departure: now.Add(-time.Hour), Arrival: now.Add(-40 * time.Minute), IsDeadhead: true},
			{AircraftID: "AC_1", OriginPad: "PAD_A", DestPad: "PAD_B", Departure: now, Arrival: now.Add(20 * time.Minute)},
		},
	}
	task := domain.Task{ID: 1, Action: domain.ActionCreateItinerary, Status: domain.TaskQueued, Expiry: now.Add(time.Hour), Payload: createPayload(t, candidate)}

	queue := &fakeQueue{tasks: map[int64]domain.Task{1: task}, pop: queuestore.PopResult{TaskID: 1}, popOK: true}
	storage := newFakeStorage()
	storage.failInsertItin = true
	reval := &fakeRevalidator{ok: true}

	proc := processor.New(testLogger(), queue, storage, reval, processor.Config{Clock: clockwork.NewFakeClockAt(now)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = proc.Run(ctx)

	got := queue.tasks[1]
	require.Equal(t, domain.TaskRejected, got.Status)
	require.Equal(t, domain.RationaleInternal, got.Rationale)
	for _, fp := range storage.plans {
		require.Equal(t, domain.FlightPlanCancelled, fp.Status)
	}
}

func TestProcessor_HandleCancel_Success(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	storage := newFakeStorage()
	storage.itineraries["itin-1"] = domain.Itinerary{ID: "itin-1", Status: domain.ItineraryActive, PlanIDs: []string{"plan-1"}}
	storage.plans["plan-1"] = domain.FlightPlan{ID: "plan-1", Status: domain.FlightPlanCommitted}

	payload, err := json.Marshal(domain.CancelItineraryPayload{ItineraryID: "itin-1"})
	require.NoError(t, err)
	task := domain.Task{ID: 2, Action: domain.ActionCancelItinerary, Status: domain.TaskQueued, Expiry: now.Add(time.Hour), Payload: payload}

	queue := &fakeQueue{tasks: map[int64]domain.Task{2: task}, pop: queuestore.PopResult{TaskID: 2}, popOK: true}
	reval := &fakeRevalidator{ok: true}

	proc := processor.New(testLogger(), queue, storage, reval, processor.Config{Clock: clockwork.NewFakeClockAt(now)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = proc.Run(ctx)

	got := queue.tasks[2]
	require.Equal(t, domain.TaskComplete, got.Status)
	require.Equal(t, domain.ItineraryCancelled, storage.itineraries["itin-1"].Status)
	require.Equal(t, domain.FlightPlanCancelled, storage.plans["plan-1"].Status)
}

func TestProcessor_HandleCancel_ItineraryNotFound(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	storage := newFakeStorage()

	payload, err := json.Marshal(domain.CancelItineraryPayload{ItineraryID: "missing"})
	require.NoError(t, err)
	task := domain.Task{ID: 3, Action: domain.ActionCancelItinerary, Status: domain.TaskQueued, Expiry: now.Add(time.Hour), Payload: payload}

	queue := &fakeQueue{tasks: map[int64]domain.Task{3: task}, pop: queuestore.PopResult{TaskID: 3}, popOK: true}
	reval := &fakeRevalidator{ok: true}

	proc := processor.New(testLogger(), queue, storage, reval, processor.Config{Clock: clockwork.NewFakeClockAt(now)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = proc.Run(ctx)

	got := queue.tasks[3]
	require.Equal(t, domain.TaskRejected, got.Status)
	require.Equal(t, domain.RationaleItineraryNotFound, got.Rationale)
}

func TestProcessor_ExpiredTaskRejectedWithoutDispatch(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	task := domain.Task{ID: 4, Action: domain.ActionCreateItinerary, Status: domain.TaskQueued, Expiry: now.Add(-time.Minute)}

	queue := &fakeQueue{tasks: map[int64]domain.Task{4: task}, pop: queuestore.PopResult{TaskID: 4}, popOK: true}
	storage := newFakeStorage()
	reval := &fakeRevalidator{ok: true}

	proc := processor.New(testLogger(), queue, storage, reval, processor.Config{Clock: clockwork.NewFakeClockAt(now)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = proc.Run(ctx)

	got := queue.tasks[4]
	require.Equal(t, domain.TaskRejected, got.Status)
	require.Equal(t, domain.RationaleExpired, got.Rationale)
}

func TestProcessor_SkipsAlreadyFinalizedTask(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	task := domain.Task{ID: 5, Action: domain.ActionCreateItinerary, Status: domain.TaskRejected, Rationale: domain.RationaleClientCancelled, Expiry: now.Add(time.Hour)}

	queue := &fakeQueue{tasks: map[int64]domain.Task{5: task}, pop: queuestore.PopResult{TaskID: 5}, popOK: true}
	storage := newFakeStorage()
	reval := &fakeRevalidator{ok: true}

	proc := processor.New(testLogger(), queue, storage, reval, processor.Config{Clock: clockwork.NewFakeClockAt(now)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = proc.Run(ctx)

	got := queue.tasks[5]
	require.Equal(t, domain.TaskRejected, got.Status)
	require.Equal(t, domain.RationaleClientCancelled, got.Rationale)
}
