// Package processor implements the task processor control loop (spec
// §4.8): a single logical worker that pops tasks from the priority queues,
// re-validates CREATE_ITINERARY candidates at commit time, writes through
// the storage adapter, and leaves every QUEUED Task record it dispatches in
// a terminal state.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/errs"
	"github.com/aetheric-oss/svc-scheduler/internal/queuestore"
)

// QueueStore is the subset of the C6+C7 adapter the processor drives.
type QueueStore interface {
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus, rationale domain.TaskRationale, result string, ttl time.Duration) error
	PopMinBlocking(ctx context.Context, classes []domain.Priority, timeout time.Duration) (queuestore.PopResult, bool, error)
	QueueDepths(ctx context.Context) (map[domain.Priority]int64, error)
}

// Storage is the subset of the C4 adapter the processor drives.
type Storage interface {
	InsertFlightPlan(ctx context.Context, draft domain.FlightPlanDraft, sessionID string) (domain.FlightPlan, error)
	UpdateFlightPlanStatus(ctx context.Context, id string, status domain.FlightPlanStatus) error
	InsertItinerary(ctx context.Context, userID, aircraftID string, planIDs []string) (domain.Itinerary, error)
	UpdateItineraryStatus(ctx context.Context, id string, status domain.ItineraryStatus) error
	GetItinerary(ctx context.Context, id string) (domain.Itinerary, []domain.FlightPlan, error)
}

// Revalidator re-runs the search engine's feasibility check in commit-time
// mode (spec §4.5 "Commit-time re-validation").
type Revalidator interface {
	Revalidate(ctx context.Context, candidate domain.ItineraryCandidate, slack time.Duration) (bool, error)
}

// Config parameterizes a Processor.
type Config struct {
	TaskTTL         time.Duration
	PopTimeout      time.Duration
	RevalidateSlack time.Duration
	Clock           clockwork.Clock
}

// Processor is the task processor (C8).
type Processor struct {
	log     *slog.Logger
	queue   QueueStore
	storage Storage
	search  Revalidator
	cfg     Config
}

// New constructs a Processor. cfg zero-values default the same way
// config.Config.Validate does.
func New(log *slog.Logger, queue QueueStore, storage Storage, search Revalidator, cfg Config) *Processor {
	if cfg.TaskTTL <= 0 {
		cfg.TaskTTL = 24 * time.Hour
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.RevalidateSlack <= 0 {
		cfg.RevalidateSlack = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Processor{log: log, queue: queue, storage: storage, search: search, cfg: cfg}
}

// Run drives the processor loop (spec §4.8) until ctx is cancelled. Each
// iteration pops at most one task and runs it to completion before the
// next pop — the single-threaded mutator invariant from spec §5.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("task processor starting", "pop_timeout", p.cfg.PopTimeout)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("task processor stopping")
			return nil
		default:
		}

		res, ok, err := p.queue.PopMinBlocking(ctx, domain.Classes, p.cfg.PopTimeout)
		p.sampleQueueDepths(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error("pop_min_blocking failed", "error", err)
			continue
		}
		if !ok {
			continue // timed out with nothing queued; loop and check ctx again
		}

		p.handle(ctx, res.TaskID)
	}
}

// sampleQueueDepths refreshes the per-priority-class queue depth gauge.
// Sampled once per loop iteration rather than on a separate timer, so it
// never runs more often than the processor actually touches the queue.
func (p *Processor) sampleQueueDepths(ctx context.Context) {
	depths, err := p.queue.QueueDepths(ctx)
	if err != nil {
		p.log.Error("queue_depths failed", "error", err)
		return
	}
	for class, n := range depths {
		metricQueueDepth.WithLabelValues(class.String()).Set(float64(n))
	}
}

// handle runs one task to completion (spec §4.8 steps 2-6).
func (p *Processor) handle(ctx context.Context, taskID int64) {
	task, err := p.queue.GetTask(ctx, taskID)
	if errors.Is(err, queuestore.ErrNotFound) {
		p.log.Warn("popped task has no record, dropping", "task_id", taskID)
		return
	}
	if err != nil {
		p.log.Error("fetch task record failed", "task_id", taskID, "error", err)
		return
	}
	if task.Status != domain.TaskQueued {
		return
	}
	if task.Expiry.Before(p.cfg.Clock.Now()) {
		p.reject(ctx, task, domain.RationaleExpired, "")
		return
	}

	switch task.Action {
	case domain.ActionCreateItinerary:
		p.handleCreate(ctx, task)
	case domain.ActionCancelItinerary:
		p.handleCancel(ctx, task)
	default:
		p.reject(ctx, task, domain.RationaleInvalidAction, "unrecognized task action")
	}
}

func (p *Processor) handleCreate(ctx context.Context, task domain.Task) {
	var payload domain.CreateItineraryPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		p.reject(ctx, task, domain.RationaleInternal, "malformed create_itinerary payload")
		return
	}

	ok, err := p.search.Revalidate(ctx, payload.Candidate, p.cfg.RevalidateSlack)
	if err != nil {
		p.log.Error("revalidate failed", "task_id", task.ID, "error", err)
		p.reject(ctx, task, domain.RationaleInternal, err.Error())
		return
	}
	if !ok {
		p.reject(ctx, task, domain.RationaleScheduleConflict, "candidate itinerary no longer feasible")
		return
	}

	sessionID := uuid.NewString()
	committed := make([]domain.FlightPlan, 0, len(payload.Candidate.Legs))
	for _, leg := range payload.Candidate.Legs {
		fp, err := p.storage.InsertFlightPlan(ctx, leg, sessionID)
		if err != nil {
			p.log.Error("insert_flight_plan failed", "task_id", task.ID, "error", err)
			p.compensate(ctx, committed)
			p.reject(ctx, task, domain.RationaleInternal, err.Error())
			return
		}
		committed = append(committed, fp)
	}

	planIDs := make([]string, len(committed))
	for i, fp := range committed {
		planIDs[i] = fp.ID
	}
	itin, err := p.storage.InsertItinerary(ctx, task.UserID, payload.Candidate.AircraftID, planIDs)
	if err != nil {
		p.log.Error("insert_itinerary failed", "task_id", task.ID, "error", err)
		p.compensate(ctx, committed)
		p.reject(ctx, task, domain.RationaleInternal, err.Error())
		return
	}

	for _, fp := range committed {
		if err := p.storage.UpdateFlightPlanStatus(ctx, fp.ID, domain.FlightPlanCommitted); err != nil {
			p.log.Error("update_flight_plan_status failed", "task_id", task.ID, "error", err)
			p.compensate(ctx, committed)
			_ = p.storage.UpdateItineraryStatus(ctx, itin.ID, domain.ItineraryCancelled)
			p.reject(ctx, task, domain.RationaleInternal, err.Error())
			return
		}
	}

	p.complete(ctx, task, itin.ID)
}

// compensate best-effort cancels plans inserted earlier in a failed commit
// (spec §4.8 step 5 "compensating writes").
func (p *Processor) compensate(ctx context.Context, plans []domain.FlightPlan) {
	for _, fp := range plans {
		if err := p.storage.UpdateFlightPlanStatus(ctx, fp.ID, domain.FlightPlanCancelled); err != nil {
			p.log.Error("compensating cancel failed", "flight_plan_id", fp.ID, "error", err)
		}
	}
}

func (p *Processor) handleCancel(ctx context.Context, task domain.Task) {
	var payload domain.CancelItineraryPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		p.reject(ctx, task, domain.RationaleInternal, "malformed cancel_itinerary payload")
		return
	}

	itin, plans, err := p.storage.GetItinerary(ctx, payload.ItineraryID)
	if code, ok := errs.CodeOf(err); ok && code == errs.NotFound {
		p.reject(ctx, task, domain.RationaleItineraryNotFound, "")
		return
	}
	if err != nil {
		p.log.Error("get_itinerary failed", "task_id", task.ID, "error", err)
		p.reject(ctx, task, domain.RationaleInternal, err.Error())
		return
	}

	// Re-issuing cancel on an already-cancelled itinerary is a no-op that
	// reports COMPLETE with unchanged state (spec §8 round-trip property,
	// decided in this implementation's open-question resolution).
	if itin.Status == domain.ItineraryCancelled {
		p.complete(ctx, task, itin.ID)
		return
	}

	if err := p.storage.UpdateItineraryStatus(ctx, itin.ID, domain.ItineraryCancelled); err != nil {
		p.log.Error("update_itinerary_status failed", "task_id", task.ID, "error", err)
		p.reject(ctx, task, domain.RationaleInternal, err.Error())
		return
	}
	for _, plan := range plans {
		if err := p.storage.UpdateFlightPlanStatus(ctx, plan.ID, domain.FlightPlanCancelled); err != nil {
			// The itinerary is already authoritatively cancelled; a
			// straggling plan update failure is logged, not fatal to the
			// task outcome.
			p.log.Error("cancel flight plan failed", "flight_plan_id", plan.ID, "error", err)
		}
	}

	p.complete(ctx, task, itin.ID)
}

func (p *Processor) complete(ctx context.Context, task domain.Task, result string) {
	if err := p.queue.UpdateTaskStatus(ctx, task.ID, domain.TaskComplete, domain.RationaleNone, result, p.cfg.TaskTTL); err != nil {
		p.log.Error("update_task_status(complete) failed", "task_id", task.ID, "error", err)
	}
	metricTaskOutcomes.WithLabelValues(string(task.Action), string(domain.RationaleNone)).Inc()
}

func (p *Processor) reject(ctx context.Context, task domain.Task, rationale domain.TaskRationale, detail string) {
	if err := p.queue.UpdateTaskStatus(ctx, task.ID, domain.TaskRejected, rationale, detail, p.cfg.TaskTTL); err != nil {
		p.log.Error("update_task_status(rejected) failed", "task_id", task.ID, "error", err)
	}
	metricTaskOutcomes.WithLabelValues(string(task.Action), string(rationale)).Inc()
}
