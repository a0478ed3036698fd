// Package queuestore is the client adapter for the external Queue Store
// (spec §6): "scheduler:{emergency|high|medium|low}" ordered sets for the
// four priority queues (C7, §4.7), "scheduler:tasks:<id>" string values
// holding each Task record as JSON (C6, §4.6; a plain SET/GET key, not a
// Redis hash), and "scheduler:tasks:counter" for the monotonic task
// id counter. Both C6 and C7 share one redis client because the contract
// unifies them under one keyspace.
package queuestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// ErrNotFound is returned when a task id has no record (expired past TTL
// or never existed); callers surface this as domain.TaskNotFound.
var ErrNotFound = errors.New("queuestore: task not found")

const (
	keyPrefix     = "scheduler:"
	counterKey    = keyPrefix + "tasks:counter"
)

func queueKey(p domain.Priority) string {
	switch p {
	case domain.PriorityEmergency:
		return keyPrefix + "emergency"
	case domain.PriorityHigh:
		return keyPrefix + "high"
	case domain.PriorityMedium:
		return keyPrefix + "medium"
	default:
		return keyPrefix + "low"
	}
}

func taskKey(id int64) string {
	return fmt.Sprintf("%stasks:%d", keyPrefix, id)
}

// Store is the C6+C7 client adapter over one redis connection.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing redis client. The caller owns the client's
// lifecycle (construction, auth, TLS) per the teacher's functional-option
// convention; this adapter only knows the scheduler keyspace.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Ping verifies connectivity, used by isReady() (spec §4.9).
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ---- C6: Task record store ----

type taskRecord struct {
	ID        int64                `json:"id"`
	Action    domain.TaskAction    `json:"action"`
	Priority  domain.Priority      `json:"priority"`
	UserID    string               `json:"user_id"`
	CreatedAt time.Time            `json:"created_at"`
	Expiry    time.Time            `json:"expiry"`
	Payload   json.RawMessage      `json:"payload"`
	Status    domain.TaskStatus    `json:"status"`
	Rationale domain.TaskRationale `json:"rationale"`
	Result    string               `json:"result"`
}

func toRecord(t domain.Task) taskRecord {
	return taskRecord{
		ID: t.ID, Action: t.Action, Priority: t.Priority, UserID: t.UserID,
		CreatedAt: t.CreatedAt, Expiry: t.Expiry, Payload: t.Payload,
		Status: t.Status, Rationale: t.Rationale, Result: t.Result,
	}
}

func (r taskRecord) toTask() domain.Task {
	return domain.Task{
		ID: r.ID, Action: r.Action, Priority: r.Priority, UserID: r.UserID,
		CreatedAt: r.CreatedAt, Expiry: r.Expiry, Payload: r.Payload,
		Status: r.Status, Rationale: r.Rationale, Result: r.Result,
	}
}

// NextTaskID increments and returns the monotonic task id counter.
func (s *Store) NextTaskID(ctx context.Context) (int64, error) {
	return s.rdb.Incr(ctx, counterKey).Result()
}

// PutTask persists a new Task record with the given TTL (spec §4.6 put).
func (s *Store) PutTask(ctx context.Context, t domain.Task, ttl time.Duration) error {
	body, err := json.Marshal(toRecord(t))
	if err != nil {
		return fmt.Errorf("queuestore: marshal task: %w", err)
	}
	return s.rdb.Set(ctx, taskKey(t.ID), body, ttl).Err()
}

// GetTask fetches a Task record, or ErrNotFound if it has expired or never
// existed (spec §4.6 get).
func (s *Store) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	body, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("queuestore: get task: %w", err)
	}
	var rec taskRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return domain.Task{}, fmt.Errorf("queuestore: unmarshal task: %w", err)
	}
	return rec.toTask(), nil
}

// UpdateTaskStatus performs a read-modify-write status transition and
// extends the record's TTL (spec §4.6 update_status). Serialized by the
// single-threaded task processor (§5) — no optimistic locking is needed
// beyond the atomic single-key SET this issues.
func (s *Store) UpdateTaskStatus(ctx context.Context, id int64, status domain.TaskStatus, rationale domain.TaskRationale, result string, ttl time.Duration) error {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	t.Status = status
	t.Rationale = rationale
	t.Result = result
	return s.PutTask(ctx, t, ttl)
}

// ---- C7: Priority queues ----

// PopResult is one element returned by PopMinBlocking.
type PopResult struct {
	Class Priority
	TaskID int64
	Score  float64
}

// Priority is re-exported for readability at call sites; it is
// domain.Priority under the hood.
type Priority = domain.Priority

// Add enqueues taskID into class's ordered set, scored by score (the
// task's expiry as a unix timestamp), spec §4.7 add.
func (s *Store) Add(ctx context.Context, class domain.Priority, taskID int64, score float64) error {
	return s.rdb.ZAdd(ctx, queueKey(class), redis.Z{Score: score, Member: taskID}).Err()
}

// Remove removes taskID from class's ordered set, spec §4.7 remove (used
// by cancel_task to pull a QUEUED task out of contention — though the
// processor also tolerates popping an already-rejected task).
func (s *Store) Remove(ctx context.Context, class domain.Priority, taskID int64) error {
	return s.rdb.ZRem(ctx, queueKey(class), taskID).Err()
}

// QueueDepths returns the current number of queued tasks in each priority
// class, sampled by the task processor on every pop for the
// per-priority-class queue depth gauge.
func (s *Store) QueueDepths(ctx context.Context) (map[domain.Priority]int64, error) {
	out := make(map[domain.Priority]int64, len(domain.Classes))
	for _, c := range domain.Classes {
		n, err := s.rdb.ZCard(ctx, queueKey(c)).Result()
		if err != nil {
			return nil, fmt.Errorf("queuestore: zcard %s: %w", c, err)
		}
		out[c] = n
	}
	return out, nil
}

// PopMinBlocking scans classes in strict priority order and returns the
// earliest-scored element from the first non-empty class. Within a class,
// Redis sorted-set semantics break score ties by lexicographic order of the
// member (the task id's decimal string, so "10" pops before "9"), not by
// insertion order. If every class is
// empty, it blocks (via BZPOPMIN) until an element arrives or timeout
// elapses, then returns (PopResult{}, false, nil).
func (s *Store) PopMinBlocking(ctx context.Context, classes []domain.Priority, timeout time.Duration) (PopResult, bool, error) {
	for _, class := range classes {
		res, err := s.rdb.ZPopMin(ctx, queueKey(class), 1).Result()
		if err != nil {
			return PopResult{}, false, fmt.Errorf("queuestore: zpopmin %s: %w", class, err)
		}
		if len(res) == 0 {
			continue
		}
		id, err := memberToTaskID(res[0].Member)
		if err != nil {
			return PopResult{}, false, err
		}
		return PopResult{Class: class, TaskID: id, Score: res[0].Score}, true, nil
	}

	keys := make([]string, len(classes))
	for i, c := range classes {
		keys[i] = queueKey(c)
	}
	z, err := s.rdb.BZPopMin(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return PopResult{}, false, nil
	}
	if err != nil {
		return PopResult{}, false, fmt.Errorf("queuestore: bzpopmin: %w", err)
	}
	class, ok := classFromKey(z.Key)
	if !ok {
		return PopResult{}, false, fmt.Errorf("queuestore: unrecognized queue key %q", z.Key)
	}
	id, err := memberToTaskID(z.Member)
	if err != nil {
		return PopResult{}, false, err
	}
	return PopResult{Class: class, TaskID: id, Score: z.Score}, true, nil
}

func memberToTaskID(member interface{}) (int64, error) {
	switch v := member.(type) {
	case string:
		var id int64
		if _, err := fmt.Sscanf(v, "%d", &id); err != nil {
			return 0, fmt.Errorf("queuestore: malformed queue member %q: %w", v, err)
		}
		return id, nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("queuestore: unexpected queue member type %T", member)
	}
}

func classFromKey(key string) (domain.Priority, bool) {
	for _, c := range domain.Classes {
		if queueKey(c) == key {
			return c, true
		}
	}
	return 0, false
}
