// Package storage is the storage adapter (spec §4.4): strictly typed
// search/insert/update operations over pads, aircraft, flight plans and
// itineraries, backed by Postgres via pgx. The engine neither defines nor
// versions these schemas (spec §6) — this package owns them because, in
// this deployment, the external "Storage" service is a Postgres instance
// this adapter talks to directly.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
	"github.com/aetheric-oss/svc-scheduler/internal/errs"
)

// Store is the C4 storage adapter.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pgxpool.Pool from dsn. The pool is sized by pgx defaults;
// callers needing different limits should configure dsn accordingly
// (teacher convention: connection shape lives in the DSN/Config, not in
// adapter code).
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "connect storage", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping verifies connectivity, used by isReady() (spec §4.9).
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errs.Wrap(errs.Storage, "ping storage", err)
	}
	return nil
}

// SearchPad fetches a pad by id (spec §4.4 search_pad).
func (s *Store) SearchPad(ctx context.Context, id string) (domain.Pad, error) {
	const q = `SELECT id, vertiport_id, operating_hours, load_offset_seconds, latitude, longitude
	           FROM vertipads WHERE id = $1`
	var p domain.Pad
	var loadOffsetSecs int
	err := s.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.VertiportID, &p.OperatingHours, &loadOffsetSecs, &p.Latitude, &p.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pad{}, errs.New(errs.NotFound, fmt.Sprintf("pad %q not found", id))
	}
	if err != nil {
		return domain.Pad{}, errs.Wrap(errs.Storage, "search_pad", err)
	}
	p.LoadOffset = time.Duration(loadOffsetSecs) * time.Second
	return p, nil
}

// SearchAircraft fetches an aircraft by id (spec §4.4 search_aircraft).
func (s *Store) SearchAircraft(ctx context.Context, id string) (domain.Aircraft, error) {
	const q = `SELECT id, cruise_speed_mps, range_meters, loiter_cost_kwh, base_calendar, capacity_people, capacity_grams
	           FROM aircraft WHERE id = $1`
	var a domain.Aircraft
	err := s.pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.CruiseSpeedMPS, &a.RangeMeters, &a.LoiterCostKWh, &a.BaseCalendar, &a.CapacityPeople, &a.CapacityGrams)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Aircraft{}, errs.New(errs.NotFound, fmt.Sprintf("aircraft %q not found", id))
	}
	if err != nil {
		return domain.Aircraft{}, errs.Wrap(errs.Storage, "search_aircraft", err)
	}
	return a, nil
}

// SearchAllAircraft returns every aircraft, used by the search engine's
// enumeration over candidate aircraft (spec §4.5 step 1).
func (s *Store) SearchAllAircraft(ctx context.Context) ([]domain.Aircraft, error) {
	const q = `SELECT id, cruise_speed_mps, range_meters, loiter_cost_kwh, base_calendar, capacity_people, capacity_grams FROM aircraft`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "search_all_aircraft", err)
	}
	defer rows.Close()

	var out []domain.Aircraft
	for rows.Next() {
		var a domain.Aircraft
		if err := rows.Scan(&a.ID, &a.CruiseSpeedMPS, &a.RangeMeters, &a.LoiterCostKWh, &a.BaseCalendar, &a.CapacityPeople, &a.CapacityGrams); err != nil {
			return nil, errs.Wrap(errs.Storage, "scan aircraft", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PlansForAircraft searches non-cancelled flight plans for an aircraft
// intersecting window (spec §4.4 search_plans_by_aircraft). It implements
// timeline.PlanLookup.
func (s *Store) PlansForAircraft(ctx context.Context, aircraftID string, window domain.Timeslot) ([]domain.FlightPlan, error) {
	const q = `SELECT id, aircraft_id, origin_pad, dest_pad, departure, arrival, path, altitudes, session_id, status, is_deadhead
	           FROM flight_plans
	           WHERE aircraft_id = $1 AND status <> 'CANCELLED' AND departure < $3 AND arrival > $2
	           ORDER BY departure`
	return s.queryPlans(ctx, q, aircraftID, window.Start, window.End)
}

// PlansForPad searches non-cancelled flight plans touching a pad as origin
// or destination, intersecting window (spec §4.4 search_plans_by_pad).
func (s *Store) PlansForPad(ctx context.Context, padID string, window domain.Timeslot) ([]domain.FlightPlan, error) {
	const q = `SELECT id, aircraft_id, origin_pad, dest_pad, departure, arrival, path, altitudes, session_id, status, is_deadhead
	           FROM flight_plans
	           WHERE (origin_pad = $1 OR dest_pad = $1) AND status <> 'CANCELLED' AND departure < $3 AND arrival > $2
	           ORDER BY departure`
	return s.queryPlans(ctx, q, padID, window.Start, window.End)
}

func (s *Store) queryPlans(ctx context.Context, q, resourceID string, from, until time.Time) ([]domain.FlightPlan, error) {
	rows, err := s.pool.Query(ctx, q, resourceID, from, until)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "search_plans", err)
	}
	defer rows.Close()

	var out []domain.FlightPlan
	for rows.Next() {
		var fp domain.FlightPlan
		if err := rows.Scan(&fp.ID, &fp.AircraftID, &fp.OriginPad, &fp.DestPad, &fp.Departure, &fp.Arrival, &fp.Path, &fp.Altitudes, &fp.SessionID, &fp.Status, &fp.IsDeadhead); err != nil {
			return nil, errs.Wrap(errs.Storage, "scan flight plan", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// InsertFlightPlan persists a new DRAFT flight plan (spec §4.4
// insert_flight_plan). Called once per leg during CREATE_ITINERARY
// commit (spec §4.8 step 5).
func (s *Store) InsertFlightPlan(ctx context.Context, draft domain.FlightPlanDraft, sessionID string) (domain.FlightPlan, error) {
	fp := domain.FlightPlan{
		ID: uuid.NewString(), AircraftID: draft.AircraftID, OriginPad: draft.OriginPad, DestPad: draft.DestPad,
		Departure: draft.Departure, Arrival: draft.Arrival, Path: draft.Path, Altitudes: draft.Altitudes,
		SessionID: sessionID, Status: domain.FlightPlanStatusDraft, IsDeadhead: draft.IsDeadhead,
	}
	const q = `INSERT INTO flight_plans (id, aircraft_id, origin_pad, dest_pad, departure, arrival, path, altitudes, session_id, status, is_deadhead)
	           VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := s.pool.Exec(ctx, q, fp.ID, fp.AircraftID, fp.OriginPad, fp.DestPad, fp.Departure, fp.Arrival, fp.Path, fp.Altitudes, fp.SessionID, fp.Status, fp.IsDeadhead)
	if err != nil {
		return domain.FlightPlan{}, errs.Wrap(errs.Storage, "insert_flight_plan", err)
	}
	return fp, nil
}

// UpdateFlightPlanStatus transitions a flight plan's status (spec §4.4
// update_flight_plan_status).
func (s *Store) UpdateFlightPlanStatus(ctx context.Context, id string, status domain.FlightPlanStatus) error {
	const q = `UPDATE flight_plans SET status = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, status)
	if err != nil {
		return errs.Wrap(errs.Storage, "update_flight_plan_status", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, fmt.Sprintf("flight plan %q not found", id))
	}
	return nil
}

// InsertItinerary persists a new itinerary row referencing flight plans
// that were already inserted (spec §4.4 insert_itinerary). It is a single
// INSERT of its own: the plan inserts and this one do not share a
// transaction, so a failure here leaves the earlier plan rows in place.
func (s *Store) InsertItinerary(ctx context.Context, userID, aircraftID string, planIDs []string) (domain.Itinerary, error) {
	itin := domain.Itinerary{
		ID: uuid.NewString(), UserID: userID, AircraftID: aircraftID, PlanIDs: planIDs,
		Status: domain.ItineraryActive,
	}
	const q = `INSERT INTO itineraries (id, user_id, aircraft_id, plan_ids, status, created_at) VALUES ($1,$2,$3,$4,$5,now())`
	_, err := s.pool.Exec(ctx, q, itin.ID, itin.UserID, itin.AircraftID, itin.PlanIDs, itin.Status)
	if err != nil {
		return domain.Itinerary{}, errs.Wrap(errs.Storage, "insert_itinerary", err)
	}
	return itin, nil
}

// UpdateItineraryStatus transitions an itinerary's status (spec §4.4
// update_itinerary_status).
func (s *Store) UpdateItineraryStatus(ctx context.Context, id string, status domain.ItineraryStatus) error {
	const q = `UPDATE itineraries SET status = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, status)
	if err != nil {
		return errs.Wrap(errs.Storage, "update_itinerary_status", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, fmt.Sprintf("itinerary %q not found", id))
	}
	return nil
}

// GetItinerary fetches an itinerary and its flight plans by id (spec §4.4
// get_itinerary).
func (s *Store) GetItinerary(ctx context.Context, id string) (domain.Itinerary, []domain.FlightPlan, error) {
	const q = `SELECT id, user_id, aircraft_id, plan_ids, status, created_at FROM itineraries WHERE id = $1`
	var itin domain.Itinerary
	err := s.pool.QueryRow(ctx, q, id).Scan(&itin.ID, &itin.UserID, &itin.AircraftID, &itin.PlanIDs, &itin.Status, &itin.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Itinerary{}, nil, errs.New(errs.NotFound, fmt.Sprintf("itinerary %q not found", id))
	}
	if err != nil {
		return domain.Itinerary{}, nil, errs.Wrap(errs.Storage, "get_itinerary", err)
	}

	plans := make([]domain.FlightPlan, 0, len(itin.PlanIDs))
	const pq = `SELECT id, aircraft_id, origin_pad, dest_pad, departure, arrival, path, altitudes, session_id, status, is_deadhead FROM flight_plans WHERE id = ANY($1)`
	rows, err := s.pool.Query(ctx, pq, itin.PlanIDs)
	if err != nil {
		return domain.Itinerary{}, nil, errs.Wrap(errs.Storage, "get_itinerary plans", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fp domain.FlightPlan
		if err := rows.Scan(&fp.ID, &fp.AircraftID, &fp.OriginPad, &fp.DestPad, &fp.Departure, &fp.Arrival, &fp.Path, &fp.Altitudes, &fp.SessionID, &fp.Status, &fp.IsDeadhead); err != nil {
			return domain.Itinerary{}, nil, errs.Wrap(errs.Storage, "scan flight plan", err)
		}
		plans = append(plans, fp)
	}
	return itin, plans, rows.Err()
}
