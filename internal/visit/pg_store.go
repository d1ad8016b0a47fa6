package visit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the postgres-backed Store and AvailabilityIndex. It satisfies
// the same contracts as MemoryStore; the lifecycle manager cannot tell them
// apart. Insertion order is preserved through the seq bigserial column.
type PgStore struct {
	pool  *pgxpool.Pool
	clock Clock
}

func NewPgStore(pool *pgxpool.Pool, clock Clock) *PgStore {
	if clock == nil {
		clock = SystemClock
	}
	return &PgStore{pool: pool, clock: clock}
}

const visitColumns = `
	id, patient_id, provider_id, visit_type, status, scheduled_at,
	duration_minutes, timezone, location, notes, attachments, price_cents,
	currency, created_at, updated_at, cancelled_at, cancel_reason,
	cancelled_by, rescheduled_from, reminders, metadata`

func scanVisit(row pgx.Row) (*Visit, error) {
	var (
		v               Visit
		locationJSON    []byte
		attachmentsJSON []byte
		remindersJSON   []byte
		metadataJSON    []byte
	)

	err := row.Scan(
		&v.ID,
		&v.PatientID,
		&v.ProviderID,
		&v.Type,
		&v.Status,
		&v.ScheduledAt,
		&v.DurationMinutes,
		&v.Timezone,
		&locationJSON,
		&v.Notes,
		&attachmentsJSON,
		&v.PriceCents,
		&v.Currency,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.CancelledAt,
		&v.CancelReason,
		&v.CancelledBy,
		&v.RescheduledFrom,
		&remindersJSON,
		&metadataJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	if len(locationJSON) > 0 {
		var loc Location
		if err := json.Unmarshal(locationJSON, &loc); err != nil {
			return nil, fmt.Errorf("decode location: %w", err)
		}
		v.Location = &loc
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &v.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if len(remindersJSON) > 0 {
		if err := json.Unmarshal(remindersJSON, &v.Reminders); err != nil {
			return nil, fmt.Errorf("decode reminders: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &v.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return &v, nil
}

func encodeVisitJSON(v *Visit) (location, attachments, reminders, metadata []byte, err error) {
	if v.Location != nil {
		if location, err = json.Marshal(v.Location); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode location: %w", err)
		}
	}
	if attachments, err = json.Marshal(v.Attachments); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode attachments: %w", err)
	}
	if reminders, err = json.Marshal(v.Reminders); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode reminders: %w", err)
	}
	if metadata, err = json.Marshal(v.Metadata); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return location, attachments, reminders, metadata, nil
}

func (s *PgStore) Insert(ctx context.Context, v *Visit) (*Visit, error) {
	stored := v.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := s.clock.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	location, attachments, reminders, metadata, err := encodeVisitJSON(stored)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO visits (
			id, patient_id, provider_id, visit_type, status, scheduled_at,
			duration_minutes, timezone, location, notes, attachments,
			price_cents, currency, created_at, updated_at, cancelled_at,
			cancel_reason, cancelled_by, rescheduled_from, reminders, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21)
		RETURNING `+visitColumns,
		stored.ID, stored.PatientID, stored.ProviderID, stored.Type,
		stored.Status, stored.ScheduledAt, stored.DurationMinutes,
		stored.Timezone, location, stored.Notes, attachments,
		stored.PriceCents, stored.Currency, stored.CreatedAt,
		stored.UpdatedAt, stored.CancelledAt, stored.CancelReason,
		stored.CancelledBy, stored.RescheduledFrom, reminders, metadata,
	)

	return scanVisit(row)
}

func (s *PgStore) FindByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE id = $1
	`, id)
	return scanVisit(row)
}

// Update loads the row, applies the partial update in Go, and writes the
// full row back. Callers serialize writes through the provider lock, so
// read-modify-write is safe here.
func (s *PgStore) Update(ctx context.Context, id uuid.UUID, u Update) (*Visit, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.apply(current)
	current.UpdatedAt = s.clock.Now()

	location, attachments, reminders, metadata, err := encodeVisitJSON(current)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE visits SET
			visit_type = $2, status = $3, scheduled_at = $4,
			duration_minutes = $5, timezone = $6, location = $7, notes = $8,
			attachments = $9, price_cents = $10, currency = $11,
			updated_at = $12, cancelled_at = $13, cancel_reason = $14,
			cancelled_by = $15, reminders = $16, metadata = $17
		WHERE id = $1
		RETURNING `+visitColumns,
		id, current.Type, current.Status, current.ScheduledAt,
		current.DurationMinutes, current.Timezone, location, current.Notes,
		attachments, current.PriceCents, current.Currency, current.UpdatedAt,
		current.CancelledAt, current.CancelReason, current.CancelledBy,
		reminders, metadata,
	)

	return scanVisit(row)
}

func (s *PgStore) List(ctx context.Context, f Filter) ([]Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE 1=1`
	var args []any

	if len(f.Statuses) > 0 {
		args = append(args, statusStrings(f.Statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if len(f.Types) > 0 {
		args = append(args, typeStrings(f.Types))
		query += fmt.Sprintf(" AND visit_type = ANY($%d)", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND scheduled_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND scheduled_at < $%d", len(args))
	}
	if f.ProviderID != uuid.Nil {
		args = append(args, f.ProviderID)
		query += fmt.Sprintf(" AND provider_id = $%d", len(args))
	}
	if f.PatientID != uuid.Nil {
		args = append(args, f.PatientID)
		query += fmt.Sprintf(" AND patient_id = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(" AND (notes ILIKE $%d OR location->>'address' ILIKE $%d)", len(args), len(args))
	}

	query += " ORDER BY scheduled_at ASC"

	return s.queryVisits(ctx, query, args...)
}

func (s *PgStore) ListActiveByProvider(ctx context.Context, providerID uuid.UUID) ([]Visit, error) {
	return s.queryVisits(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE provider_id = $1 AND status = ANY($2)
		ORDER BY seq ASC
	`, providerID, statusStrings(ActiveStatuses))
}

func (s *PgStore) MarkReminderSent(ctx context.Context, visitID, reminderID uuid.UUID, at time.Time) error {
	current, err := s.FindByID(ctx, visitID)
	if err != nil {
		return err
	}

	changed := false
	for i := range current.Reminders {
		r := &current.Reminders[i]
		if r.ID != reminderID || r.Sent {
			continue
		}
		r.Sent = true
		t := at
		r.SentAt = &t
		changed = true
	}
	if !changed {
		return nil
	}

	reminders, err := json.Marshal(current.Reminders)
	if err != nil {
		return fmt.Errorf("encode reminders: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE visits SET reminders = $2, updated_at = $3
		WHERE id = $1
	`, visitID, reminders, s.clock.Now())
	return err
}

func (s *PgStore) queryVisits(ctx context.Context, query string, args ...any) ([]Visit, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AvailabilityIndex implementation.

const slotColumns = `
	id, provider_id, start_time, end_time, is_available, visit_types,
	max_bookings, current_bookings, timezone`

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot
	var types []string

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.StartTime,
		&s.EndTime,
		&s.IsAvailable,
		&types,
		&s.MaxBookings,
		&s.CurrentBookings,
		&s.Timezone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	for _, t := range types {
		s.VisitTypes = append(s.VisitTypes, Type(t))
	}
	return &s, nil
}

func (s *PgStore) AddSlot(ctx context.Context, slot *AvailabilitySlot) (*AvailabilitySlot, error) {
	stored := slot.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO availability_slots (
			id, provider_id, start_time, end_time, is_available, visit_types,
			max_bookings, current_bookings, timezone
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+slotColumns,
		stored.ID, stored.ProviderID, stored.StartTime, stored.EndTime,
		stored.IsAvailable, typeStrings(stored.VisitTypes),
		stored.MaxBookings, stored.CurrentBookings, stored.Timezone,
	)
	return scanSlot(row)
}

func (s *PgStore) FindOpenSlots(ctx context.Context, providerID uuid.UUID, from, to time.Time, visitType Type) ([]AvailabilitySlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE provider_id = $1
		  AND is_available
		  AND start_time >= $2
		  AND end_time <= $3
		  AND $4 = ANY(visit_types)
		  AND current_bookings < max_bookings
		ORDER BY start_time ASC
	`, providerID, from, to, string(visitType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) FindCoveringSlot(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*AvailabilitySlot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE provider_id = $1
		  AND is_available
		  AND start_time <= $2
		  AND end_time >= $3
		LIMIT 1
	`, providerID, start, end)
	return scanSlot(row)
}

func (s *PgStore) AdjustBookings(ctx context.Context, slotID uuid.UUID, delta int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE availability_slots
		SET current_bookings = GREATEST(current_bookings + $2, 0)
		WHERE id = $1
	`, slotID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func typeStrings(types []Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
