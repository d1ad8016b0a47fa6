package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloomcare/midwife-scheduling/internal/visit"
)

type CreateVisitRequest struct {
	PatientID       string            `json:"patient_id"`
	ProviderID      string            `json:"provider_id"`
	Type            string            `json:"type"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Timezone        string            `json:"timezone,omitempty"`
	Location        *visit.Location   `json:"location,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	PriceCents      int64             `json:"price_cents,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	Channels        []string          `json:"channels,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type UpdateVisitRequest struct {
	Status          *string         `json:"status,omitempty"`
	Type            *string         `json:"type,omitempty"`
	ScheduledAt     *time.Time      `json:"scheduled_at,omitempty"`
	DurationMinutes *int            `json:"duration_minutes,omitempty"`
	Timezone        *string         `json:"timezone,omitempty"`
	Location        *visit.Location `json:"location,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
}

type CancelVisitRequest struct {
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"`
}

type RescheduleVisitRequest struct {
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
}

type AddSlotRequest struct {
	ProviderID  string    `json:"provider_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	VisitTypes  []string  `json:"visit_types"`
	MaxBookings int       `json:"max_bookings"`
	Timezone    string    `json:"timezone,omitempty"`
}

type VisitResponse struct {
	ID              uuid.UUID         `json:"id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	ProviderID      uuid.UUID         `json:"provider_id"`
	Type            string            `json:"type"`
	Status          string            `json:"status"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	EndsAt          time.Time         `json:"ends_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Timezone        string            `json:"timezone"`
	Location        *visit.Location   `json:"location,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	PriceCents      int64             `json:"price_cents,omitempty"`
	Currency        string            `json:"currency,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason    string            `json:"cancel_reason,omitempty"`
	RescheduledFrom *uuid.UUID        `json:"rescheduled_from,omitempty"`
	Reminders       []visit.Reminder  `json:"reminders"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func toVisitResponse(v *visit.Visit) VisitResponse {
	return VisitResponse{
		ID:              v.ID,
		PatientID:       v.PatientID,
		ProviderID:      v.ProviderID,
		Type:            string(v.Type),
		Status:          string(v.Status),
		ScheduledAt:     v.ScheduledAt,
		EndsAt:          v.End(),
		DurationMinutes: v.DurationMinutes,
		Timezone:        v.Timezone,
		Location:        v.Location,
		Notes:           v.Notes,
		PriceCents:      v.PriceCents,
		Currency:        v.Currency,
		CancelledAt:     v.CancelledAt,
		CancelReason:    v.CancelReason,
		RescheduledFrom: v.RescheduledFrom,
		Reminders:       v.Reminders,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

type SlotResponse struct {
	ID              uuid.UUID `json:"id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	VisitTypes      []string  `json:"visit_types"`
	MaxBookings     int       `json:"max_bookings"`
	CurrentBookings int       `json:"current_bookings"`
	Timezone        string    `json:"timezone,omitempty"`
}

func toSlotResponse(s *visit.AvailabilitySlot) SlotResponse {
	types := make([]string, len(s.VisitTypes))
	for i, t := range s.VisitTypes {
		types[i] = string(t)
	}
	return SlotResponse{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		VisitTypes:      types,
		MaxBookings:     s.MaxBookings,
		CurrentBookings: s.CurrentBookings,
		Timezone:        s.Timezone,
	}
}

type ConflictListResponse struct {
	Conflicts []visit.Conflict `json:"conflicts"`
}

type ErrorResponse struct {
	Error     string           `json:"error"`
	Details   string           `json:"details,omitempty"`
	Conflicts []visit.Conflict `json:"conflicts,omitempty"`
}
