package visit

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// ActiveStatuses are the statuses that occupy a midwife's time and
// participate in overlap detection.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

func IsActive(s Status) bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type Type string

const (
	TypeRemote Type = "remote"    // video call
	TypeClinic Type = "clinic"    // in person at the midwife's practice
	TypeHome   Type = "home"      // in person at the patient's home
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

type ReminderKind string

const (
	Reminder24Hours   ReminderKind = "24h"
	Reminder2Hours    ReminderKind = "2h"
	Reminder30Minutes ReminderKind = "30m"
	Reminder15Minutes ReminderKind = "15m"
)

// Offset is how long before the visit start a reminder of this kind fires.
func (k ReminderKind) Offset() time.Duration {
	switch k {
	case Reminder24Hours:
		return 24 * time.Hour
	case Reminder2Hours:
		return 2 * time.Hour
	case Reminder30Minutes:
		return 30 * time.Minute
	case Reminder15Minutes:
		return 15 * time.Minute
	}
	return 0
}

// DefaultReminderKinds, largest offset first.
var DefaultReminderKinds = []ReminderKind{
	Reminder24Hours,
	Reminder2Hours,
	Reminder30Minutes,
	Reminder15Minutes,
}

type Reminder struct {
	ID           uuid.UUID  `json:"id"`
	Kind         ReminderKind `json:"kind"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Sent         bool       `json:"sent"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	Channels     []Channel  `json:"channels"`
}

type Location struct {
	Address     string   `json:"address,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	MeetingLink string   `json:"meeting_link,omitempty"`
	Room        string   `json:"room,omitempty"`
}

type Attachment struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	SizeBytes  int64     `json:"size_bytes"`
	StorageKey string    `json:"storage_key"`
	UploadedAt time.Time `json:"uploaded_at"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
}

// Visit is a scheduled encounter between one patient and one midwife.
type Visit struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	Type            Type
	Status          Status
	ScheduledAt     time.Time
	DurationMinutes int
	Timezone        string
	Location        *Location
	Notes           string
	Attachments     []Attachment
	PriceCents      int64
	Currency        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
	CancelReason    string
	CancelledBy     *uuid.UUID
	RescheduledFrom *uuid.UUID
	Reminders       []Reminder
	Metadata        map[string]string
}

// End is the exclusive end of the visit's time window.
func (v *Visit) End() time.Time {
	return EndOf(v.ScheduledAt, v.DurationMinutes)
}

// Clone returns a deep copy so callers can hand visits across the store
// boundary without sharing mutable state.
func (v *Visit) Clone() *Visit {
	c := *v
	if v.Location != nil {
		loc := *v.Location
		c.Location = &loc
	}
	if v.Attachments != nil {
		c.Attachments = append([]Attachment(nil), v.Attachments...)
	}
	if v.Reminders != nil {
		c.Reminders = make([]Reminder, len(v.Reminders))
		for i, r := range v.Reminders {
			c.Reminders[i] = r
			if r.Channels != nil {
				c.Reminders[i].Channels = append([]Channel(nil), r.Channels...)
			}
		}
	}
	if v.Metadata != nil {
		c.Metadata = make(map[string]string, len(v.Metadata))
		for k, val := range v.Metadata {
			c.Metadata[k] = val
		}
	}
	return &c
}

// AvailabilitySlot is a midwife-declared bookable window.
type AvailabilitySlot struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	IsAvailable     bool
	VisitTypes      []Type
	MaxBookings     int
	CurrentBookings int
	Timezone        string
}

func (s *AvailabilitySlot) Accepts(t Type) bool {
	for _, vt := range s.VisitTypes {
		if vt == t {
			return true
		}
	}
	return false
}

func (s *AvailabilitySlot) HasCapacity() bool {
	return s.CurrentBookings < s.MaxBookings
}

// Covers reports whether [start, end] lies fully inside the slot window.
func (s *AvailabilitySlot) Covers(start, end time.Time) bool {
	return !start.Before(s.StartTime) && !end.After(s.EndTime)
}

func (s *AvailabilitySlot) Clone() *AvailabilitySlot {
	c := *s
	if s.VisitTypes != nil {
		c.VisitTypes = append([]Type(nil), s.VisitTypes...)
	}
	return &c
}

type ConflictKind string

const (
	ConflictTimeOverlap      ConflictKind = "time_overlap"
	ConflictDoubleBooking    ConflictKind = "double_booking"
	ConflictUnavailableSlot  ConflictKind = "unavailable_slot"
	ConflictTimezoneMismatch ConflictKind = "timezone_mismatch"
)

// Conflict is a detection result, never persisted.
type Conflict struct {
	Kind                  ConflictKind `json:"kind"`
	Message               string       `json:"message"`
	VisitID               *uuid.UUID   `json:"visit_id,omitempty"`
	SuggestedAlternatives []time.Time  `json:"suggested_alternatives"`
}

// CalendarEvent is the flattened form of a visit handed to calendar-file
// generators.
type CalendarEvent struct {
	Title       string      `json:"title"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Description string      `json:"description,omitempty"`
	Location    string      `json:"location,omitempty"`
	Attendees   []uuid.UUID `json:"attendees"`
	JoinURL     string      `json:"join_url,omitempty"`
}
