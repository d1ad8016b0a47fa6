package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bloomcare/midwife-scheduling/internal/lock"
	"github.com/bloomcare/midwife-scheduling/internal/visit"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func handleVisitError(w http.ResponseWriter, err error) {
	var conflictErr *visit.ConflictError
	var transitionErr *visit.InvalidTransitionError

	switch {
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "scheduling_conflict",
			Details:   conflictErr.Error(),
			Conflicts: conflictErr.Conflicts,
		})
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, "invalid_status_transition", transitionErr.Error())
	case errors.Is(err, visit.ErrVisitNotFound):
		writeError(w, http.StatusNotFound, "visit_not_found", err.Error())
	case errors.Is(err, visit.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_duration", err.Error())
	case errors.Is(err, lock.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "provider_busy", "the midwife's schedule is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func createVisitHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateVisitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		channels := make([]visit.Channel, 0, len(req.Channels))
		for _, ch := range req.Channels {
			channels = append(channels, visit.Channel(ch))
		}

		created, err := svc.CreateVisit(r.Context(), visit.CreateVisitInput{
			PatientID:       patientID,
			ProviderID:      providerID,
			Type:            visit.Type(req.Type),
			ScheduledAt:     req.ScheduledAt,
			DurationMinutes: req.DurationMinutes,
			Timezone:        req.Timezone,
			Location:        req.Location,
			Notes:           req.Notes,
			PriceCents:      req.PriceCents,
			Currency:        req.Currency,
			Channels:        channels,
			Metadata:        req.Metadata,
		})
		if err != nil {
			handleVisitError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toVisitResponse(created))
	}
}

func getVisitHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		v, err := svc.GetVisit(r.Context(), id)
		if err != nil {
			handleVisitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVisitResponse(v))
	}
}

func listVisitsHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := visit.Filter{Search: r.URL.Query().Get("q")}

		for _, s := range splitParam(r.URL.Query().Get("status")) {
			f.Statuses = append(f.Statuses, visit.Status(s))
		}
		for _, t := range splitParam(r.URL.Query().Get("type")) {
			f.Types = append(f.Types, visit.Type(t))
		}
		if raw := r.URL.Query().Get("provider_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			f.ProviderID = id
		}
		if raw := r.URL.Query().Get("patient_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			f.PatientID = id
		}
		var ok bool
		if f.From, ok = parseTimeParam(w, r, "from"); !ok {
			return
		}
		if f.To, ok = parseTimeParam(w, r, "to"); !ok {
			return
		}

		visits, err := svc.ListVisits(r.Context(), f)
		if err != nil {
			handleVisitError(w, err)
			return
		}

		resp := make([]VisitResponse, 0, len(visits))
		for i := range visits {
			resp = append(resp, toVisitResponse(&visits[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateVisitHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateVisitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		u := visit.Update{
			ScheduledAt:     req.ScheduledAt,
			DurationMinutes: req.DurationMinutes,
			Timezone:        req.Timezone,
			Location:        req.Location,
			Notes:           req.Notes,
		}
		if req.Status != nil {
			s := visit.Status(*req.Status)
			u.Status = &s
		}
		if req.Type != nil {
			t := visit.Type(*req.Type)
			u.Type = &t
		}

		updated, err := svc.UpdateVisit(r.Context(), id, u)
		if err != nil {
			handleVisitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVisitResponse(updated))
	}
}

func cancelVisitHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req CancelVisitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		cancelledBy, err := uuid.Parse(req.CancelledBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cancelled_by", "cancelled_by must be a valid UUID")
			return
		}

		cancelled, err := svc.CancelVisit(r.Context(), id, req.Reason, cancelledBy)
		if err != nil {
			handleVisitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVisitResponse(cancelled))
	}
}

func rescheduleVisitHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleVisitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		successor, err := svc.RescheduleVisit(r.Context(), id, req.ScheduledAt, req.DurationMinutes)
		if err != nil {
			handleVisitError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toVisitResponse(successor))
	}
}

func transitionHandler(fn func(r *http.Request, id uuid.UUID) (*visit.Visit, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		v, err := fn(r, id)
		if err != nil {
			handleVisitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVisitResponse(v))
	}
}

func exportCalendarHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		ev, err := svc.ExportToCalendar(r.Context(), id)
		if err != nil {
			handleVisitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

func listSlotsHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		from, ok := parseTimeParam(w, r, "from")
		if !ok {
			return
		}
		to, ok := parseTimeParam(w, r, "to")
		if !ok {
			return
		}
		if from.IsZero() || to.IsZero() {
			writeError(w, http.StatusBadRequest, "missing_range", "from and to query parameters are required")
			return
		}

		slots, err := svc.GetAvailableSlots(r.Context(), providerID, from, to, visit.Type(r.URL.Query().Get("type")))
		if err != nil {
			handleVisitError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			resp = append(resp, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addSlotHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		types := make([]visit.Type, 0, len(req.VisitTypes))
		for _, t := range req.VisitTypes {
			types = append(types, visit.Type(t))
		}

		slot, err := svc.AddAvailabilitySlot(r.Context(), &visit.AvailabilitySlot{
			ProviderID:  providerID,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			IsAvailable: true,
			VisitTypes:  types,
			MaxBookings: req.MaxBookings,
			Timezone:    req.Timezone,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func checkConflictsHandler(svc *visit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		start, ok := parseTimeParam(w, r, "start")
		if !ok {
			return
		}
		if start.IsZero() {
			writeError(w, http.StatusBadRequest, "missing_start", "start query parameter is required")
			return
		}
		duration, err := strconv.Atoi(r.URL.Query().Get("duration"))
		if err != nil || duration <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive integer of minutes")
			return
		}

		var excludeID *uuid.UUID
		if raw := r.URL.Query().Get("exclude_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "exclude_id must be a valid UUID")
				return
			}
			excludeID = &id
		}

		conflicts, err := svc.CheckConflicts(r.Context(), providerID, start, duration, excludeID)
		if err != nil {
			handleVisitError(w, err)
			return
		}
		if conflicts == nil {
			conflicts = []visit.Conflict{}
		}
		writeJSON(w, http.StatusOK, ConflictListResponse{Conflicts: conflicts})
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseTimeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be RFC 3339")
		return time.Time{}, false
	}
	return t, true
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
