package visit

import (
	"fmt"

	"github.com/google/uuid"
)

var typeTitles = map[Type]string{
	TypeRemote: "Midwife video visit",
	TypeClinic: "Midwife clinic visit",
	TypeHome:   "Midwife home visit",
}

// BuildCalendarEvent flattens a visit into the shape consumed by calendar
// file generators.
func BuildCalendarEvent(v *Visit) *CalendarEvent {
	title, ok := typeTitles[v.Type]
	if !ok {
		title = "Midwife visit"
	}

	ev := &CalendarEvent{
		Title:       title,
		Start:       v.ScheduledAt,
		End:         v.End(),
		Description: v.Notes,
		Attendees:   []uuid.UUID{v.PatientID, v.ProviderID},
	}
	if v.Location != nil {
		switch {
		case v.Location.Address != "" && v.Location.Room != "":
			ev.Location = fmt.Sprintf("%s, %s", v.Location.Address, v.Location.Room)
		case v.Location.Address != "":
			ev.Location = v.Location.Address
		}
		ev.JoinURL = v.Location.MeetingLink
	}
	return ev
}
