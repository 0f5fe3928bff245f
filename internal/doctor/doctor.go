// Package doctor manages doctor profiles and weekly availability. Profiles
// are staff-edited JSON documents in Redis; every scheduling component reads
// them through the Store.
package doctor

import (
	"strings"
	"time"

	"github.com/opdesk/clinic-queue/internal/schedule"
)

// Doctor is a clinician profile with the weekly availability the slot
// calendar is built from.
type Doctor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// AverageConsultMinutes is minutes per patient; zero means the clinic
	// default applies.
	AverageConsultMinutes int `json:"average_consult_minutes,omitempty"`
	// Availability maps lowercase day names ("monday") to ordered sessions.
	// Session order is stable: staff append or edit in place, never reorder.
	Availability map[string][]schedule.Session `json:"availability,omitempty"`
	// ConsultationStatus is "in" once the doctor has started seeing patients.
	ConsultationStatus schedule.ConsultationStatus `json:"consultation_status,omitempty"`
}

// ConsultMinutes returns the effective consultation duration.
func (d *Doctor) ConsultMinutes(clinicDefault int) int {
	if d.AverageConsultMinutes > 0 {
		return d.AverageConsultMinutes
	}
	if clinicDefault > 0 {
		return clinicDefault
	}
	return schedule.DefaultConsultMinutes
}

// SessionsOn returns the ordered sessions for a weekday, nil when the doctor
// is not available that day.
func (d *Doctor) SessionsOn(day time.Weekday) []schedule.Session {
	if d.Availability == nil {
		return nil
	}
	return d.Availability[strings.ToLower(day.String())]
}

func toConsultationStatus(s string) schedule.ConsultationStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(schedule.ConsultationIn)) {
		return schedule.ConsultationIn
	}
	return schedule.ConsultationOut
}
