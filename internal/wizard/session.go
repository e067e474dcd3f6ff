// Package wizard implements the booking wizard: the per-visitor session
// state, the step gates, availability selection and booking submission.
package wizard

import (
	"fmt"
	"strings"
)

// Step is a wizard position, 1 through 6.
type Step int

const (
	StepService Step = iota + 1
	StepIdentity
	StepModality
	StepSchedule
	StepDetails
	StepSuccess
)

// FirstStep and LastStep bound the wizard.
const (
	FirstStep = StepService
	LastStep  = StepSuccess
)

var stepNames = map[Step]string{
	StepService:  "Service",
	StepIdentity: "Identity",
	StepModality: "Modality",
	StepSchedule: "Schedule",
	StepDetails:  "Details",
	StepSuccess:  "Success",
}

// Name returns the display name of the step.
func (s Step) Name() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Step %d", int(s))
}

// Valid reports whether s is within the wizard bounds.
func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

// PatientType identifies who is booking.
type PatientType string

const (
	PatientNew       PatientType = "new"
	PatientReturning PatientType = "returning"
	PatientDiscovery PatientType = "discovery"
)

// ParsePatientType normalizes and validates a patient type.
func ParsePatientType(raw string) (PatientType, error) {
	switch pt := PatientType(strings.ToLower(strings.TrimSpace(raw))); pt {
	case PatientNew, PatientReturning, PatientDiscovery:
		return pt, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPatientType, raw)
	}
}

// Modality is the consultation medium.
type Modality string

const (
	ModalityVirtual  Modality = "virtual"
	ModalityInPerson Modality = "in_person"
	ModalityPhone    Modality = "phone"
)

// ParseModality normalizes and validates a modality. "in-person" is accepted
// as an alias of in_person.
func ParseModality(raw string) (Modality, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch m := Modality(normalized); m {
	case ModalityVirtual, ModalityInPerson, ModalityPhone:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidModality, raw)
	}
}

// SlotPool returns the availability pool a modality books against. Phone
// consultations share the virtual pool.
func (m Modality) SlotPool() Modality {
	if m == ModalityPhone {
		return ModalityVirtual
	}
	return m
}

// ModalitiesFor lists the modalities offered to a patient type.
func ModalitiesFor(pt PatientType) []Modality {
	if pt == PatientDiscovery {
		return []Modality{ModalityPhone}
	}
	return []Modality{ModalityVirtual, ModalityInPerson, ModalityPhone}
}

// PatientDetails are the contact fields collected on the details step.
type PatientDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// DetailsPatch is a field-level update; nil fields are left untouched.
type DetailsPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// AvailabilityCache holds the last availability fetched for the session.
// Dates are keyed by pool, slots by date and pool.
type AvailabilityCache struct {
	DatesPool Modality `json:"dates_pool,omitempty"`
	Dates     []string `json:"dates,omitempty"`
	SlotsDate string   `json:"slots_date,omitempty"`
	SlotsPool Modality `json:"slots_pool,omitempty"`
	Slots     []string `json:"slots,omitempty"`
}

// HasDates reports whether dates were fetched for pool.
func (c AvailabilityCache) HasDates(pool Modality) bool {
	return c.DatesPool != "" && c.DatesPool == pool
}

// HasSlots reports whether slots were fetched for date and pool.
func (c AvailabilityCache) HasSlots(date string, pool Modality) bool {
	return c.SlotsDate != "" && c.SlotsDate == date && c.SlotsPool == pool
}

// Session is the state of one wizard traversal.
type Session struct {
	ID             string            `json:"id"`
	Step           Step              `json:"step"`
	PatientType    PatientType       `json:"patient_type,omitempty"`
	Modality       Modality          `json:"modality,omitempty"`
	ServiceID      string            `json:"service_id,omitempty"`
	ServiceName    string            `json:"service_name,omitempty"`
	SelectedDate   string            `json:"selected_date,omitempty"`
	SelectedTime   string            `json:"selected_time,omitempty"`
	Timezone       string            `json:"timezone"`
	PatientDetails PatientDetails    `json:"patient_details"`
	Reason         string            `json:"reason,omitempty"`
	Honeypot       string            `json:"honeypot,omitempty"`
	IsSubmitting   bool              `json:"is_submitting"`
	Error          string            `json:"error,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
	FieldErrors    FieldErrors       `json:"field_errors,omitempty"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	Availability   AvailabilityCache `json:"availability"`
}

func (s Session) clone() Session {
	out := s
	if s.FieldErrors != nil {
		out.FieldErrors = make(FieldErrors, len(s.FieldErrors))
		for k, v := range s.FieldErrors {
			out.FieldErrors[k] = v
		}
	}
	out.Availability.Dates = append([]string(nil), s.Availability.Dates...)
	out.Availability.Slots = append([]string(nil), s.Availability.Slots...)
	return out
}

// Transition is a step change. Direction is derived, never stored.
type Transition struct {
	From Step `json:"from"`
	To   Step `json:"to"`
}

// Direction returns 1 for forward, -1 for backward and 0 for no movement.
func (t Transition) Direction() int {
	switch {
	case t.To > t.From:
		return 1
	case t.To < t.From:
		return -1
	default:
		return 0
	}
}
