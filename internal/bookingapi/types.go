// Package bookingapi contains the client for the clinic's remote booking and
// availability API.
package bookingapi

// Date and time formats used on the wire.
const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

// Appointment statuses reported by the API.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

// PatientDetails are the contact details collected on the details step.
type PatientDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// BookingRequest is the body of a booking creation call.
type BookingRequest struct {
	PatientType    string         `json:"patient_type"`
	PatientDetails PatientDetails `json:"patient_details"`
	ScheduledDate  string         `json:"scheduled_date"`
	ScheduledTime  string         `json:"scheduled_time"`
	Modality       string         `json:"modality"`
	Timezone       string         `json:"timezone"`
	Reason         string         `json:"reason"`
	ServiceID      string         `json:"service_id,omitempty"`
}

// BookingConfirmation is returned when the API accepts a booking.
type BookingConfirmation struct {
	ReferenceID string `json:"reference_id"`
}

// Slot is a single bookable start time on a date.
type Slot struct {
	StartTime string `json:"start_time"`
}

// Appointment is the lookup/cancel view of an existing booking.
type Appointment struct {
	ReferenceID        string `json:"reference_id"`
	Status             string `json:"status"`
	PatientType        string `json:"patient_type,omitempty"`
	Modality           string `json:"modality,omitempty"`
	ScheduledDate      string `json:"scheduled_date"`
	ScheduledTime      string `json:"scheduled_time"`
	Timezone           string `json:"timezone,omitempty"`
	ServiceName        string `json:"service_name,omitempty"`
	PatientName        string `json:"patient_name,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

// CanBeCancelled returns true if the appointment is still upcoming.
func (a *Appointment) CanBeCancelled() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

type cancelRequest struct {
	Reason string `json:"reason"`
}
