package wizard

import (
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/bookingapi"
)

// Details field names, as reported in FieldErrors.
const (
	FieldName  = "name"
	FieldEmail = "email"
	FieldPhone = "phone"
)

const minPhoneDigits = 10

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9+()\-.\s]+$`)
)

// Rules tune the step gates.
type Rules struct {
	// ServiceOptional lets step 1 pass without a service selection.
	ServiceOptional bool
}

// CanProceedFrom reports whether s may advance past its current step.
// It never performs I/O.
func CanProceedFrom(s Session, rules Rules) bool {
	switch s.Step {
	case StepService:
		return rules.ServiceOptional || strings.TrimSpace(s.ServiceID) != ""
	case StepIdentity:
		return s.PatientType != ""
	case StepModality:
		if s.PatientType == PatientDiscovery {
			return s.Modality == ModalityPhone
		}
		return s.Modality != ""
	case StepSchedule:
		return s.SelectedDate != "" && s.SelectedTime != ""
	case StepDetails:
		// Only a confirmed booking moves past details.
		return s.ReferenceID != ""
	default:
		return false
	}
}

// ReadyToSubmit reports whether the selections required by the booking
// payload are present.
func ReadyToSubmit(s Session) bool {
	return s.Step == StepDetails &&
		s.PatientType != "" &&
		s.Modality != "" &&
		s.SelectedDate != "" &&
		s.SelectedTime != ""
}

// ValidateDetails checks the contact fields. It returns nil when all pass.
func ValidateDetails(d PatientDetails) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(d.Name) == "" {
		errs[FieldName] = "Please enter your name."
	}
	if !ValidEmail(d.Email) {
		errs[FieldEmail] = "Please enter a valid email address."
	}
	if !validPhone(d.Phone) {
		errs[FieldPhone] = "Please enter a valid phone number with at least 10 digits."
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidEmail reports whether email looks like a deliverable address.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

func validPhone(raw string) bool {
	phone := strings.TrimSpace(raw)
	if phone == "" || !phonePattern.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits
}

func validDate(date string) bool {
	_, err := time.Parse(bookingapi.DateFormat, date)
	return err == nil
}

func validTime(clock string) bool {
	if len(clock) != len(bookingapi.TimeFormat) {
		return false
	}
	_, err := time.Parse(bookingapi.TimeFormat, clock)
	return err == nil
}
