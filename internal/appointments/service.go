// Package appointments lets a patient look up and cancel an existing booking
// with its reference id and the email used to book it.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/clinic-booking/internal/bookingapi"
	"github.com/wolfman30/clinic-booking/internal/wizard"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinic.internal.appointments")

const maxReasonLength = 500

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{2,63}$`)

var (
	ErrInvalidReference = errors.New("appointments: invalid reference id")
	ErrInvalidEmail     = errors.New("appointments: invalid email")
	ErrReasonTooLong    = errors.New("appointments: cancellation reason too long")
	ErrNotFound         = errors.New("appointments: not found")
	ErrNotCancellable   = errors.New("appointments: appointment can no longer be cancelled")
	ErrTooManyLookups   = errors.New("appointments: too many lookups")
)

// Client is the part of the booking API used here.
type Client interface {
	LookupAppointment(ctx context.Context, referenceID, email string) (*bookingapi.Appointment, error)
	CancelAppointment(ctx context.Context, referenceID, reason string) (*bookingapi.Appointment, error)
}

// Service implements lookup and cancellation.
type Service struct {
	client   Client
	velocity *VelocityChecker
	logger   *logging.Logger
}

// NewService creates a Service. velocity may be nil to disable limiting.
func NewService(client Client, velocity *VelocityChecker, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{client: client, velocity: velocity, logger: logger}
}

// Lookup returns the appointment for referenceID when email matches the one
// it was booked with. clientKey identifies the caller for rate limiting.
func (s *Service) Lookup(ctx context.Context, clientKey, referenceID, email string) (*bookingapi.Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.lookup")
	defer span.End()

	referenceID, email, err := normalize(referenceID, email)
	if err != nil {
		return nil, err
	}

	res, err := s.velocity.CheckLookup(ctx, clientKey)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return nil, ErrTooManyLookups
	}

	appt, err := s.client.LookupAppointment(ctx, referenceID, email)
	if err != nil {
		span.RecordError(err)
		if bookingapi.HasCode(err, bookingapi.CodeNotFound) {
			s.logger.Info("appointment lookup miss",
				"reference_id", referenceID,
				"email", logging.MaskEmail(email),
			)
			return nil, ErrNotFound
		}
		return nil, err
	}
	return appt, nil
}

// Cancel cancels an appointment. The reference id and email are looked up
// first, so only the patient who booked can cancel.
func (s *Service) Cancel(ctx context.Context, clientKey, referenceID, email, reason string) (*bookingapi.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, ErrReasonTooLong
	}

	appt, err := s.Lookup(ctx, clientKey, referenceID, email)
	if err != nil {
		return nil, err
	}
	if !appt.CanBeCancelled() {
		return nil, fmt.Errorf("%w: status %s", ErrNotCancellable, appt.Status)
	}

	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()

	cancelled, err := s.client.CancelAppointment(ctx, appt.ReferenceID, reason)
	if err != nil {
		span.RecordError(err)
		if bookingapi.HasCode(err, bookingapi.CodeNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.logger.Info("appointment cancelled", "reference_id", appt.ReferenceID)
	return cancelled, nil
}

func normalize(referenceID, email string) (string, string, error) {
	referenceID = strings.TrimSpace(referenceID)
	email = strings.ToLower(strings.TrimSpace(email))
	if !referencePattern.MatchString(referenceID) {
		return "", "", ErrInvalidReference
	}
	if !wizard.ValidEmail(email) {
		return "", "", ErrInvalidEmail
	}
	return referenceID, email, nil
}
