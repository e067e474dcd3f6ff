package wizard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-booking/internal/audit"
	"github.com/wolfman30/clinic-booking/internal/bookingapi"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// DefaultSubmitTimeout bounds a single booking call.
const DefaultSubmitTimeout = 20 * time.Second

var wizardTracer = otel.Tracer("clinic.internal.wizard")

// BookingClient creates bookings on the remote API.
type BookingClient interface {
	CreateBooking(ctx context.Context, req bookingapi.BookingRequest) (*bookingapi.BookingConfirmation, error)
}

// AuditRecorder stores a non-PHI record of each submission attempt.
type AuditRecorder interface {
	Record(ctx context.Context, sub audit.Submission) error
}

// Attempt is a submission that passed the local checks and is marked in
// flight on its session.
type Attempt struct {
	SessionID string
	Request   bookingapi.BookingRequest
	StartedAt time.Time
}

// Result is the classified outcome of sending an attempt.
type Result struct {
	ReferenceID string
	Outcome     audit.Outcome
	Code        string
	Message     string
	Err         error
}

// Submitter runs the details step submission: local checks, the booking call
// and mapping of the response back onto the session.
//
// The three phases are exposed separately so callers that persist sessions
// can release their locks while the network call runs.
type Submitter struct {
	client  BookingClient
	audit   AuditRecorder
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	timeout time.Duration
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithAuditRecorder records every attempt.
func WithAuditRecorder(r AuditRecorder) SubmitterOption {
	return func(s *Submitter) { s.audit = r }
}

// WithSubmitMetrics counts outcomes.
func WithSubmitMetrics(m *metrics.BookingMetrics) SubmitterOption {
	return func(s *Submitter) { s.metrics = m }
}

// WithSubmitTimeout bounds the booking call.
func WithSubmitTimeout(d time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSubmitter constructs a Submitter.
func NewSubmitter(client BookingClient, logger *logging.Logger, opts ...SubmitterOption) *Submitter {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Submitter{
		client:  client,
		logger:  logger,
		timeout: DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare checks the session and marks it submitting. No network call is
// made when it returns an error.
func (s *Submitter) Prepare(ctx context.Context, store *Store) (*Attempt, error) {
	store.mu.Lock()
	sess := &store.session

	if sess.IsSubmitting {
		store.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if !ReadyToSubmit(*sess) {
		step := sess.Step
		store.mu.Unlock()
		return nil, fmt.Errorf("%w: step %d", ErrNotReady, step)
	}

	if sess.Honeypot != "" {
		store.setError(CodeSubmissionFailed, MessageGenericFailure)
		snapshot := sess.clone()
		store.mu.Unlock()

		s.logger.Warn("booking submission rejected", "session_id", snapshot.ID)
		s.finish(ctx, snapshot, audit.OutcomeRejected, CodeSubmissionFailed, "", nil)
		return nil, ErrSubmissionRejected
	}

	if fieldErrs := ValidateDetails(sess.PatientDetails); fieldErrs != nil {
		store.setError(CodeValidation, MessageFixFields)
		sess.FieldErrors = fieldErrs
		snapshot := sess.clone()
		store.mu.Unlock()

		s.finish(ctx, snapshot, audit.OutcomeInvalid, CodeValidation, "", fieldErrs.Fields())
		return nil, &ValidationError{Fields: fieldErrs}
	}

	store.setError("", "")
	sess.IsSubmitting = true
	attempt := &Attempt{
		SessionID: sess.ID,
		Request:   buildRequest(*sess),
		StartedAt: time.Now(),
	}
	store.mu.Unlock()
	return attempt, nil
}

func buildRequest(sess Session) bookingapi.BookingRequest {
	return bookingapi.BookingRequest{
		PatientType: string(sess.PatientType),
		PatientDetails: bookingapi.PatientDetails{
			Name:  sess.PatientDetails.Name,
			Email: sess.PatientDetails.Email,
			Phone: sess.PatientDetails.Phone,
		},
		ScheduledDate: sess.SelectedDate,
		ScheduledTime: sess.SelectedTime,
		Modality:      string(sess.Modality),
		Timezone:      sess.Timezone,
		Reason:        sess.Reason,
		ServiceID:     sess.ServiceID,
	}
}

// Send performs the booking call and classifies the response. It does not
// touch the session.
func (s *Submitter) Send(ctx context.Context, attempt *Attempt) Result {
	ctx, span := wizardTracer.Start(ctx, "wizard.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.modality", attempt.Request.Modality),
		attribute.String("booking.patient_type", attempt.Request.PatientType),
	)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conf, err := s.client.CreateBooking(ctx, attempt.Request)
	if err == nil {
		return Result{ReferenceID: conf.ReferenceID, Outcome: audit.OutcomeBooked}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	res := classify(err)
	s.logger.Warn("booking submission failed",
		"session_id", attempt.SessionID,
		"code", res.Code,
		"error", err,
	)
	return res
}

func classify(err error) Result {
	var apiErr *bookingapi.APIError
	switch {
	case bookingapi.HasCode(err, bookingapi.CodeSlotUnavailable):
		errors.As(err, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = MessageSlotUnavailable
		}
		return Result{Outcome: audit.OutcomeSlotUnavailable, Code: CodeSlotUnavailable, Message: msg, Err: ErrSlotUnavailable}
	case bookingapi.HasCode(err, bookingapi.CodeRateLimitExceeded):
		return Result{Outcome: audit.OutcomeRateLimited, Code: CodeRateLimited, Message: MessageRateLimited, Err: ErrRateLimited}
	case errors.As(err, &apiErr):
		msg := apiErr.Message
		if msg == "" {
			msg = MessageGenericFailure
		}
		code := apiErr.Code
		if code == "" {
			code = CodeSubmissionFailed
		}
		return Result{Outcome: audit.OutcomeFailed, Code: code, Message: msg, Err: fmt.Errorf("%w: %v", ErrSubmissionFailed, err)}
	default:
		return Result{Outcome: audit.OutcomeFailed, Code: CodeSubmissionFailed, Message: MessageGenericFailure, Err: fmt.Errorf("%w: %v", ErrSubmissionFailed, err)}
	}
}

// Apply writes res onto the session. A session that is no longer submitting
// (for example after a reset) is left alone.
func (s *Submitter) Apply(ctx context.Context, store *Store, attempt *Attempt, res Result) error {
	store.mu.Lock()
	sess := &store.session
	if !sess.IsSubmitting || sess.ID != attempt.SessionID {
		store.mu.Unlock()
		s.logger.Warn("discarding booking result for changed session",
			"session_id", attempt.SessionID,
			"outcome", string(res.Outcome),
		)
		s.record(ctx, audit.Submission{
			SessionID:     attempt.SessionID,
			Outcome:       res.Outcome,
			ErrorCode:     res.Code,
			ReferenceID:   res.ReferenceID,
			PatientType:   attempt.Request.PatientType,
			Modality:      attempt.Request.Modality,
			ScheduledDate: attempt.Request.ScheduledDate,
		})
		return ErrStaleSubmission
	}

	sess.IsSubmitting = false
	if res.Err == nil {
		sess.ReferenceID = res.ReferenceID
		if _, err := store.nextStep(); err != nil {
			store.mu.Unlock()
			return fmt.Errorf("advance after booking: %w", err)
		}
	} else {
		store.setError(res.Code, res.Message)
	}
	snapshot := sess.clone()
	store.mu.Unlock()

	if res.Err == nil {
		s.logger.Info("booking confirmed",
			"session_id", snapshot.ID,
			"reference_id", res.ReferenceID,
			"latency_ms", time.Since(attempt.StartedAt).Milliseconds(),
		)
	}
	s.finish(ctx, snapshot, res.Outcome, res.Code, res.ReferenceID, nil)
	return res.Err
}

func (s *Submitter) finish(ctx context.Context, sess Session, outcome audit.Outcome, code, ref string, invalid []string) {
	s.metrics.ObserveSubmission(string(outcome))
	s.record(ctx, audit.Submission{
		SessionID:     sess.ID,
		Outcome:       outcome,
		ErrorCode:     code,
		ReferenceID:   ref,
		InvalidFields: invalid,
		PatientType:   string(sess.PatientType),
		Modality:      string(sess.Modality),
		ScheduledDate: sess.SelectedDate,
	})
}

func (s *Submitter) record(ctx context.Context, sub audit.Submission) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), sub); err != nil {
		s.logger.Error("failed to record submission audit", "session_id", sub.SessionID, "error", err)
	}
}
