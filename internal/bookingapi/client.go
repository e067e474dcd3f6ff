package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

var bookingAPITracer = otel.Tracer("clinic.internal.bookingapi")

// Client wraps the REST calls used by the booking wizard and the
// appointment lookup flow.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
	metrics    *metrics.BookingMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends the key as a bearer token on every call.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records per-call latency.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a booking API client.
func NewClient(baseURL string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AvailableDates lists the dates between start and end (inclusive) that
// have at least one open slot for the modality.
func (c *Client) AvailableDates(ctx context.Context, start, end time.Time, modality string) ([]string, error) {
	q := url.Values{}
	q.Set("start", start.Format(DateFormat))
	q.Set("end", end.Format(DateFormat))
	if modality != "" {
		q.Set("modality", modality)
	}

	var out struct {
		Dates []string `json:"dates"`
	}
	if err := c.doJSON(ctx, "available_dates", http.MethodGet, "/api/availability/dates?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("get available dates: %w", err)
	}
	return out.Dates, nil
}

// AvailableSlots returns the open slots per date for the modality.
func (c *Client) AvailableSlots(ctx context.Context, start, end time.Time, modality string) (map[string][]Slot, error) {
	q := url.Values{}
	q.Set("start", start.Format(DateFormat))
	q.Set("end", end.Format(DateFormat))
	if modality != "" {
		q.Set("modality", modality)
	}

	var out struct {
		Slots map[string][]Slot `json:"slots"`
	}
	if err := c.doJSON(ctx, "available_slots", http.MethodGet, "/api/availability/slots?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("get available slots: %w", err)
	}
	if out.Slots == nil {
		out.Slots = map[string][]Slot{}
	}
	return out.Slots, nil
}

// CreateBooking submits a booking and returns the server-issued reference id.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*BookingConfirmation, error) {
	var out BookingConfirmation
	if err := c.doJSON(ctx, "create_booking", http.MethodPost, "/api/appointments", req, &out); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	if strings.TrimSpace(out.ReferenceID) == "" {
		return nil, fmt.Errorf("create booking: %w: missing reference_id", ErrInvalidResponse)
	}
	return &out, nil
}

// LookupAppointment fetches an appointment by reference id. The email must
// match the one used when booking.
func (c *Client) LookupAppointment(ctx context.Context, referenceID, email string) (*Appointment, error) {
	q := url.Values{}
	q.Set("email", email)
	path := fmt.Sprintf("/api/appointments/%s?%s", url.PathEscape(referenceID), q.Encode())

	var out Appointment
	if err := c.doJSON(ctx, "lookup_appointment", http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("lookup appointment: %w", err)
	}
	return &out, nil
}

// CancelAppointment cancels an appointment and returns its updated state.
func (c *Client) CancelAppointment(ctx context.Context, referenceID, reason string) (*Appointment, error) {
	path := fmt.Sprintf("/api/appointments/%s/cancel", url.PathEscape(referenceID))

	var out Appointment
	if err := c.doJSON(ctx, "cancel_appointment", http.MethodPost, path, cancelRequest{Reason: reason}, &out); err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return &out, nil
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, body interface{}, out interface{}) (err error) {
	// Query strings may carry an email address; keep them out of spans and logs.
	logPath := path
	if i := strings.IndexByte(logPath, '?'); i >= 0 {
		logPath = logPath[:i]
	}

	ctx, span := bookingAPITracer.Start(ctx, "bookingapi."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", logPath),
	)

	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.ObserveAPICall(operation, status, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	var env envelope
	envErr := error(nil)
	if len(bytes.TrimSpace(respBody)) > 0 {
		envErr = json.Unmarshal(respBody, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if envErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if apiErr.Code == "" {
			apiErr.Code = codeForStatus(resp.StatusCode)
		}
		c.logger.Warn("booking API non-2xx response",
			"operation", operation,
			"status", resp.StatusCode,
			"path", logPath,
			"code", apiErr.Code,
		)
		return apiErr
	}

	if envErr != nil {
		return fmt.Errorf("%w: decode response: %v", ErrInvalidResponse, envErr)
	}
	if env.Error != nil || (env.Success != nil && !*env.Success) {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if apiErr.Code == "" {
			apiErr.Code = "UNKNOWN"
		}
		c.logger.Warn("booking API reported failure", "operation", operation, "path", logPath, "code", apiErr.Code)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	payload := json.RawMessage(respBody)
	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		payload = env.Data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrInvalidResponse, err)
	}
	return nil
}

// IsTransient reports whether err is a transport failure or a 5xx reply,
// i.e. something a user can simply retry.
func IsTransient(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}
