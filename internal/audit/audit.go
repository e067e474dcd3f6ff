// Package audit keeps a non-PHI trail of booking submission attempts.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Outcome classifies a submission attempt.
type Outcome string

const (
	OutcomeBooked          Outcome = "booked"
	OutcomeInvalid         Outcome = "invalid"
	OutcomeRejected        Outcome = "rejected"
	OutcomeSlotUnavailable Outcome = "slot_unavailable"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeFailed          Outcome = "failed"
)

const table = "booking_submission_audit"

var (
	ErrBuildQuery = errors.New("audit: build query")
	ErrExecQuery  = errors.New("audit: exec query")
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Submission is one audit row. It never carries contact details.
type Submission struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Outcome       Outcome   `json:"outcome"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	InvalidFields []string  `json:"invalid_fields,omitempty"`
	PatientType   string    `json:"patient_type,omitempty"`
	Modality      string    `json:"modality,omitempty"`
	ScheduledDate string    `json:"scheduled_date,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Filter narrows Recent.
type Filter struct {
	SessionID string
	Outcome   Outcome
	Since     time.Time
	Limit     uint64
}

// Store persists submissions in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts sub.
func (s *Store) Record(ctx context.Context, sub Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	query, args, err := psql.Insert(table).
		Columns(
			"id",
			"session_id",
			"outcome",
			"error_code",
			"reference_id",
			"invalid_fields",
			"patient_type",
			"modality",
			"scheduled_date",
			"created_at",
		).
		Values(
			sub.ID,
			sub.SessionID,
			string(sub.Outcome),
			nullString(sub.ErrorCode),
			nullString(sub.ReferenceID),
			pq.Array(sub.InvalidFields),
			nullString(sub.PatientType),
			nullString(sub.Modality),
			nullString(sub.ScheduledDate),
			sub.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: record: %v", ErrBuildQuery, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: record: %v", ErrExecQuery, err)
	}
	return nil
}

// Recent lists submissions newest first.
func (s *Store) Recent(ctx context.Context, filter Filter) ([]Submission, error) {
	builder := psql.Select(
		"id",
		"session_id",
		"outcome",
		"error_code",
		"reference_id",
		"invalid_fields",
		"patient_type",
		"modality",
		"scheduled_date",
		"created_at",
	).
		From(table).
		OrderBy("created_at DESC")

	if filter.SessionID != "" {
		builder = builder.Where(squirrel.Eq{"session_id": filter.SessionID})
	}
	if filter.Outcome != "" {
		builder = builder.Where(squirrel.Eq{"outcome": string(filter.Outcome)})
	}
	if !filter.Since.IsZero() {
		builder = builder.Where(squirrel.GtOrEq{"created_at": filter.Since})
	}
	limit := filter.Limit
	if limit == 0 || limit > 500 {
		limit = 100
	}
	builder = builder.Limit(limit)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: recent: %v", ErrBuildQuery, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: recent: %v", ErrExecQuery, err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var (
			sub                                         Submission
			outcome                                     string
			errorCode, refID, patientType, modality, sd sql.NullString
			fields                                      []string
		)
		if err := rows.Scan(
			&sub.ID,
			&sub.SessionID,
			&outcome,
			&errorCode,
			&refID,
			pq.Array(&fields),
			&patientType,
			&modality,
			&sd,
			&sub.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: recent scan: %v", ErrExecQuery, err)
		}
		sub.Outcome = Outcome(outcome)
		sub.ErrorCode = errorCode.String
		sub.ReferenceID = refID.String
		sub.InvalidFields = fields
		sub.PatientType = patientType.String
		sub.Modality = modality.String
		sub.ScheduledDate = sd.String
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent rows: %v", ErrExecQuery, err)
	}
	return out, nil
}

// CountByOutcome tallies submissions since the given time.
func (s *Store) CountByOutcome(ctx context.Context, since time.Time) (map[Outcome]int, error) {
	query, args, err := psql.Select("outcome", "COUNT(*)").
		From(table).
		Where(squirrel.GtOrEq{"created_at": since}).
		GroupBy("outcome").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrBuildQuery, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrExecQuery, err)
	}
	defer rows.Close()

	out := map[Outcome]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("%w: count scan: %v", ErrExecQuery, err)
		}
		out[Outcome(outcome)] = n
	}
	return out, rows.Err()
}

// NopRecorder discards submissions. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Submission) error { return nil }

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
