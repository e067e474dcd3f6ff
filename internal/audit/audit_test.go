package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)

	tests := []struct {
		name string
		sub  Submission
	}{
		{
			name: "booked",
			sub: Submission{
				SessionID:     "sess-1",
				Outcome:       OutcomeBooked,
				ReferenceID:   "TFW-2025-000123",
				PatientType:   "new",
				Modality:      "virtual",
				ScheduledDate: "2025-03-10",
			},
		},
		{
			name: "invalid fields",
			sub: Submission{
				SessionID:     "sess-2",
				Outcome:       OutcomeInvalid,
				ErrorCode:     "VALIDATION_ERROR",
				InvalidFields: []string{"email", "phone"},
			},
		},
		{
			name: "rejected",
			sub:  Submission{SessionID: "sess-3", Outcome: OutcomeRejected},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO booking_submission_audit").
				WithArgs(
					sqlmock.AnyArg(),
					tt.sub.SessionID,
					string(tt.sub.Outcome),
					sqlmock.AnyArg(),
					sqlmock.AnyArg(),
					sqlmock.AnyArg(),
					sqlmock.AnyArg(),
					sqlmock.AnyArg(),
					sqlmock.AnyArg(),
					sqlmock.AnyArg(),
				).
				WillReturnResult(sqlmock.NewResult(1, 1))

			assert.NoError(t, store.Record(context.Background(), tt.sub))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Record_ExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO booking_submission_audit").
		WillReturnError(errors.New("connection reset"))

	err = NewStore(db).Record(context.Background(), Submission{SessionID: "sess-1", Outcome: OutcomeFailed})
	assert.ErrorIs(t, err, ErrExecQuery)
}

func TestStore_Recent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "outcome", "error_code", "reference_id",
		"invalid_fields", "patient_type", "modality", "scheduled_date", "created_at",
	}).
		AddRow("a1", "sess-2", "invalid", "VALIDATION_ERROR", nil, []byte("{email,phone}"), "new", "virtual", "2025-03-10", created).
		AddRow("a0", "sess-1", "booked", nil, "TFW-1", nil, "returning", "phone", "2025-03-09", created.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM booking_submission_audit WHERE outcome = \\$1 ORDER BY created_at DESC LIMIT 100").
		WithArgs("invalid").
		WillReturnRows(rows)

	subs, err := NewStore(db).Recent(context.Background(), Filter{Outcome: OutcomeInvalid})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, OutcomeInvalid, subs[0].Outcome)
	assert.Equal(t, []string{"email", "phone"}, subs[0].InvalidFields)
	assert.Empty(t, subs[0].ReferenceID)
	assert.Equal(t, "TFW-1", subs[1].ReferenceID)
	assert.Empty(t, subs[1].InvalidFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CountByOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT outcome, COUNT\\(\\*\\) FROM booking_submission_audit WHERE created_at >= \\$1 GROUP BY outcome").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"outcome", "count"}).
			AddRow("booked", 7).
			AddRow("slot_unavailable", 2))

	counts, err := NewStore(db).CountByOutcome(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 7, counts[OutcomeBooked])
	assert.Equal(t, 2, counts[OutcomeSlotUnavailable])
	assert.Zero(t, counts[OutcomeFailed])
}

func TestNopRecorder(t *testing.T) {
	assert.NoError(t, NopRecorder{}.Record(context.Background(), Submission{}))
}
