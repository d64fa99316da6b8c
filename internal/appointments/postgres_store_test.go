package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptColumns = []string{
	"id", "doctor_id", "appointment_date", "appointment_time", "status", "source",
	"patient_user_id", "guest_name", "guest_phone",
	"commission_cents", "commission_paid", "created_at", "updated_at",
}

func strPtr(v string) *string { return &v }

func TestPostgresStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now().UTC()
	appt := &Appointment{
		DoctorID:   "doc-1",
		Date:       day.Add(9 * time.Hour),
		Time:       "09:00",
		Status:     StatusPending,
		Source:     SourceWebsite,
		Patient:    PatientRef{Guest: &Guest{Name: "Mona", Phone: "+201000"}},
		Commission: Commission{Amount: decimal.RequireFromString("22.5")},
	}

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "doc-1", day, "09:00", "pending", "website",
			(*string)(nil), strPtr("Mona"), strPtr("+201000"), int64(2250), false).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, store.Insert(context.Background(), appt))
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, day, appt.Date)
	assert.Equal(t, now, appt.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInsertTranslatesUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: uniqueSlotIndex})

	err = store.Insert(context.Background(), &Appointment{
		DoctorID: "doc-1",
		Date:     day,
		Time:     "09:00",
		Status:   StatusPending,
		Source:   SourceDirect,
		Patient:  PatientRef{UserID: "user-1"},
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery("SELECT 1 FROM appointments").
		WithArgs("doc-1", day, "09:00").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	ok, err := store.Exists(context.Background(), "doc-1", day.Add(20*time.Hour), "09:00")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("SELECT 1 FROM appointments").
		WithArgs("doc-1", day, "09:30").
		WillReturnError(pgx.ErrNoRows)
	ok, err = store.Exists(context.Background(), "doc-1", day, "09:30")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now().UTC()
	unpaid := false
	rows := pgxmock.NewRows(apptColumns).
		AddRow("a-1", "doc-1", day, "09:00", "attended", "website",
			strPtr("user-1"), (*string)(nil), (*string)(nil), int64(3000), false, now, now).
		AddRow("a-2", "doc-1", day, "10:00", "attended", "website",
			(*string)(nil), strPtr("Guest"), strPtr("+1555"), int64(3000), false, now, now)

	mock.ExpectQuery("SELECT id, doctor_id").
		WithArgs("doc-1", []string{"attended"}, "website", day, day.AddDate(0, 1, 0), false).
		WillReturnRows(rows)

	got, err := store.Find(context.Background(), Filter{
		DoctorID:       "doc-1",
		Statuses:       []Status{StatusAttended},
		Source:         SourceWebsite,
		DateFrom:       day,
		DateTo:         day.AddDate(0, 1, 0),
		CommissionPaid: &unpaid,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "user-1", got[0].Patient.UserID)
	assert.Nil(t, got[0].Patient.Guest)
	require.NotNil(t, got[1].Patient.Guest)
	assert.Equal(t, "+1555", got[1].Patient.Guest.Phone)
	assert.True(t, got[1].Commission.Amount.Equal(decimal.NewFromInt(30)))
	assert.True(t, got[0].CommissionBearing())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs("a-1", "doc-1", "attended").
		WillReturnRows(pgxmock.NewRows(apptColumns).AddRow("a-1", "doc-1", day, "09:00", "attended", "website",
			strPtr("user-1"), (*string)(nil), (*string)(nil), int64(3000), false, now, now))

	appt, err := store.UpdateStatus(context.Background(), "doc-1", "a-1", StatusAttended)
	require.NoError(t, err)
	assert.Equal(t, StatusAttended, appt.Status)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs("a-2", "doc-1", "confirmed").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status FROM appointments").
		WithArgs("a-2", "doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("cancelled"))
	_, err = store.UpdateStatus(context.Background(), "doc-1", "a-2", StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs("a-3", "doc-1", "confirmed").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status FROM appointments").
		WithArgs("a-3", "doc-1").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.UpdateStatus(context.Background(), "doc-1", "a-3", StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSettleUnpaidCommissions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectExec("UPDATE appointments").
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.SettleUnpaidCommissions(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
