package renewal

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountCols = []string{
	"id", "user_id", "name", "consultation_fee_cents", "trial_expires_at", "subscription_expires_at",
	"is_paused", "is_manually_deactivated", "profile_complete", "schedule",
	"renewal_request", "commission_payment_request", "created_at", "updated_at",
}

func lockedDoctor(subExpiry *time.Time, paused bool, renewal, payment []byte) *pgxmock.Rows {
	return pgxmock.NewRows(accountCols).AddRow(
		"doc-1", "user-1", "Dr. Mona", int64(20000), (*time.Time)(nil), subExpiry,
		paused, false, true, []byte(`{}`), renewal, payment, now, now,
	)
}

func TestPostgresApproveRenewalSingleTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expiry := now.AddDate(0, 0, 10)
	newExpiry := expiry.AddDate(0, 0, 30)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("doc-1").WillReturnRows(lockedDoctor(
		&expiry, true,
		[]byte(`{"status":"pending","phone":"+201","receipt_ref":"r-1","submitted_at":"2026-04-06T10:00:00Z"}`),
		[]byte(nil),
	))
	mock.ExpectQuery("INSERT INTO subscription_history").
		WithArgs(pgxmock.AnyArg(), "doc-1", expiry, newExpiry, "+201", "r-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "doctor:doc-1", "billing.renewal.approved.v1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("UPDATE doctors").
		WithArgs("doc-1", "user-1", "Dr. Mona", int64(20000), pgxmock.AnyArg(), pgxmock.AnyArg(),
			false, false, true, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	w := NewWorkflow(NewPostgresRepository(mock), nil, nil).WithClock(func() time.Time { return now })
	res, err := w.ApproveRenewal(context.Background(), "doc-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, res.Account.SubscriptionExpiresAt.Equal(newExpiry))
	assert.False(t, res.Account.IsPaused)
	assert.True(t, res.Record.CreatedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApproveCommissionPayment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("doc-1").WillReturnRows(lockedDoctor(
		nil, false, []byte(nil),
		[]byte(`{"status":"pending","phone":"+201","receipt_ref":"r-2","amount":"45","submitted_at":"2026-04-06T10:00:00Z"}`),
	))
	mock.ExpectExec("UPDATE appointments").WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), "doctor:doc-1", "billing.commission.settled.v1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("UPDATE doctors").
		WithArgs("doc-1", "user-1", "Dr. Mona", int64(20000), pgxmock.AnyArg(), pgxmock.AnyArg(),
			false, false, true, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	w := NewWorkflow(NewPostgresRepository(mock), nil, nil).WithClock(func() time.Time { return now })
	res, err := w.ApproveCommissionPayment(context.Background(), "doc-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Settled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApproveWithoutPendingRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("doc-1").WillReturnRows(lockedDoctor(
		nil, false,
		[]byte(`{"status":"approved","phone":"+201","receipt_ref":"r-1","submitted_at":"2026-04-01T10:00:00Z"}`),
		[]byte(nil),
	))
	mock.ExpectRollback()

	w := NewWorkflow(NewPostgresRepository(mock), nil, nil).WithClock(func() time.Time { return now })
	_, err = w.ApproveRenewal(context.Background(), "doc-1", "admin-1")
	assert.ErrorIs(t, err, ErrRequestNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApproveRollsBackWhenOutboxFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("doc-1").WillReturnRows(lockedDoctor(
		nil, false, []byte(nil),
		[]byte(`{"status":"pending","phone":"+201","receipt_ref":"r-2","amount":"45","submitted_at":"2026-04-06T10:00:00Z"}`),
	))
	mock.ExpectExec("UPDATE appointments").WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("INSERT INTO outbox").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	w := NewWorkflow(NewPostgresRepository(mock), nil, nil).WithClock(func() time.Time { return now })
	_, err = w.ApproveCommissionPayment(context.Background(), "doc-1", "admin-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMissingDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("doc-9").WillReturnRows(pgxmock.NewRows(accountCols))
	mock.ExpectRollback()

	w := NewWorkflow(NewPostgresRepository(mock), nil, nil)
	_, err = w.SetPaused(context.Background(), "doc-9", true, "admin-1")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
