package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hotelbook/internal/models"

	"github.com/jmoiron/sqlx"
)

const paymentColumns = `id, booking_id, amount, payment_type, status, payment_time, created_at`

func (db *DB) CreatePayment(ctx context.Context, payment *models.Payment) error {
	now := time.Now().UTC()
	err := db.QueryRowxContext(ctx, db.Rebind(`INSERT INTO payments
			(booking_id, amount, payment_type, status, payment_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		payment.BookingID, payment.Amount, payment.PaymentType, payment.Status, payment.PaymentTime, now,
	).Scan(&payment.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("booking %d: %w", payment.BookingID, ErrDuplicatePayment)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	payment.CreatedAt = now
	return nil
}

func (db *DB) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := db.GetContext(ctx, &payment, db.Rebind(`SELECT `+paymentColumns+` FROM payments WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%d: %w", id, ErrPaymentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (db *DB) GetPaymentByBooking(ctx context.Context, bookingID int64) (*models.Payment, error) {
	var payment models.Payment
	err := db.GetContext(ctx, &payment, db.Rebind(`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`), bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", bookingID, ErrPaymentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// MarkPaymentPaid flips the payment to paid and its booking to confirmed in
// one transaction. Both updates are conditional on the pending status:
// a duplicate delivery gets ErrPaymentAlreadyPaid, a booking that left
// pending in the meantime gets ErrConcurrentModification and nothing is
// written.
func (db *DB) MarkPaymentPaid(ctx context.Context, paymentID, bookingID int64, paidAt time.Time) error {
	paidAt = paidAt.UTC()
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE payments SET status = ?, payment_time = ?
			WHERE id = ? AND status = ?`),
			models.PaymentPaid, paidAt, paymentID, models.PaymentPending)
		if err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		if rows, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		} else if rows == 0 {
			return ErrPaymentAlreadyPaid
		}

		result, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE bookings SET status = ?, expires_at = NULL, updated_at = ?
			WHERE id = ? AND status = ?`),
			models.BookingConfirmed, paidAt, bookingID, models.BookingPending)
		if err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}
		if rows, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		} else if rows == 0 {
			return ErrConcurrentModification
		}
		return nil
	})
}
