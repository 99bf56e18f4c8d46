package models

import "time"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// PaymentTypeFakeGateway marks payments settled through the test webhook.
const PaymentTypeFakeGateway = "fake_gateway"

type Payment struct {
	ID          int64         `json:"id" db:"id"`
	BookingID   int64         `json:"booking_id" db:"booking_id"`
	Amount      int64         `json:"amount" db:"amount"`
	PaymentType string        `json:"payment_type" db:"payment_type"`
	Status      PaymentStatus `json:"status" db:"status"`
	PaymentTime *time.Time    `json:"payment_time" db:"payment_time"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

func (p *Payment) IsPaid() bool {
	return p.Status == PaymentPaid
}
