package mail

import (
	"bytes"
	"context"
	"testing"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingConfirmation(t *testing.T) {
	b := &models.Booking{
		ID:           12,
		CheckIn:      models.MustParseDate("2025-06-01"),
		CheckOut:     models.MustParseDate("2025-06-03"),
		NumGuests:    2,
		TotalAmount:  400,
		ContactEmail: "guest@example.com",
		Rooms:        []models.BookedRoom{{RoomID: 7}, {RoomID: 8}},
	}

	msg, err := BookingConfirmation(b)
	require.NoError(t, err)
	assert.Equal(t, "guest@example.com", msg.To)
	assert.Equal(t, "Booking #12 confirmed", msg.Subject)
	assert.Contains(t, msg.Body, "Check-in:  2025-06-01")
	assert.Contains(t, msg.Body, "Nights:    2")
	assert.Contains(t, msg.Body, "Rooms:     7, 8")
	assert.Contains(t, msg.Body, "Total:     400")
}

func TestSMTPSender_Compose(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{Host: "smtp.example.com", From: "hotel@example.com"})

	m, err := s.compose(Message{To: "guest@example.com", Subject: "Hi", Body: "line1\nline2"})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "From: <hotel@example.com>")
	assert.Contains(t, raw, "To: <guest@example.com>")
	assert.Contains(t, raw, "Subject: Hi")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "line1")
	assert.Contains(t, raw, "line2")

	_, err = s.compose(Message{To: "not an address"})
	assert.Error(t, err)

	bad := NewSMTPSender(config.MailConfig{Host: "smtp.example.com", From: "nobody"})
	_, err = bad.compose(Message{To: "guest@example.com"})
	assert.Error(t, err)
}

func TestSMTPSender_Client(t *testing.T) {
	for _, cfg := range []config.MailConfig{
		{Host: "smtp.example.com", Port: 465, UseSSL: true},
		{Host: "smtp.example.com", Port: 587, StartTLS: true, Username: "u", Password: "p"},
		{Host: "smtp.example.com"},
	} {
		c, err := NewSMTPSender(cfg).client()
		require.NoError(t, err)
		assert.NotNil(t, c)
	}

	_, err := NewSMTPSender(config.MailConfig{Host: "smtp.example.com", Port: 70000}).client()
	assert.Error(t, err)
}

func TestSMTPSender_DialFailure(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{Host: "127.0.0.1", Port: 1, From: "hotel@example.com"})
	s.timeout = time.Second

	err := s.Send(context.Background(), Message{To: "guest@example.com", Subject: "x", Body: "y"})
	assert.Error(t, err)
}

func TestNewSender(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	s := NewSender(config.MailConfig{}, &logger)
	require.IsType(t, &LogSender{}, s)
	require.NoError(t, s.Send(context.Background(), Message{To: "a@b.c", Subject: "x"}))
	assert.Contains(t, buf.String(), `"to":"a@b.c"`)

	assert.IsType(t, &SMTPSender{}, NewSender(config.MailConfig{Host: "smtp.example.com", Port: 587}, &logger))
}

func TestSMTPSender_RequiresRecipient(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{Host: "127.0.0.1", Port: 1})
	assert.Error(t, s.Send(context.Background(), Message{}))
}
