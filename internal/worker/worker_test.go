package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hotelbook/internal/database"
	"hotelbook/internal/mail"
	"hotelbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func confirmedBooking(id int64) *models.Booking {
	return &models.Booking{
		ID:           id,
		UserID:       1,
		CheckIn:      models.MustParseDate("2025-06-01"),
		CheckOut:     models.MustParseDate("2025-06-03"),
		NumGuests:    2,
		Status:       models.BookingConfirmed,
		TotalAmount:  200,
		ContactEmail: "guest@example.com",
		Rooms:        []models.BookedRoom{{RoomID: 7}},
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	if err := worker.EnqueueBookingConfirmed(ctx, confirmedBooking(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if sender.count() != 1 {
		t.Fatalf("expected one mail, got %d", sender.count())
	}
	if sender.sent[0].To != "guest@example.com" {
		t.Fatalf("unexpected recipient %q", sender.sent[0].To)
	}

	// the same task seen again through polling is not sent twice
	worker.processTask(ctx, &task)
	if sender.count() != 1 {
		t.Fatalf("expected completed task to be skipped, got %d sends", sender.count())
	}
}

func TestProcessTaskClaimedElsewhere(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	if err := worker.EnqueueBookingConfirmed(ctx, confirmedBooking(5)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}

	// a second worker picked the same row up through polling
	claimed, err := db.ClaimNotificationTask(ctx, task.ID, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected first claim to win, got %v, %v", claimed, err)
	}

	worker.processTask(ctx, &task)
	if sender.count() != 0 {
		t.Fatalf("expected claimed task to be skipped, got %d sends", sender.count())
	}
	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusProcessing {
		t.Fatalf("expected status=processing, got %s", status)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{err: errors.New("smtp 451")}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	if err := worker.EnqueueBookingConfirmed(ctx, confirmedBooking(2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}
}

func TestProcessTaskFailDeadLetters(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sender := &fakeSender{err: errors.New("mailbox unavailable")}
	worker := NewNotificationWorker(db, sender, client, RetryPolicy{MaxAttempts: 1}, nil)

	ctx := context.Background()
	if err := worker.EnqueueBookingConfirmed(ctx, confirmedBooking(3)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	dead, err := mr.List("notifications:deadletter")
	if err != nil || len(dead) != 1 {
		t.Fatalf("expected one dead letter, got %v (%v)", dead, err)
	}
}

func TestProcessTaskWithoutRecipient(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	b := confirmedBooking(4)
	b.ContactEmail = ""
	if err := worker.EnqueueBookingConfirmed(ctx, b); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.TaskStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if sender.count() != 0 {
		t.Fatalf("expected no mail without recipient")
	}
}

func TestEnqueueRequiresBooking(t *testing.T) {
	worker := NewNotificationWorker(newTestDB(t), &fakeSender{}, nil, RetryPolicy{}, nil)
	if err := worker.EnqueueBookingConfirmed(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil booking")
	}
	if err := worker.EnqueueBookingConfirmed(context.Background(), &models.Booking{}); err == nil {
		t.Fatalf("expected error for missing booking id")
	}
}

func TestNotificationWorkerStartDelivers(t *testing.T) {
	db := newTestDB(t)
	sender := &fakeSender{}
	worker := NewNotificationWorker(db, sender, nil, RetryPolicy{}, nil).WithPolling(10*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	if err := worker.EnqueueBookingConfirmed(ctx, confirmedBooking(5)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if sender.count() != 1 {
		t.Fatalf("expected exactly one delivery, got %d", sender.count())
	}
}

func TestDecodePayload(t *testing.T) {
	decoded, err := decodePayload(`{"booking":{"id":123,"status":"confirmed"}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Booking == nil || decoded.Booking.ID != 123 {
		t.Fatalf("unexpected decoded payload: %+v", decoded)
	}

	if _, err := decodePayload(`invalid json`); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	if d := policy.NextDelay(1); d != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d)
	}
	if d := policy.NextDelay(2); d != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d)
	}
	if d := policy.NextDelay(5); d != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d)
	}
	if d := (RetryPolicy{}).NextDelay(0); d != time.Second {
		t.Fatalf("zero policy expected 1s, got %s", d)
	}
}

// Helpers

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []mail.Message
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "worker.db"), &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM notification_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
