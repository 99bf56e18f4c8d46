package database

import (
	"context"
	"fmt"
	"time"

	"hotelbook/internal/models"
)

const notificationColumns = `id, task_type, booking_id, payload, status, retry_count, last_error,
	created_at, processed_at, next_retry_at`

func (db *DB) CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error {
	now := time.Now().UTC()
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	err := db.QueryRowxContext(ctx, db.Rebind(`INSERT INTO notification_queue
			(task_type, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		task.TaskType, task.BookingID, task.Payload, task.Status, task.RetryCount, task.LastError, now, task.NextRetryAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to create notification task: %w", err)
	}
	task.CreatedAt = now
	return nil
}

func (db *DB) GetNotificationTask(ctx context.Context, id int64) (*models.NotificationTask, error) {
	var task models.NotificationTask
	err := db.GetContext(ctx, &task, db.Rebind(`SELECT `+notificationColumns+` FROM notification_queue WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification task: %w", err)
	}
	return &task, nil
}

// GetPendingNotificationTasks returns tasks due for a (re)try, oldest first.
// A processing task whose lease ran out counts as due again.
func (db *DB) GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error) {
	var tasks []models.NotificationTask
	err := db.SelectContext(ctx, &tasks, db.Rebind(`SELECT `+notificationColumns+` FROM notification_queue
		WHERE status IN (?, ?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at ASC LIMIT ?`),
		models.TaskStatusPending, models.TaskStatusRetry, models.TaskStatusProcessing, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending notification tasks: %w", err)
	}
	return tasks, nil
}

// ClaimNotificationTask moves a task to processing for lease. It reports
// false when another worker holds a live claim or the task is finished.
func (db *DB) ClaimNotificationTask(ctx context.Context, id int64, lease time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE notification_queue SET status = ?, next_retry_at = ?
		WHERE id = ? AND (status IN (?, ?) OR (status = ? AND next_retry_at <= ?))`),
		models.TaskStatusProcessing, now.Add(lease), id,
		models.TaskStatusPending, models.TaskStatusRetry, models.TaskStatusProcessing, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim notification task: %w", err)
	}
	return n == 1, nil
}

func (db *DB) UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, now, id}
	default:
		query = `UPDATE notification_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update notification task status: %w", err)
	}
	return nil
}

func (db *DB) GetFailedNotificationTasks(ctx context.Context) ([]models.NotificationTask, error) {
	var tasks []models.NotificationTask
	err := db.SelectContext(ctx, &tasks, db.Rebind(`SELECT `+notificationColumns+` FROM notification_queue
		WHERE status = ? ORDER BY created_at DESC`), models.TaskStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed notification tasks: %w", err)
	}
	return tasks, nil
}
