package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/pocketkid/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, user_id, kind, message, request_id, is_read, created_at`

func (s *NotificationStore) Create(userID int64, kind, message string, requestID *int64) (*model.Notification, error) {
	result, err := s.db.Exec(
		`INSERT INTO notifications (user_id, kind, message, request_id) VALUES (?, ?, ?, ?)`,
		userID, kind, message, nullInt64(requestID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *NotificationStore) GetByID(id int64) (*model.Notification, error) {
	row := s.db.QueryRow(`SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListUnread returns the user's unread notifications, oldest first.
func (s *NotificationStore) ListUnread(userID int64, limit int) ([]model.Notification, error) {
	rows, err := s.db.Query(
		`SELECT `+notificationCols+` FROM notifications WHERE user_id = ? AND is_read = 0 ORDER BY created_at ASC, id ASC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// MarkRead flips the read flag on the given notifications for the user. IDs
// belonging to other users are ignored.
func (s *NotificationStore) MarkRead(userID int64, ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.Exec(`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
	}
	return nil
}

func (s *NotificationStore) CountUnread(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func scanNotification(scanner interface{ Scan(...any) error }) (*model.Notification, error) {
	var n model.Notification
	var requestID sql.NullInt64
	var read int

	err := scanner.Scan(&n.ID, &n.UserID, &n.Kind, &n.Message, &requestID, &read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}

	if requestID.Valid {
		n.RequestID = &requestID.Int64
	}
	n.Read = read != 0
	return &n, nil
}
