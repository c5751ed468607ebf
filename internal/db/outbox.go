package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ALT-F4-LLC/workgraph/internal/lifecycle"
)

// Notify queues n in the notifications outbox. Delivery is left to whatever
// drains the outbox.
func (s *Store) Notify(ctx context.Context, n lifecycle.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (event, issue_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(n.Event), n.Issue.ID, string(payload), formatTime(s.now()),
	); err != nil {
		return fmt.Errorf("queueing notification: %w", err)
	}
	return nil
}

// QueuedNotification is an outbox row.
type QueuedNotification struct {
	ID        int             `json:"id"`
	Event     lifecycle.Event `json:"event"`
	IssueID   int             `json:"issue_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// PendingNotifications returns unsent notifications, oldest first.
func (s *Store) PendingNotifications(ctx context.Context) ([]QueuedNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, issue_id, payload, created_at FROM notifications WHERE sent_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var out []QueuedNotification
	for rows.Next() {
		var n QueuedNotification
		var event, payload, createdAt string
		if err := rows.Scan(&n.ID, &event, &n.IssueID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Event = lifecycle.Event(event)
		n.Payload = json.RawMessage(payload)
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing notification created_at: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return out, nil
}

// MarkSent stamps the given notifications as delivered.
func (s *Store) MarkSent(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(s.now()))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET sent_at = ? WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...,
	); err != nil {
		return fmt.Errorf("marking notifications sent: %w", err)
	}
	return nil
}
