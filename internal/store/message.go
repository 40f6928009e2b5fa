package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pigeonchat/pigeon/internal/model"
)

// InsertMessage persists a new message, assigning its ID and creation
// timestamp. The returned message is the persisted form.
func (db *DB) InsertMessage(senderID, receiverID, text, imageURL string) (*model.Message, error) {
	m := &model.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		ImageURL:   imageURL,
		CreatedAt:  time.Now().UnixMilli(),
	}
	_, err := db.Exec(`
		INSERT INTO messages (id, sender_id, receiver_id, text, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SenderID, m.ReceiverID, m.Text, m.ImageURL, m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Conversation returns all messages between a and b, creation time
// ascending with message ID as tie-break.
func (db *DB) Conversation(a, b string) ([]model.Message, error) {
	return db.queryMessages(`
		SELECT id, sender_id, receiver_id, text, image_url, created_at, delivered_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC`, a, b, b, a)
}

// ConversationSince returns messages between a and b with creation time
// >= since, in the same order as Conversation.
func (db *DB) ConversationSince(a, b string, since int64) ([]model.Message, error) {
	return db.queryMessages(`
		SELECT id, sender_id, receiver_id, text, image_url, created_at, delivered_at
		FROM messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
			AND created_at >= ?
		ORDER BY created_at ASC, id ASC`, a, b, b, a, since)
}

// GetMessage returns a single message by ID, or nil if absent.
func (db *DB) GetMessage(id string) (*model.Message, error) {
	msgs, err := db.queryMessages(`
		SELECT id, sender_id, receiver_id, text, image_url, created_at, delivered_at
		FROM messages WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// MarkDelivered sets the delivered timestamp exactly once. Returns true
// if the row changed, false if the message was already delivered or is
// missing. Repeated calls are no-ops.
func (db *DB) MarkDelivered(id string, deliveredAt int64) (bool, error) {
	res, err := db.Exec(`
		UPDATE messages SET delivered_at = ?
		WHERE id = ? AND delivered_at IS NULL`, deliveredAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) queryMessages(query string, args ...any) ([]model.Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var delivered sql.NullInt64
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.ImageURL, &m.CreatedAt, &delivered); err != nil {
			return nil, err
		}
		if delivered.Valid {
			v := delivered.Int64
			m.DeliveredAt = &v
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
