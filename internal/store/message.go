package store

import (
	"database/sql"
	"strconv"
)

// PageSize is the fixed window for message pagination.
const PageSize = 20

// InsertMessage stores one message row and returns it with the assigned id.
// Messages are never deduplicated, updated, or deleted.
func (db *DB) InsertMessage(m *Message) (*Message, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	res, err := db.Exec(`INSERT INTO messages (chat_id, from_id, content, timestamp) VALUES (?, ?, ?, ?)`,
		m.ChatID, m.FromID, m.Content, m.Timestamp)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	stored := *m
	stored.ID = id
	return &stored, nil
}

// GetMessage returns a message by id, or NotFoundError.
func (db *DB) GetMessage(id int64) (*Message, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	var m Message
	err := db.QueryRow(`SELECT id, chat_id, from_id, content, timestamp FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ChatID, &m.FromID, &m.Content, &m.Timestamp)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "message", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns one page of a chat's messages, most recent first.
// Pages are 1-based and 20 rows wide; page <= 1 clamps to the first window.
// A short page signals no further pages.
func (db *DB) ListMessages(chatID string, page int) ([]Message, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * PageSize
	}
	rows, err := db.Query(`
		SELECT id, chat_id, from_id, content, timestamp
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?`, chatID, PageSize, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.FromID, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
