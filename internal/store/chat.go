package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts the chat if absent and reports whether it was
// created. For an existing chat only display metadata is updated, with
// non-empty values; the type is fixed at creation and never changes.
func (db *DB) UpsertChat(c *Chat) (bool, error) {
	if err := db.guard(); err != nil {
		return false, err
	}

	var cur Chat
	err := db.QueryRow(`SELECT id, name, avatar, type FROM chats WHERE id = ?`, c.ID).
		Scan(&cur.ID, &cur.Name, &cur.Avatar, &cur.Type)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO chats (id, name, avatar, type, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Avatar, c.Type, time.Now().UnixMilli())
		if err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	name := cur.Name
	if c.Name != "" {
		name = c.Name
	}
	avatar := cur.Avatar
	if c.Avatar != "" {
		avatar = c.Avatar
	}
	if name != cur.Name || avatar != cur.Avatar {
		if _, err := db.Exec(`UPDATE chats SET name = ?, avatar = ? WHERE id = ?`, name, avatar, c.ID); err != nil {
			return false, err
		}
	}
	return false, nil
}

// GetChat returns a chat by id, or NotFoundError.
func (db *DB) GetChat(id string) (*Chat, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	var c Chat
	err := db.QueryRow(`SELECT id, name, avatar, type FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Avatar, &c.Type)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "chat", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns every chat ordered by id ascending. The ordering is
// stable but carries no recency meaning.
func (db *DB) ListChats() ([]Chat, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT id, name, avatar, type FROM chats ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chats := []Chat{}
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.Avatar, &c.Type); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// AddChatMember records roster membership. Inserting an existing pair
// is a no-op.
func (db *DB) AddChatMember(chatID, profileID string) error {
	if err := db.guard(); err != nil {
		return err
	}
	_, err := db.Exec(`INSERT OR IGNORE INTO chat_members (chat_id, profile_id) VALUES (?, ?)`, chatID, profileID)
	return err
}

// ListChatMembers returns the roster profile ids for a chat.
func (db *DB) ListChatMembers(chatID string) ([]string, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT profile_id FROM chat_members WHERE chat_id = ? ORDER BY profile_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}
