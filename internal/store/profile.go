package store

import (
	"database/sql"
	"time"
)

// UpsertProfile inserts or updates a profile. Only name and avatar are
// mutable, and empty incoming fields never clobber stored values.
// Returns whether the row actually changed.
func (db *DB) UpsertProfile(p *Profile) (bool, error) {
	if err := db.guard(); err != nil {
		return false, err
	}

	var cur Profile
	err := db.QueryRow(`SELECT id, name, avatar FROM profiles WHERE id = ?`, p.ID).
		Scan(&cur.ID, &cur.Name, &cur.Avatar)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO profiles (id, name, avatar, updated_at) VALUES (?, ?, ?, ?)`,
			p.ID, p.Name, p.Avatar, time.Now().UnixMilli())
		return err == nil, err
	}
	if err != nil {
		return false, err
	}

	name := cur.Name
	if p.Name != "" {
		name = p.Name
	}
	avatar := cur.Avatar
	if p.Avatar != "" {
		avatar = p.Avatar
	}
	if name == cur.Name && avatar == cur.Avatar {
		return false, nil
	}

	_, err = db.Exec(`UPDATE profiles SET name = ?, avatar = ?, updated_at = ? WHERE id = ?`,
		name, avatar, time.Now().UnixMilli(), p.ID)
	return err == nil, err
}

// GetProfile returns a profile by id, or NotFoundError.
func (db *DB) GetProfile(id string) (*Profile, error) {
	if err := db.guard(); err != nil {
		return nil, err
	}
	var p Profile
	err := db.QueryRow(`SELECT id, name, avatar FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Avatar)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "profile", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
