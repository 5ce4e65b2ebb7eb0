package store

import (
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/classbot/internal/model"
)

const memberColumns = `id, name, phone, role, class_name, child_name, created_at`

// RegisterMember inserts a member, or updates the existing member with the same phone.
func (s *Store) RegisterMember(m model.Member) (int64, error) {
	m.Name = strings.TrimSpace(m.Name)
	var id int64
	err := s.db.QueryRow(
		`INSERT INTO members (name, phone, role, class_name, child_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(phone) DO UPDATE SET name = excluded.name, role = excluded.role,
		   class_name = excluded.class_name, child_name = excluded.child_name
		 RETURNING id`,
		m.Name, m.Phone, m.Role, m.ClassName, m.ChildName, time.Now(),
	).Scan(&id)
	if err != nil {
		slog.Error("failed to register member", "name", m.Name, "error", err)
		return 0, err
	}
	slog.Info("registered member", "id", id, "name", m.Name, "role", m.Role)
	return id, nil
}

// FindByName returns the first member with the given name (case-insensitive), or nil.
func (s *Store) FindByName(name string) (*model.Member, error) {
	return s.findOne(`SELECT `+memberColumns+` FROM members WHERE name = ? ORDER BY id LIMIT 1`,
		strings.TrimSpace(name))
}

// FindByPhone returns the member registered from phone, or nil.
func (s *Store) FindByPhone(phone string) (*model.Member, error) {
	return s.findOne(`SELECT `+memberColumns+` FROM members WHERE phone = ?`, phone)
}

func (s *Store) findOne(query string, args ...any) (*model.Member, error) {
	var m model.Member
	err := s.db.QueryRow(query, args...).Scan(
		&m.ID, &m.Name, &m.Phone, &m.Role, &m.ClassName, &m.ChildName, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMembers returns all members.
func (s *Store) ListMembers() ([]model.Member, error) {
	rows, err := s.db.Query(`SELECT ` + memberColumns + ` FROM members ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.Role, &m.ClassName, &m.ChildName, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MemberCount returns the total number of members.
func (s *Store) MemberCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&count)
	return count, err
}
