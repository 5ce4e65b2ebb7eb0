package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/classbot/internal/model"
)

// ErrInvalidScore is returned for a score outside 0..total or a non-positive total.
var ErrInvalidScore = errors.New("invalid score")

// RecordGrade stores a score for the named student.
func (s *Store) RecordGrade(name, subject string, score, total int) error {
	if total <= 0 || score < 0 || score > total {
		return fmt.Errorf("%w: %d/%d", ErrInvalidScore, score, total)
	}
	_, err := s.db.Exec(
		`INSERT INTO grades (name, subject, score, total, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(name), strings.TrimSpace(subject), score, total, time.Now(),
	)
	if err != nil {
		return err
	}
	slog.Info("recorded grade", "name", name, "subject", subject, "score", score, "total", total)
	return nil
}

// ListGrades returns the named student's grades, oldest first.
func (s *Store) ListGrades(name string) ([]model.GradeRecord, error) {
	return s.queryGrades(
		`SELECT id, name, subject, score, total, recorded_at FROM grades WHERE name = ? ORDER BY id`,
		strings.TrimSpace(name),
	)
}

// ListAllGrades returns every grade.
func (s *Store) ListAllGrades() ([]model.GradeRecord, error) {
	return s.queryGrades(`SELECT id, name, subject, score, total, recorded_at FROM grades ORDER BY id`)
}

func (s *Store) queryGrades(query string, args ...any) ([]model.GradeRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grades []model.GradeRecord
	for rows.Next() {
		var g model.GradeRecord
		if err := rows.Scan(&g.ID, &g.Name, &g.Subject, &g.Score, &g.Total, &g.RecordedAt); err != nil {
			return nil, err
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

// ClassStats returns per-subject average percentages for students in a class.
func (s *Store) ClassStats(className string) ([]model.SubjectStat, error) {
	rows, err := s.db.Query(
		`SELECT g.subject, COUNT(*), AVG(g.score * 100.0 / g.total)
		 FROM grades g
		 JOIN members m ON m.name = g.name AND m.role = 'student'
		 WHERE m.class_name = ?
		 GROUP BY g.subject
		 ORDER BY g.subject`,
		strings.TrimSpace(className),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stats []model.SubjectStat
	for rows.Next() {
		var st model.SubjectStat
		if err := rows.Scan(&st.Subject, &st.Count, &st.AvgPercent); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
