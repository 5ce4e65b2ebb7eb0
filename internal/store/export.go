package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/classbot/internal/model"
)

// ExportRoster builds an export of all members and grades.
func (s *Store) ExportRoster() (model.RosterExport, error) {
	school, err := s.GetMetadata(SchoolName)
	if err != nil {
		return model.RosterExport{}, fmt.Errorf("get school name: %w", err)
	}
	members, err := s.ListMembers()
	if err != nil {
		return model.RosterExport{}, fmt.Errorf("list members: %w", err)
	}
	grades, err := s.ListAllGrades()
	if err != nil {
		return model.RosterExport{}, fmt.Errorf("list grades: %w", err)
	}

	// Empty slices keep the JSON arrays as [] instead of null.
	if members == nil {
		members = []model.Member{}
	}
	if grades == nil {
		grades = []model.GradeRecord{}
	}

	return model.RosterExport{
		School:      school,
		GeneratedAt: time.Now().UTC(),
		Members:     members,
		Grades:      grades,
	}, nil
}
