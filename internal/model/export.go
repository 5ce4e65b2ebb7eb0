package model

import (
	"math"
	"time"
)

// RosterExport is the top-level JSON structure for the export command.
type RosterExport struct {
	School      string        `json:"school"`
	GeneratedAt time.Time     `json:"generated_at"`
	Members     []Member      `json:"members"`
	Grades      []GradeRecord `json:"grades"`
}

// Percentage returns round(100*correct/total), rounding half away from zero.
// A zero total yields 0.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}
