package models

import "strconv"

// Grade is one grading record for an assignment. The raw grade field is a
// string on the wire; Moodle sends the empty string when no grade has been
// given yet.
type Grade struct {
	ID            int    `json:"id"`
	UserID        int    `json:"userid"`
	GraderID      int    `json:"grader"`
	AttemptNumber int    `json:"attemptnumber"`
	TimeCreated   int64  `json:"timecreated"`
	TimeModified  int64  `json:"timemodified"`
	Grade         string `json:"grade"`
}

// Value parses the raw grade. The second return is false when no grade has
// been given (empty string); an empty grade is never coerced to 0.
func (g Grade) Value() (float64, bool) {
	if g.Grade == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(g.Grade, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
