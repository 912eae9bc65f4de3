package models

import "time"

// Assignment is one Moodle assignment definition. DueDate and TimeModified are
// epoch seconds exactly as the webservice delivers them.
type Assignment struct {
	ID             int     `json:"id"`
	CourseID       int     `json:"course"`
	Name           string  `json:"name"`
	DueDate        int64   `json:"duedate"`
	MaxPoints      float64 `json:"grade"`
	TeamSubmission bool    `json:"teamsubmission"`
	TimeModified   int64   `json:"timemodified"`
}

// DueTime returns the due date as a time.Time.
func (a Assignment) DueTime() time.Time {
	return time.Unix(a.DueDate, 0)
}
