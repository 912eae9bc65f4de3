// Package moodle talks to the Moodle webservice REST endpoint. The rest of
// the system only sees the Fetcher, GradeSaver and FileFetcher interfaces and
// the error taxonomy; transport details stay here.
package moodle

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/mdlgrade/internal/models"
)

var (
	// ErrAccessDenied indicates the webservice token lacks a capability for
	// the requested course. Sync skips the course and continues.
	ErrAccessDenied = errors.New("access denied by webservice")
	// ErrInvalidResponse indicates the server payload was malformed or
	// carried an unexpected error. Recovered per item, never fatal for a
	// whole sync.
	ErrInvalidResponse = errors.New("invalid webservice response")
)

// Fetcher retrieves entity collections. Incremental methods honor the since
// filter: returned records have time_modified >= since; a zero since fetches
// everything.
type Fetcher interface {
	// Courses lists the courses the token's user is enrolled in.
	Courses(ctx context.Context, userID int) ([]models.Course, error)
	// EnrolledUsers lists the participants of one course, including their
	// group memberships.
	EnrolledUsers(ctx context.Context, courseID int) ([]models.User, error)
	// Assignments lists the assignments of the given courses, bucketed by
	// course id.
	Assignments(ctx context.Context, courseIDs []int) (map[int][]models.Assignment, error)
	// Submissions lists submissions per assignment id.
	Submissions(ctx context.Context, assignmentIDs []int, since time.Time) (map[int][]models.Submission, error)
	// Grades lists grading records per assignment id.
	Grades(ctx context.Context, assignmentIDs []int, since time.Time) (map[int][]models.Grade, error)
}

// SaveGradeRequest is one grade to push back to the server.
type SaveGradeRequest struct {
	AssignmentID int
	UserID       int
	Grade        float64
	Feedback     string
	// ApplyToAll propagates the grade to every member of the user's group on
	// team assignments.
	ApplyToAll bool
}

// GradeSaver pushes grades to the server. Implementations do not retry;
// callers classify the returned error.
type GradeSaver interface {
	SaveGrade(ctx context.Context, req SaveGradeRequest) error
}

// FileFetcher retrieves one submission file payload by its webservice URL.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileURL string) ([]byte, error)
}
