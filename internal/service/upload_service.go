package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mdlgrade/internal/moodle"
	"github.com/noah-isme/mdlgrade/internal/report"
)

// UploadResult summarizes one grade upload batch.
type UploadResult struct {
	Saved  int
	Errors []error
}

// UploadService validates an edited grading file and pushes its grades to
// the webservice.
type UploadService struct {
	saver    moodle.GradeSaver
	validate *validator.Validate
	workers  int
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewUploadService builds an upload service.
func NewUploadService(saver moodle.GradeSaver, validate *validator.Validate, workers int, timeout time.Duration, logger zerolog.Logger) *UploadService {
	return &UploadService{
		saver:    saver,
		validate: validate,
		workers:  workers,
		timeout:  timeout,
		logger:   logger.With().Str("component", "upload_service").Logger(),
	}
}

// Upload parses the grading file at path, validates it fail-closed against
// the assignment maximum (one offending grade rejects the whole batch),
// resolves the submission ids to user ids and saves every grade on the
// worker pool. Individual save failures are aggregated, not fatal for the
// batch.
func (u *UploadService) Upload(ctx context.Context, courses []*report.Course, path string) (UploadResult, error) {
	var result UploadResult

	f, err := report.ParseGradingFile(path, u.validate)
	if err != nil {
		return result, err
	}

	assignment := findAssignment(courses, f.AssignmentID)
	if assignment == nil {
		return result, fmt.Errorf("grading file %s: assignment %d is not in the work tree", path, f.AssignmentID)
	}
	if f.TeamSubmission != assignment.TeamSubmission {
		return result, fmt.Errorf("grading file %s: team_submission does not match assignment %d", path, f.AssignmentID)
	}

	if err := f.ValidateAgainst(assignment); err != nil {
		return result, err
	}

	resolved, err := f.ResolveUserIDs(assignment)
	if err != nil {
		return result, fmt.Errorf("grading file %s: %w", path, err)
	}

	requests := make([]moodle.SaveGradeRequest, 0, len(resolved))
	for userID, record := range resolved {
		requests = append(requests, moodle.SaveGradeRequest{
			AssignmentID: assignment.ID,
			UserID:       userID,
			Grade:        record.Grade,
			Feedback:     record.Feedback,
			ApplyToAll:   assignment.TeamSubmission,
		})
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].UserID < requests[j].UserID })

	errs := runTasks(ctx, len(requests), u.workers, u.timeout,
		func(taskCtx context.Context, index int) error {
			return u.saver.SaveGrade(taskCtx, requests[index])
		},
		func(done int, err error) {
			event := u.logger.Info()
			if err != nil {
				event = u.logger.Warn().Err(err)
			}
			event.Int("done", done).Int("total", len(requests)).Msg("upload progress")
		},
	)

	result.Saved = len(requests) - len(errs)
	result.Errors = errs
	return result, nil
}

func findAssignment(courses []*report.Course, id int) *report.Assignment {
	for _, c := range courses {
		if a, ok := c.Assignments[id]; ok {
			return a
		}
	}
	return nil
}
