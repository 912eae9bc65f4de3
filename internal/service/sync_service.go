// Package service orchestrates the user-facing flows: synchronizing the work
// tree with the webservice, downloading submission files and uploading
// grades. Merge and aggregation logic stays single threaded; only bulk file
// transfer and bulk grade saving fan out to a bounded worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mdlgrade/internal/merge"
	"github.com/noah-isme/mdlgrade/internal/models"
	"github.com/noah-isme/mdlgrade/internal/moodle"
	"github.com/noah-isme/mdlgrade/internal/store"
)

// SyncReport summarizes one sync run for display.
type SyncReport struct {
	Courses     int
	Users       int
	Assignments merge.Report
	Submissions merge.Report
	Grades      merge.Report
	// Warnings collects the per-course and per-item failures that were
	// recovered from: the sync continued without the affected data.
	Warnings []string
}

// SyncService fetches the selected courses from the webservice and feeds the
// batches through the merge engine.
type SyncService struct {
	fetcher   moodle.Fetcher
	engine    *merge.Engine
	tree      *store.WorkTree
	userID    int
	courseIDs []int
	logger    zerolog.Logger
}

// NewSyncService builds a sync service for the given selected courses.
func NewSyncService(fetcher moodle.Fetcher, engine *merge.Engine, tree *store.WorkTree, userID int, courseIDs []int, logger zerolog.Logger) *SyncService {
	return &SyncService{
		fetcher:   fetcher,
		engine:    engine,
		tree:      tree,
		userID:    userID,
		courseIDs: courseIDs,
		logger:    logger.With().Str("component", "sync_service").Logger(),
	}
}

// Sync runs one full synchronization pass: course snapshot, per-course
// enrolled users, assignments, then incremental submissions and grades for
// every assignment known to the store. A course the token cannot access is
// skipped with a warning; malformed per-item responses are likewise recovered
// and reported, never fatal.
func (s *SyncService) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	courses, err := s.fetcher.Courses(ctx, s.userID)
	if err != nil {
		return report, fmt.Errorf("fetch courses: %w", err)
	}
	if err := s.engine.ReplaceCourses(courses); err != nil {
		return report, err
	}
	report.Courses = len(courses)

	reachable := make([]int, 0, len(s.courseIDs))
	for _, courseID := range s.courseIDs {
		users, err := s.fetcher.EnrolledUsers(ctx, courseID)
		if err != nil {
			if errors.Is(err, moodle.ErrAccessDenied) {
				report.Warnings = append(report.Warnings, fmt.Sprintf("course %d: access denied, skipped", courseID))
				s.logger.Warn().Int("course_id", courseID).Msg("access denied, course skipped")
				continue
			}
			if errors.Is(err, moodle.ErrInvalidResponse) {
				report.Warnings = append(report.Warnings, fmt.Sprintf("course %d users: %v", courseID, err))
				reachable = append(reachable, courseID)
				continue
			}
			return report, err
		}
		if err := s.engine.ReplaceUsers(courseID, users); err != nil {
			return report, err
		}
		report.Users += len(users)
		reachable = append(reachable, courseID)
	}

	if len(reachable) > 0 {
		byCourse, err := s.fetcher.Assignments(ctx, reachable)
		if err != nil {
			if !errors.Is(err, moodle.ErrAccessDenied) && !errors.Is(err, moodle.ErrInvalidResponse) {
				return report, err
			}
			report.Warnings = append(report.Warnings, fmt.Sprintf("assignments: %v", err))
		} else {
			var batch []models.Assignment
			for _, assignments := range byCourse {
				batch = append(batch, assignments...)
			}
			report.Assignments, err = s.engine.MergeAssignments(batch)
			if err != nil {
				return report, err
			}
		}
	}

	assignmentIDs, err := s.assignmentIDs(reachable)
	if err != nil {
		return report, err
	}
	if len(assignmentIDs) == 0 {
		return report, nil
	}

	// The fetch timestamp is taken before the request so records modified
	// mid-fetch are picked up again next time.
	fetchedAt := time.Now()

	submissions, err := s.fetcher.Submissions(ctx, assignmentIDs, s.tree.Submissions().LastSync())
	if err != nil {
		if !errors.Is(err, moodle.ErrAccessDenied) && !errors.Is(err, moodle.ErrInvalidResponse) {
			return report, err
		}
		report.Warnings = append(report.Warnings, fmt.Sprintf("submissions: %v", err))
	} else {
		report.Submissions, err = s.engine.MergeSubmissions(submissions, fetchedAt)
		if err != nil {
			return report, err
		}
	}

	grades, err := s.fetcher.Grades(ctx, assignmentIDs, s.tree.Grades().LastSync())
	if err != nil {
		if !errors.Is(err, moodle.ErrAccessDenied) && !errors.Is(err, moodle.ErrInvalidResponse) {
			return report, err
		}
		report.Warnings = append(report.Warnings, fmt.Sprintf("grades: %v", err))
	} else {
		report.Grades, err = s.engine.MergeGrades(grades, fetchedAt)
		if err != nil {
			return report, err
		}
	}

	s.logger.Info().
		Str("assignments", report.Assignments.String()).
		Str("submissions", report.Submissions.String()).
		Str("grades", report.Grades.String()).
		Int("warnings", len(report.Warnings)).
		Msg("sync finished")
	return report, nil
}

// assignmentIDs lists every stored assignment belonging to one of the given
// courses, so incremental fetches cover assignments from earlier syncs too.
func (s *SyncService) assignmentIDs(courseIDs []int) ([]int, error) {
	selected := make(map[int]bool, len(courseIDs))
	for _, id := range courseIDs {
		selected[id] = true
	}

	stored, err := s.tree.Assignments().Items()
	if err != nil {
		return nil, err
	}

	var ids []int
	for id, assignment := range stored {
		if selected[assignment.CourseID] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
