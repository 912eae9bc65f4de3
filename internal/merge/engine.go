// Package merge reconciles freshly fetched webservice batches against the
// work-tree store. Fetches for submissions and grades are incremental (since
// the collection's last sync), so absence of a record in a batch never means
// deletion: lists are merged as a union keyed by record id with the incoming
// record winning on collision.
package merge

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mdlgrade/internal/models"
	"github.com/noah-isme/mdlgrade/internal/store"
)

// Report counts how one merge pass classified the records of a collection.
type Report struct {
	New       int
	Updated   int
	Unchanged int
}

// String renders the report the way sync output prints it.
func (r Report) String() string {
	return fmt.Sprintf("%d new, %d updated, %d unchanged", r.New, r.Updated, r.Unchanged)
}

// Engine merges fetched batches into a work tree.
type Engine struct {
	tree   *store.WorkTree
	logger zerolog.Logger
}

// NewEngine builds a merge engine over tree.
func NewEngine(tree *store.WorkTree, logger zerolog.Logger) *Engine {
	return &Engine{
		tree:   tree,
		logger: logger.With().Str("component", "merge_engine").Logger(),
	}
}

// MergeAssignments reconciles one fetched assignment batch. A record is new
// when no local copy exists, updated when the fetched copy is strictly more
// recently modified, unchanged otherwise. Merging an identical batch twice is
// idempotent: the second pass reports everything unchanged.
func (e *Engine) MergeAssignments(batch []models.Assignment) (Report, error) {
	var report Report
	coll := e.tree.Assignments()

	for _, incoming := range batch {
		local, err := coll.Get(incoming.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := coll.Set(incoming.ID, incoming); err != nil {
				return report, err
			}
			report.New++
		case err != nil:
			return report, err
		case incoming.TimeModified > local.TimeModified:
			if err := coll.Set(incoming.ID, incoming); err != nil {
				return report, err
			}
			report.Updated++
		default:
			report.Unchanged++
		}
	}

	e.logger.Debug().Str("collection", "assignments").Int("new", report.New).
		Int("updated", report.Updated).Int("unchanged", report.Unchanged).Msg("merged batch")
	return report, nil
}

// MergeSubmissions reconciles fetched submission lists, bucketed by
// assignment id. Placeholder submissions without content are dropped before
// the merge and never persisted. After the whole batch is processed the
// collection's last-sync time advances to fetchedAt.
func (e *Engine) MergeSubmissions(byAssignment map[int][]models.Submission, fetchedAt time.Time) (Report, error) {
	report, err := mergeLists(e.tree.Submissions(), byAssignment, fetchedAt,
		func(s models.Submission) int { return s.ID },
		func(s models.Submission) bool { return s.HasContent() },
	)
	if err != nil {
		return report, err
	}

	e.logger.Debug().Str("collection", "submissions").Int("new", report.New).
		Int("updated", report.Updated).Int("unchanged", report.Unchanged).Msg("merged batch")
	return report, nil
}

// MergeGrades reconciles fetched grade lists, bucketed by assignment id, with
// the same union-by-record-id rule as submissions.
func (e *Engine) MergeGrades(byAssignment map[int][]models.Grade, fetchedAt time.Time) (Report, error) {
	report, err := mergeLists(e.tree.Grades(), byAssignment, fetchedAt,
		func(g models.Grade) int { return g.ID },
		nil,
	)
	if err != nil {
		return report, err
	}

	e.logger.Debug().Str("collection", "grades").Int("new", report.New).
		Int("updated", report.Updated).Int("unchanged", report.Unchanged).Msg("merged batch")
	return report, nil
}

// ReplaceCourses persists the fetched course snapshot wholesale.
func (e *Engine) ReplaceCourses(courses []models.Course) error {
	if err := e.tree.Courses().Replace(courses); err != nil {
		return err
	}
	e.logger.Debug().Int("count", len(courses)).Msg("replaced course snapshot")
	return nil
}

// ReplaceUsers persists the fetched enrolled-user snapshot of one course.
func (e *Engine) ReplaceUsers(courseID int, users []models.User) error {
	if err := e.tree.Users(courseID).Replace(users); err != nil {
		return err
	}
	e.logger.Debug().Int("course_id", courseID).Int("count", len(users)).Msg("replaced user snapshot")
	return nil
}

// mergeLists applies the additive union rule to list-per-assignment
// collections. Each assignment bucket is an independent namespace and counts
// once: new when nothing was stored and the incoming list is non-empty,
// unchanged when the incoming list is empty or the union equals the stored
// list, updated otherwise. Records are kept sorted by id so unions of
// identical state compare (and serialize) identically.
func mergeLists[T any](coll store.Collection[[]T], byAssignment map[int][]T, fetchedAt time.Time, idOf func(T) int, keep func(T) bool) (Report, error) {
	var report Report

	for assignmentID, incoming := range byAssignment {
		if keep != nil {
			incoming = filter(incoming, keep)
		}
		if len(incoming) == 0 {
			// An empty (or fully filtered) incremental fetch says nothing
			// about local state; never delete.
			report.Unchanged++
			continue
		}

		local, err := coll.Get(assignmentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return report, err
		}

		if local == nil {
			if err := coll.Set(assignmentID, sortByID(incoming, idOf)); err != nil {
				return report, err
			}
			report.New++
			continue
		}

		merged := make(map[int]T, len(local)+len(incoming))
		for _, rec := range local {
			merged[idOf(rec)] = rec
		}
		for _, rec := range incoming {
			merged[idOf(rec)] = rec
		}

		union := make([]T, 0, len(merged))
		for _, rec := range merged {
			union = append(union, rec)
		}
		union = sortByID(union, idOf)

		if reflect.DeepEqual(union, local) {
			report.Unchanged++
			continue
		}
		if err := coll.Set(assignmentID, union); err != nil {
			return report, err
		}
		report.Updated++
	}

	if err := coll.SetLastSync(fetchedAt); err != nil {
		return report, err
	}
	return report, nil
}

func filter[T any](recs []T, keep func(T) bool) []T {
	kept := recs[:0:0]
	for _, rec := range recs {
		if keep(rec) {
			kept = append(kept, rec)
		}
	}
	return kept
}

func sortByID[T any](recs []T, idOf func(T) int) []T {
	sort.Slice(recs, func(i, j int) bool { return idOf(recs[i]) < idOf(recs[j]) })
	return recs
}
