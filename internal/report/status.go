package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// gradingWindow bounds how long after the due date an assignment is still
// nagged about. Assignments overdue for longer are considered abandoned and
// drop out of needs-grading reporting.
const gradingWindow = 25 * 7 * 24 * time.Hour

// IsDue reports whether the assignment's deadline has passed recently enough
// to still matter. Assignments without a due date are never due.
func (a *Assignment) IsDue(now time.Time) bool {
	if a.DueDate <= 0 {
		return false
	}
	due := a.DueTime()
	return now.After(due) && now.Sub(due) < gradingWindow
}

// NeedsGrading reports whether the assignment is due and at least one valid
// submission is still ungraded.
func (a *Assignment) NeedsGrading(now time.Time) bool {
	if !a.IsDue(now) {
		return false
	}
	for _, s := range a.Submissions {
		if !s.IsGraded() {
			return true
		}
	}
	return false
}

// GradedCount returns how many valid submissions are graded.
func (a *Assignment) GradedCount() int {
	count := 0
	for _, s := range a.Submissions {
		if s.IsGraded() {
			count++
		}
	}
	return count
}

// IsGraded reports whether the submission counts as graded: for individual
// assignments the submitter has a grade entry, for team assignments the whole
// group has reached consensus (see TeamGrade).
func (s *Submission) IsGraded() bool {
	if s.Assignment.TeamSubmission {
		_, graded, _ := s.TeamGrade()
		return graded
	}
	_, ok := s.Assignment.Grades[s.UserID]
	return ok
}

// Grade returns the submission's effective grade value. For team submissions
// a concrete value exists only when the group consensus holds.
func (s *Submission) Grade() (float64, bool) {
	if s.Assignment.TeamSubmission {
		value, graded, _ := s.TeamGrade()
		return value, graded
	}
	g, ok := s.Assignment.Grades[s.UserID]
	if !ok {
		return 0, false
	}
	return g.Value()
}

// Group resolves the submitting group through the owning course.
func (s *Submission) Group() (*Group, bool) {
	g, ok := s.Assignment.Course.Groups[s.GroupID]
	return g, ok
}

// User resolves the submitting user through the owning course.
func (s *Submission) User() (*User, bool) {
	u, ok := s.Assignment.Course.Users[s.UserID]
	return u, ok
}

// TeamGrade evaluates the group consensus for a team submission. The grade is
// concrete only when every member is graded and all graded members agree on
// one value; every other state is a reportable warning, not an error.
func (s *Submission) TeamGrade() (float64, bool, string) {
	group, ok := s.Group()
	if !ok {
		return 0, false, fmt.Sprintf("group %d (not found)", s.GroupID)
	}

	var values []float64
	seen := make(map[float64]bool)
	graded, ungraded := 0, 0
	for _, member := range group.Members {
		g, ok := s.Assignment.Grades[member.ID]
		if !ok {
			ungraded++
			continue
		}
		value, has := g.Value()
		if !has {
			ungraded++
			continue
		}
		graded++
		if !seen[value] {
			seen[value] = true
			values = append(values, value)
		}
	}

	switch {
	case graded == 0:
		return 0, false, "no grades"
	case len(values) > 1:
		sort.Float64s(values)
		rendered := make([]string, len(values))
		for i, v := range values {
			rendered[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return 0, false, fmt.Sprintf("grades not equal: {%s}", strings.Join(rendered, ", "))
	case ungraded > 0:
		return 0, false, "has graded and ungraded users"
	default:
		return values[0], true, ""
	}
}

// Prefix is the display name used in file and folder naming: the group name
// for team submissions, the submitter's name otherwise, with an id-based
// fallback when the course mapping is incomplete.
func (s *Submission) Prefix() string {
	if s.Assignment.TeamSubmission {
		if g, ok := s.Group(); ok {
			return g.Name
		}
		return fmt.Sprintf("group_%d", s.GroupID)
	}
	if u, ok := s.User(); ok {
		return u.FullName
	}
	return fmt.Sprintf("user_%d", s.UserID)
}

// StatusLine renders the submission's grading state for the status report.
// Unresolvable user or group ids degrade to visible placeholders because the
// display must tolerate partially synced data.
func (s *Submission) StatusLine() string {
	if s.Assignment.TeamSubmission {
		name := fmt.Sprintf("group %d (not found)", s.GroupID)
		if g, ok := s.Group(); ok {
			name = g.Name
		}
		value, graded, warning := s.TeamGrade()
		if graded {
			return fmt.Sprintf("%s: graded %g", name, value)
		}
		return fmt.Sprintf("%s: %s", name, warning)
	}

	name := fmt.Sprintf("user %d (not found)", s.UserID)
	if u, ok := s.User(); ok {
		name = u.FullName
	}
	if value, ok := s.Grade(); ok {
		return fmt.Sprintf("%s: graded %g", name, value)
	}
	return fmt.Sprintf("%s: ungraded", name)
}

// StatusLines renders the course's grading report: one header line per
// assignment that needs grading, followed by the state of every valid
// submission, sorted for stable output.
func (c *Course) StatusLines(now time.Time) []string {
	lines := []string{fmt.Sprintf("%s (%s, id %d)", c.FullName, c.ShortName, c.ID)}

	ids := make([]int, 0, len(c.Assignments))
	for id := range c.Assignments {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		a := c.Assignments[id]
		if !a.NeedsGrading(now) {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s (id %d): %d/%d graded", a.Name, a.ID, a.GradedCount(), len(a.Submissions)))

		subLines := make([]string, 0, len(a.Submissions))
		for _, s := range a.Submissions {
			subLines = append(subLines, "    "+s.StatusLine())
		}
		sort.Strings(subLines)
		lines = append(lines, subLines...)
	}

	if len(lines) == 1 {
		lines = append(lines, "  nothing needs grading")
	}
	return lines
}
