package report_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mdlgrade/internal/models"
	"github.com/noah-isme/mdlgrade/internal/report"
)

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	return validator.New(validator.WithRequiredStructEnabled())
}

func TestGradingFileExport(t *testing.T) {
	_, a := testCourse(t, false)
	addSubmission(a, 10, 100, 0) // alice, ungraded
	addSubmission(a, 11, 101, 0) // bob, graded 7.5
	a.Grades[101] = models.Grade{ID: 1, UserID: 101, Grade: "7.50000"}

	f := report.NewGradingFile(a)
	require.Equal(t, 42, f.AssignmentID)
	require.False(t, f.TeamSubmission)
	require.Len(t, f.Grades, 2)

	// Sorted by rendered line: alice before bob. The ungraded submission gets
	// the explicit 0.0 editing placeholder.
	require.Equal(t, report.GradingRecord{Name: "alice", ID: 10, Grade: 0}, f.Grades[0])
	require.Equal(t, report.GradingRecord{Name: "bob", ID: 11, Grade: 7.5}, f.Grades[1])
}

func TestGradingFileRoundTrip(t *testing.T) {
	_, a := testCourse(t, false)
	addSubmission(a, 10, 100, 0)
	addSubmission(a, 11, 101, 0)
	a.Grades[101] = models.Grade{ID: 1, UserID: 101, Grade: "7.50000"}

	dir := t.TempDir()
	path, err := report.NewGradingFile(a).Write(dir)
	require.NoError(t, err)

	parsed, err := report.ParseGradingFile(path, newValidator(t))
	require.NoError(t, err)

	// Import phase: submission ids resolve to user ids.
	resolved, err := parsed.ResolveUserIDs(a)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	require.InDelta(t, 0.0, resolved[100].Grade, 1e-9)
	require.InDelta(t, 7.5, resolved[101].Grade, 1e-9)
}

func TestGradingFileResolvesTeamToFirstMember(t *testing.T) {
	_, a := testCourse(t, true)
	// The submitting record carries bob's user id, but team grades go to the
	// group's first member (lowest user id).
	addSubmission(a, 10, 101, 1)

	f := report.NewGradingFile(a)
	require.Equal(t, "TeamA", f.Grades[0].Name)

	resolved, err := f.ResolveUserIDs(a)
	require.NoError(t, err)
	require.Contains(t, resolved, 100)
	require.NotContains(t, resolved, 101)
}

func TestGradingFileResolveUnknownSubmission(t *testing.T) {
	_, a := testCourse(t, false)
	addSubmission(a, 10, 100, 0)

	f := report.GradingFile{
		AssignmentID: 42,
		Grades:       []report.GradingRecord{{Name: "ghost", ID: 77, Grade: 1}},
	}
	_, err := f.ResolveUserIDs(a)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no submission with id 77")
}

func TestGradingFileNumberedVariants(t *testing.T) {
	_, a := testCourse(t, false)
	addSubmission(a, 10, 100, 0)
	f := report.NewGradingFile(a)

	dir := t.TempDir()
	first, err := f.Write(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "grading--42.json"), first)

	second, err := f.Write(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "grading--42_00.json"), second)

	third, err := f.Write(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "grading--42_01.json"), third)
}

func TestParseGradingFileRejectsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	validate := newValidator(t)

	cases := map[string]string{
		"missing_fields": `{"assignment_id": 42}`,
		"string_id":      `{"assignment_id": "42", "team_submission": false, "grades": []}`,
		"negative_grade": `{"assignment_id": 42, "team_submission": false, "grades": [{"name": "a", "id": 1, "grade": -1, "feedback": ""}]}`,
		"not_json":       `{broken`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := report.ParseGradingFile(path, validate)
			require.Error(t, err)
		})
	}
}

func TestValidateAgainstRejectsWholeBatch(t *testing.T) {
	_, a := testCourse(t, false) // max points 10

	f := report.GradingFile{
		AssignmentID: 42,
		Grades: []report.GradingRecord{
			{Name: "alice", ID: 10, Grade: 11},
			{Name: "bob", ID: 11, Grade: 9.5},
			{Name: "carol", ID: 12, Grade: 12.5},
		},
	}

	err := f.ValidateAgainst(a)
	require.Error(t, err)
	// Fail closed, naming every offender.
	require.Contains(t, err.Error(), "nothing uploaded")
	require.Contains(t, err.Error(), "alice")
	require.Contains(t, err.Error(), "carol")
	require.NotContains(t, err.Error(), "bob")

	f.Grades[0].Grade = 10
	f.Grades[2].Grade = 0
	require.NoError(t, f.ValidateAgainst(a))
}
