package service_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mdlgrade/internal/models"
	"github.com/noah-isme/mdlgrade/internal/moodle"
	"github.com/noah-isme/mdlgrade/internal/report"
	"github.com/noah-isme/mdlgrade/internal/service"
)

// fakeSaver records saved grades and can fail selected user ids.
type fakeSaver struct {
	mu    sync.Mutex
	saved []moodle.SaveGradeRequest
	fail  map[int]bool
}

func (f *fakeSaver) SaveGrade(_ context.Context, req moodle.SaveGradeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[req.UserID] {
		return fmt.Errorf("user %d: save rejected", req.UserID)
	}
	f.saved = append(f.saved, req)
	return nil
}

func newUploadService(saver *fakeSaver) *service.UploadService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return service.NewUploadService(saver, validate, 10, time.Second, zerolog.New(io.Discard))
}

func writeGradingFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "grading--42.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func uploadCourse(t *testing.T, team bool) ([]*report.Course, *report.Assignment) {
	t.Helper()

	c, a := namedCourse(t)
	a.TeamSubmission = team
	addFileSubmission(a, 10, 100, models.File{Filename: "x.txt", Filepath: "/", FileURL: "http://x/1"})
	return []*report.Course{c}, a
}

func TestUploadSavesResolvedGrades(t *testing.T) {
	courses, a := uploadCourse(t, false)
	addFileSubmission(a, 11, 101, models.File{Filename: "y.txt", Filepath: "/", FileURL: "http://x/2"})

	path := writeGradingFile(t, `{
  "assignment_id": 42,
  "team_submission": false,
  "grades": [
    {"name": "alice", "id": 10, "grade": 7.5, "feedback": "solid"},
    {"name": "bob", "id": 11, "grade": 9, "feedback": ""}
  ]
}`)

	saver := &fakeSaver{}
	result, err := newUploadService(saver).Upload(context.Background(), courses, path)
	require.NoError(t, err)
	require.Equal(t, 2, result.Saved)
	require.Empty(t, result.Errors)

	require.Len(t, saver.saved, 2)
	byUser := make(map[int]moodle.SaveGradeRequest)
	for _, req := range saver.saved {
		byUser[req.UserID] = req
	}
	require.InDelta(t, 7.5, byUser[100].Grade, 1e-9)
	require.Equal(t, "solid", byUser[100].Feedback)
	require.InDelta(t, 9.0, byUser[101].Grade, 1e-9)
	require.False(t, byUser[100].ApplyToAll)
}

func TestUploadTeamAppliesToAll(t *testing.T) {
	courses, a := uploadCourse(t, true)
	a.Submissions[10].GroupID = 1

	path := writeGradingFile(t, `{
  "assignment_id": 42,
  "team_submission": true,
  "grades": [{"name": "TeamA", "id": 10, "grade": 8, "feedback": ""}]
}`)

	saver := &fakeSaver{}
	result, err := newUploadService(saver).Upload(context.Background(), courses, path)
	require.NoError(t, err)
	require.Equal(t, 1, result.Saved)

	require.Len(t, saver.saved, 1)
	require.Equal(t, 100, saver.saved[0].UserID, "team grades go to the group's first member")
	require.True(t, saver.saved[0].ApplyToAll)
}

func TestUploadRejectsGradesAboveMaximum(t *testing.T) {
	courses, _ := uploadCourse(t, false)

	path := writeGradingFile(t, `{
  "assignment_id": 42,
  "team_submission": false,
  "grades": [{"name": "alice", "id": 10, "grade": 11, "feedback": ""}]
}`)

	saver := &fakeSaver{}
	_, err := newUploadService(saver).Upload(context.Background(), courses, path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nothing uploaded")
	require.Empty(t, saver.saved, "fail closed: no grade may reach the server")
}

func TestUploadUnknownAssignment(t *testing.T) {
	courses, _ := uploadCourse(t, false)

	path := writeGradingFile(t, `{
  "assignment_id": 77,
  "team_submission": false,
  "grades": []
}`)

	_, err := newUploadService(&fakeSaver{}).Upload(context.Background(), courses, path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "assignment 77")
}

func TestUploadTeamFlagMismatch(t *testing.T) {
	courses, _ := uploadCourse(t, false)

	path := writeGradingFile(t, `{
  "assignment_id": 42,
  "team_submission": true,
  "grades": []
}`)

	_, err := newUploadService(&fakeSaver{}).Upload(context.Background(), courses, path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "team_submission")
}

func TestUploadFailureIsolation(t *testing.T) {
	courses, a := uploadCourse(t, false)
	addFileSubmission(a, 11, 101, models.File{Filename: "y.txt", Filepath: "/", FileURL: "http://x/2"})

	path := writeGradingFile(t, `{
  "assignment_id": 42,
  "team_submission": false,
  "grades": [
    {"name": "alice", "id": 10, "grade": 7, "feedback": ""},
    {"name": "bob", "id": 11, "grade": 8, "feedback": ""}
  ]
}`)

	saver := &fakeSaver{fail: map[int]bool{100: true}}
	result, err := newUploadService(saver).Upload(context.Background(), courses, path)
	require.NoError(t, err, "per item failures are reported, not fatal")
	require.Equal(t, 1, result.Saved)
	require.Len(t, result.Errors, 1)
	require.Len(t, saver.saved, 1)
	require.Equal(t, 101, saver.saved[0].UserID)
}
