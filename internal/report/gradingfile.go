package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// GradingFileSchema is the wire contract of the grading file. Edited files
// are validated against it before any record is interpreted.
const GradingFileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["assignment_id", "team_submission", "grades"],
  "properties": {
    "assignment_id": {"type": "integer", "minimum": 1},
    "team_submission": {"type": "boolean"},
    "grades": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "id", "grade", "feedback"],
        "properties": {
          "name": {"type": "string"},
          "id": {"type": "integer", "minimum": 1},
          "grade": {"type": "number", "minimum": 0},
          "feedback": {"type": "string"}
        }
      }
    }
  }
}`

// GradingRecord is one grade line of a grading file. The id field is
// two-phase: it holds the submission id when the file is exported and must be
// resolved to the submitter's user id before upload (see ResolveUserIDs).
type GradingRecord struct {
	Name     string  `json:"name" validate:"required"`
	ID       int     `json:"id" validate:"required,gt=0"`
	Grade    float64 `json:"grade" validate:"gte=0"`
	Feedback string  `json:"feedback"`
}

// GradingFile is the editable grading document for one assignment.
type GradingFile struct {
	AssignmentID   int             `json:"assignment_id" validate:"required,gt=0"`
	TeamSubmission bool            `json:"team_submission"`
	Grades         []GradingRecord `json:"grades" validate:"dive"`
}

// NewGradingFile produces the grading document for an assignment: one record
// per valid submission with the submitter's (or group's) display name, the
// submission id, the current grade and empty feedback. An ungraded submission
// gets the explicit 0.0 placeholder, which is a default for editing, not a
// real zero grade. Records are sorted by their rendered line so output is
// deterministic.
func NewGradingFile(a *Assignment) GradingFile {
	f := GradingFile{
		AssignmentID:   a.ID,
		TeamSubmission: a.TeamSubmission,
	}

	for _, s := range a.Submissions {
		record := GradingRecord{
			Name: s.Prefix(),
			ID:   s.ID,
		}
		if value, ok := s.Grade(); ok {
			record.Grade = value
		}
		f.Grades = append(f.Grades, record)
	}

	sort.Slice(f.Grades, func(i, j int) bool {
		return renderedLine(f.Grades[i]) < renderedLine(f.Grades[j])
	})
	return f
}

func renderedLine(r GradingRecord) string {
	line, _ := json.Marshal(r)
	return string(line)
}

// Write stores the grading file under dir as grading--<assignment id>.json.
// An existing file at the target path is never overwritten; a numbered
// variant (_00, _01, ...) is chosen instead.
func (f GradingFile) Write(dir string) (string, error) {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode grading file: %w", err)
	}

	base := fmt.Sprintf("grading--%d", f.AssignmentID)
	path, err := variantPath(dir, base, ".json")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write grading file: %w", err)
	}
	return path, nil
}

// variantPath returns dir/base+ext, or the first free numbered variant when
// the plain name is taken.
func variantPath(dir, base, ext string) (string, error) {
	path := filepath.Join(dir, base+ext)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	}
	for i := 0; i < 100; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%02d%s", base, i, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free variant for %s in %s", base, dir)
}

var gradingFileSchema = jsonschema.MustCompileString("grading.json", GradingFileSchema)

// ParseGradingFile reads an edited grading file, checking it against the JSON
// Schema and the record constraints before returning it.
func ParseGradingFile(path string, validate *validator.Validate) (GradingFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return GradingFile{}, fmt.Errorf("read grading file: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return GradingFile{}, fmt.Errorf("grading file %s: %w", path, err)
	}
	if err := gradingFileSchema.Validate(doc); err != nil {
		return GradingFile{}, fmt.Errorf("grading file %s: %w", path, err)
	}

	var f GradingFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return GradingFile{}, fmt.Errorf("grading file %s: %w", path, err)
	}
	if err := validate.Struct(f); err != nil {
		return GradingFile{}, fmt.Errorf("grading file %s: %w", path, err)
	}
	return f, nil
}

// ValidateAgainst checks every record's grade against the assignment maximum.
// Any offender rejects the whole batch; the error lists every offending
// record so the user can fix the file in one pass.
func (f GradingFile) ValidateAgainst(a *Assignment) error {
	var offenders []string
	for _, r := range f.Grades {
		if r.Grade > a.MaxPoints {
			offenders = append(offenders, fmt.Sprintf("%s (id %d): %g > %g", r.Name, r.ID, r.Grade, a.MaxPoints))
		}
	}
	if len(offenders) > 0 {
		return fmt.Errorf("grades exceed the assignment maximum, nothing uploaded: %s", strings.Join(offenders, "; "))
	}
	return nil
}

// ResolveUserIDs performs the import phase of the two-phase id scheme: each
// record's submission id is resolved to the submitter's user id, or, for team
// submissions, to the user id of the group's first member (members are kept
// sorted by id). Precondition: record ids are submission ids of the given
// assignment; postcondition: the result is keyed purely by user id.
func (f GradingFile) ResolveUserIDs(a *Assignment) (map[int]GradingRecord, error) {
	resolved := make(map[int]GradingRecord, len(f.Grades))

	for _, r := range f.Grades {
		s, ok := a.Submissions[r.ID]
		if !ok {
			return nil, fmt.Errorf("record %q: no submission with id %d", r.Name, r.ID)
		}

		userID := s.UserID
		if a.TeamSubmission {
			group, ok := s.Group()
			if !ok || len(group.Members) == 0 {
				return nil, fmt.Errorf("record %q: group %d has no resolvable members", r.Name, s.GroupID)
			}
			userID = group.Members[0].ID
		}
		resolved[userID] = r
	}
	return resolved, nil
}
