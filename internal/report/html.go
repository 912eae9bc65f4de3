package report

import (
	"fmt"
	"html"
	"os"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// editorPolicy sanitizes submitter-provided rich text before it is embedded
// in the merged document. Moodle delivers raw user HTML.
var editorPolicy = bluemonday.UGCPolicy()

// MergedHTML concatenates the editor-field text of every valid submission
// into one reviewable HTML document. Each block is headed by the group name
// plus member names for team assignments, the submitter's name otherwise.
// Blocks are sorted by their rendered text for deterministic output. Returns
// the empty string when no submission carries editor content, in which case
// no file should be written.
func MergedHTML(a *Assignment) string {
	var blocks []string
	for _, s := range a.Submissions {
		text := s.EditorText()
		if text == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("<h2>%s</h2>\n%s\n", html.EscapeString(blockHeading(s)), editorPolicy.Sanitize(text)))
	}
	if len(blocks) == 0 {
		return ""
	}
	sort.Strings(blocks)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(a.Name))
	b.WriteString("</title></head>\n<body>\n<h1>")
	b.WriteString(html.EscapeString(a.Name))
	b.WriteString("</h1>\n")
	for _, block := range blocks {
		b.WriteString(block)
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// WriteMergedHTML stores the merged document under dir as
// merged--<assignment id>.html, following the same never-overwrite numbered
// variant rule as grading files. Returns an empty path when the assignment
// has no editor content and nothing was written.
func WriteMergedHTML(dir string, a *Assignment) (string, error) {
	content := MergedHTML(a)
	if content == "" {
		return "", nil
	}

	path, err := variantPath(dir, fmt.Sprintf("merged--%d", a.ID), ".html")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write merged document: %w", err)
	}
	return path, nil
}

func blockHeading(s *Submission) string {
	if !s.Assignment.TeamSubmission {
		return s.Prefix()
	}

	group, ok := s.Group()
	if !ok {
		return s.Prefix()
	}
	names := make([]string, 0, len(group.Members))
	for _, m := range group.Members {
		names = append(names, m.FullName)
	}
	return fmt.Sprintf("%s (%s)", group.Name, strings.Join(names, ", "))
}
