package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mdlgrade/internal/archive"
	"github.com/noah-isme/mdlgrade/internal/models"
	"github.com/noah-isme/mdlgrade/internal/moodle"
	"github.com/noah-isme/mdlgrade/internal/report"
)

var nonWord = regexp.MustCompile(`\W`)

// Sanitize replaces every non-word character of a display name with an
// underscore so it is safe as a file or folder name component.
func Sanitize(name string) string {
	return nonWord.ReplaceAllString(name, "_")
}

// WorkItem is one planned transfer: a remote file descriptor resolved to its
// local destination.
type WorkItem struct {
	SubmissionID int
	File         models.File
}

// DownloadResult summarizes one download batch.
type DownloadResult struct {
	Fetched int
	Errors  []error
}

// DownloadService plans submission-file work items and fetches them on a
// bounded worker pool. Planning is pure naming over the aggregation graph;
// all network I/O happens in Fetch.
type DownloadService struct {
	files   moodle.FileFetcher
	workers int
	timeout time.Duration
	logger  zerolog.Logger
}

// NewDownloadService builds a download service. workers bounds the pool
// width; timeout caps each individual transfer.
func NewDownloadService(files moodle.FileFetcher, workers int, timeout time.Duration, logger zerolog.Logger) *DownloadService {
	return &DownloadService{
		files:   files,
		workers: workers,
		timeout: timeout,
		logger:  logger.With().Str("component", "download_service").Logger(),
	}
}

// Plan turns the assignments into a deterministic work-item list. The naming
// scheme: each assignment gets a folder sanitize(name)--id under targetDir; a
// submission with several files keeps its relative paths under a
// sanitize(prefix) subfolder; a submission with exactly one file lands
// directly in the assignment folder as sanitize(prefix)--<flattened path>.
// Every planned item carries the resolved local path in File.LocalPath.
func (d *DownloadService) Plan(targetDir string, assignments []*report.Assignment) []WorkItem {
	var items []WorkItem

	for _, a := range assignments {
		folder := filepath.Join(targetDir, fmt.Sprintf("%s--%d", Sanitize(a.Name), a.ID))

		ids := make([]int, 0, len(a.Submissions))
		for id := range a.Submissions {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		for _, id := range ids {
			s := a.Submissions[id]
			files := s.Files()
			prefix := Sanitize(s.Prefix())

			for _, f := range files {
				if len(files) == 1 {
					flat := strings.ReplaceAll(f.RelativePath(), "/", "_")
					f.LocalPath = filepath.Join(folder, fmt.Sprintf("%s--%s", prefix, flat))
				} else {
					f.LocalPath = filepath.Join(folder, prefix, filepath.FromSlash(f.RelativePath()))
				}
				items = append(items, WorkItem{SubmissionID: s.ID, File: f})
			}
		}
	}
	return items
}

// Fetch transfers every planned item. Tasks run concurrently and fail
// independently: a broken transfer is reported at the end of the batch and
// never aborts its siblings. Zip payloads are extracted through the archive
// flattener instead of being written verbatim.
func (d *DownloadService) Fetch(ctx context.Context, items []WorkItem) DownloadResult {
	errs := runTasks(ctx, len(items), d.workers, d.timeout,
		func(taskCtx context.Context, index int) error {
			return d.fetchOne(taskCtx, items[index])
		},
		func(done int, err error) {
			event := d.logger.Info()
			if err != nil {
				event = d.logger.Warn().Err(err)
			}
			event.Int("done", done).Int("total", len(items)).Msg("download progress")
		},
	)

	return DownloadResult{Fetched: len(items) - len(errs), Errors: errs}
}

func (d *DownloadService) fetchOne(ctx context.Context, item WorkItem) error {
	data, err := d.files.FetchFile(ctx, item.File.FileURL)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(item.File.Filename), ".zip") && archive.IsZip(data) {
		return d.writeArchive(item, data)
	}
	return writeFile(item.File.LocalPath, data)
}

// writeArchive unpacks a zip payload under a directory named after the
// file's local path, with wrapper directories collapsed.
func (d *DownloadService) writeArchive(item WorkItem, data []byte) error {
	entries, err := archive.Extract(data)
	if err != nil {
		return fmt.Errorf("%s: %w", item.File.Filename, err)
	}

	root := strings.TrimSuffix(item.File.LocalPath, filepath.Ext(item.File.LocalPath))
	for _, entry := range archive.Flatten(entries) {
		if err := writeFile(filepath.Join(root, filepath.FromSlash(entry.Path)), entry.Data); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
