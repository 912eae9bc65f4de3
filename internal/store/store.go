// Package store implements the work-tree persistence layer: one key addressed
// JSON document collection per entity kind, plus a small sync-metadata record
// per incrementally fetched kind. Collections cache documents in memory after
// the first read; the cache is only ever refreshed by Set. Nothing here is
// safe for concurrent use — all merge and aggregation logic runs on a single
// goroutine, and worker-pool results are written back from that same
// goroutine.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/noah-isme/mdlgrade/internal/models"
)

var (
	// ErrNotFound indicates the requested key has no persisted document.
	ErrNotFound = errors.New("document not found")
	// ErrCorrupt indicates a persisted document exists but cannot be read or
	// parsed. This is fatal for the collection and must never be treated as an
	// empty document.
	ErrCorrupt = errors.New("corrupt document")
)

// Collection is the contract every persisted entity kind exposes, regardless
// of whether it is stored as one file per key or as a single collection
// document.
type Collection[T any] interface {
	// Get returns the document stored under key, reading through the
	// in-memory cache. Absent keys yield ErrNotFound.
	Get(key int) (T, error)
	// Set durably writes the document and updates the cache.
	Set(key int, doc T) error
	// Keys enumerates all persisted keys in unspecified order.
	Keys() ([]int, error)
	// Items enumerates all persisted documents keyed by id.
	Items() (map[int]T, error)
	// LastSync returns the collection's last successful sync time, zero when
	// the collection has never been synced.
	LastSync() time.Time
	// SetLastSync persists the last successful sync time.
	SetLastSync(t time.Time) error
}

// SnapshotCollection is a Collection backed by a single document that the
// server always delivers as a full snapshot, so it can also be replaced
// wholesale.
type SnapshotCollection[T any] interface {
	Collection[T]
	// Replace swaps the entire persisted collection for docs in one write.
	Replace(docs []T) error
}

const treeDir = ".mdlgrade"

// WorkTree is the explicit root handle for one grading session's persisted
// state. All paths derive from the root passed to Open; the process working
// directory is never consulted.
type WorkTree struct {
	root string

	assignments Collection[models.Assignment]
	submissions Collection[[]models.Submission]
	grades      Collection[[]models.Grade]
	courses     SnapshotCollection[models.Course]
	users       map[int]SnapshotCollection[models.User]
}

// Open prepares the work tree rooted at root, creating the on-disk layout on
// first use. A missing directory is not an error; a present but unusable one
// is.
func Open(root string) (*WorkTree, error) {
	base := filepath.Join(root, treeDir)
	for _, dir := range []string{base, filepath.Join(base, "assignments"), filepath.Join(base, "submissions"), filepath.Join(base, "grades"), filepath.Join(base, "users"), filepath.Join(base, "sync")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create work tree at %s: %w", dir, err)
		}
	}

	t := &WorkTree{root: root, users: make(map[int]SnapshotCollection[models.User])}
	t.assignments = newFolderCollection[models.Assignment](filepath.Join(base, "assignments"), t.meta("assignments"))
	t.submissions = newFolderCollection[[]models.Submission](filepath.Join(base, "submissions"), t.meta("submissions"))
	t.grades = newFolderCollection[[]models.Grade](filepath.Join(base, "grades"), t.meta("grades"))
	t.courses = newDocumentCollection(filepath.Join(base, "courses.json"), t.meta("courses"), func(c models.Course) int { return c.ID })
	return t, nil
}

// Exists reports whether root already holds an initialized work tree.
func Exists(root string) bool {
	info, err := os.Stat(filepath.Join(root, treeDir))
	return err == nil && info.IsDir()
}

// Root returns the directory the work tree was opened at.
func (t *WorkTree) Root() string { return t.root }

// ConfigPath returns the configuration document location for a root that may
// not have been opened yet.
func ConfigPath(root string) string {
	return filepath.Join(root, treeDir, "config.json")
}

// Assignments returns the per-key assignment collection.
func (t *WorkTree) Assignments() Collection[models.Assignment] { return t.assignments }

// Submissions returns the submission-list collection, keyed by assignment id.
func (t *WorkTree) Submissions() Collection[[]models.Submission] { return t.submissions }

// Grades returns the grade-list collection, keyed by assignment id.
func (t *WorkTree) Grades() Collection[[]models.Grade] { return t.grades }

// Courses returns the singleton-document course collection.
func (t *WorkTree) Courses() SnapshotCollection[models.Course] { return t.courses }

// Users returns the enrolled-user collection of one course. Each course's
// users are a single collection document; repeated calls share one cache.
func (t *WorkTree) Users(courseID int) SnapshotCollection[models.User] {
	if c, ok := t.users[courseID]; ok {
		return c
	}
	path := filepath.Join(t.root, treeDir, "users", fmt.Sprintf("%d.json", courseID))
	c := newDocumentCollection(path, t.meta(fmt.Sprintf("users_%d", courseID)), func(u models.User) int { return u.ID })
	t.users[courseID] = c
	return c
}

func (t *WorkTree) meta(kind string) *syncMeta {
	return &syncMeta{path: filepath.Join(t.root, treeDir, "sync", kind+".json")}
}
