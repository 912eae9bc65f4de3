package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mdlgrade/internal/models"
	"github.com/noah-isme/mdlgrade/internal/store"
)

func openTree(t *testing.T) *store.WorkTree {
	t.Helper()

	tree, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return tree
}

func TestFolderCollectionRoundTrip(t *testing.T) {
	tree := openTree(t)
	coll := tree.Assignments()

	_, err := coll.Get(7)
	require.ErrorIs(t, err, store.ErrNotFound)

	a := models.Assignment{ID: 7, CourseID: 3, Name: "Week 1", TimeModified: 100}
	require.NoError(t, coll.Set(7, a))

	got, err := coll.Get(7)
	require.NoError(t, err)
	require.Equal(t, a, got)

	keys, err := coll.Keys()
	require.NoError(t, err)
	require.Equal(t, []int{7}, keys)

	items, err := coll.Items()
	require.NoError(t, err)
	require.Equal(t, map[int]models.Assignment{7: a}, items)
}

func TestFolderCollectionReadThroughCache(t *testing.T) {
	root := t.TempDir()
	tree, err := store.Open(root)
	require.NoError(t, err)

	coll := tree.Assignments()
	require.NoError(t, coll.Set(1, models.Assignment{ID: 1, Name: "cached"}))

	_, err = coll.Get(1)
	require.NoError(t, err)

	// Corrupting the file behind the cache must not surface: the document was
	// already read through and stays served from memory.
	path := filepath.Join(root, ".mdlgrade", "assignments", "1.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	got, err := coll.Get(1)
	require.NoError(t, err)
	require.Equal(t, "cached", got.Name)
}

func TestFolderCollectionCorruptDocumentIsFatal(t *testing.T) {
	root := t.TempDir()
	tree, err := store.Open(root)
	require.NoError(t, err)

	path := filepath.Join(root, ".mdlgrade", "assignments", "9.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err = tree.Assignments().Get(9)
	require.ErrorIs(t, err, store.ErrCorrupt)
	require.Contains(t, err.Error(), path, "corrupt errors must name the document")
}

func TestDocumentCollectionReplaceAndGet(t *testing.T) {
	tree := openTree(t)
	users := tree.Users(3)

	require.NoError(t, users.Replace([]models.User{
		{ID: 11, FullName: "alice"},
		{ID: 12, FullName: "bob"},
	}))

	got, err := users.Get(12)
	require.NoError(t, err)
	require.Equal(t, "bob", got.FullName)

	_, err = users.Get(99)
	require.ErrorIs(t, err, store.ErrNotFound)

	keys, err := users.Keys()
	require.NoError(t, err)
	require.ElementsMatch(t, []int{11, 12}, keys)
}

func TestDocumentCollectionEmptyOnFirstUse(t *testing.T) {
	tree := openTree(t)

	items, err := tree.Courses().Items()
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestDocumentCollectionCorruptIsFatal(t *testing.T) {
	root := t.TempDir()
	tree, err := store.Open(root)
	require.NoError(t, err)

	path := filepath.Join(root, ".mdlgrade", "courses.json")
	require.NoError(t, os.WriteFile(path, []byte("][ nope"), 0o644))

	_, err = tree.Courses().Items()
	require.ErrorIs(t, err, store.ErrCorrupt)
}

func TestLastSyncRoundTrip(t *testing.T) {
	root := t.TempDir()
	tree, err := store.Open(root)
	require.NoError(t, err)

	subs := tree.Submissions()
	require.True(t, subs.LastSync().IsZero())

	stamp := time.Unix(1700000000, 0)
	require.NoError(t, subs.SetLastSync(stamp))
	require.Equal(t, stamp.Unix(), subs.LastSync().Unix())

	// Metadata is persisted separately and survives reopening the tree.
	reopened, err := store.Open(root)
	require.NoError(t, err)
	require.Equal(t, stamp.Unix(), reopened.Submissions().LastSync().Unix())

	// Other collections keep their own metadata.
	require.True(t, reopened.Grades().LastSync().IsZero())
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	require.False(t, store.Exists(root))

	_, err := store.Open(root)
	require.NoError(t, err)
	require.True(t, store.Exists(root))
}
