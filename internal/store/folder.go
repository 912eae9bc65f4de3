package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// folderCollection stores one JSON document per key as <dir>/<key>.json.
type folderCollection[T any] struct {
	dir   string
	cache map[int]T
	meta  *syncMeta
}

func newFolderCollection[T any](dir string, meta *syncMeta) *folderCollection[T] {
	return &folderCollection[T]{dir: dir, cache: make(map[int]T), meta: meta}
}

func (c *folderCollection[T]) path(key int) string {
	return filepath.Join(c.dir, strconv.Itoa(key)+".json")
}

func (c *folderCollection[T]) Get(key int) (T, error) {
	if doc, ok := c.cache[key]; ok {
		return doc, nil
	}

	var doc T
	raw, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return doc, fmt.Errorf("key %d: %w", key, ErrNotFound)
	}
	if err != nil {
		return doc, fmt.Errorf("%s: %w: %v", c.path(key), ErrCorrupt, err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("%s: %w: %v", c.path(key), ErrCorrupt, err)
	}

	c.cache[key] = doc
	return doc, nil
}

func (c *folderCollection[T]) Set(key int, doc T) error {
	if err := writeDocument(c.path(key), doc); err != nil {
		return err
	}
	c.cache[key] = doc
	return nil
}

func (c *folderCollection[T]) Keys() ([]int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.dir, err)
	}

	var keys []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() {
			continue
		}
		key, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (c *folderCollection[T]) Items() (map[int]T, error) {
	keys, err := c.Keys()
	if err != nil {
		return nil, err
	}

	items := make(map[int]T, len(keys))
	for _, key := range keys {
		doc, err := c.Get(key)
		if err != nil {
			return nil, err
		}
		items[key] = doc
	}
	return items, nil
}

func (c *folderCollection[T]) LastSync() time.Time { return c.meta.lastSync() }

func (c *folderCollection[T]) SetLastSync(t time.Time) error { return c.meta.setLastSync(t) }

// writeDocument marshals v and writes it atomically: first to a uniquely named
// temp file in the target directory, then renamed over the destination.
func writeDocument(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
