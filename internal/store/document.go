package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// documentCollection stores a whole collection as one JSON array document.
// Used for the kinds the server always delivers as a full snapshot (courses,
// enrolled users), where per-key files would buy nothing.
type documentCollection[T any] struct {
	path   string
	keyOf  func(T) int
	meta   *syncMeta
	cache  map[int]T
	loaded bool
}

func newDocumentCollection[T any](path string, meta *syncMeta, keyOf func(T) int) *documentCollection[T] {
	return &documentCollection[T]{path: path, keyOf: keyOf, meta: meta}
}

// load reads the collection document once. A missing file is an empty
// collection; an unreadable or unparsable one is corrupt.
func (c *documentCollection[T]) load() error {
	if c.loaded {
		return nil
	}

	c.cache = make(map[int]T)
	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		c.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %v", c.path, ErrCorrupt, err)
	}

	var docs []T
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("%s: %w: %v", c.path, ErrCorrupt, err)
	}
	for _, doc := range docs {
		c.cache[c.keyOf(doc)] = doc
	}
	c.loaded = true
	return nil
}

// flush rewrites the collection document from the cache, ordered by key so
// repeated writes of the same state are byte identical.
func (c *documentCollection[T]) flush() error {
	keys := make([]int, 0, len(c.cache))
	for key := range c.cache {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	docs := make([]T, 0, len(keys))
	for _, key := range keys {
		docs = append(docs, c.cache[key])
	}
	return writeDocument(c.path, docs)
}

func (c *documentCollection[T]) Get(key int) (T, error) {
	var zero T
	if err := c.load(); err != nil {
		return zero, err
	}
	doc, ok := c.cache[key]
	if !ok {
		return zero, fmt.Errorf("key %d: %w", key, ErrNotFound)
	}
	return doc, nil
}

func (c *documentCollection[T]) Set(key int, doc T) error {
	if err := c.load(); err != nil {
		return err
	}
	c.cache[key] = doc
	return c.flush()
}

// Replace swaps the entire collection for docs in one write.
func (c *documentCollection[T]) Replace(docs []T) error {
	c.cache = make(map[int]T, len(docs))
	for _, doc := range docs {
		c.cache[c.keyOf(doc)] = doc
	}
	c.loaded = true
	return c.flush()
}

func (c *documentCollection[T]) Keys() ([]int, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	keys := make([]int, 0, len(c.cache))
	for key := range c.cache {
		keys = append(keys, key)
	}
	return keys, nil
}

func (c *documentCollection[T]) Items() (map[int]T, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	items := make(map[int]T, len(c.cache))
	for key, doc := range c.cache {
		items[key] = doc
	}
	return items, nil
}

func (c *documentCollection[T]) LastSync() time.Time { return c.meta.lastSync() }

func (c *documentCollection[T]) SetLastSync(t time.Time) error { return c.meta.setLastSync(t) }
