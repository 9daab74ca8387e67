package storage

import (
	"sync"

	"github.com/relstore/reldb-core/common"
	"github.com/tidwall/btree"
)

// headerRecord is a single (index_name -> root_page_id) binding (spec §6:
// "Header page stores (index_name -> root_page_id) records").
type headerRecord struct {
	name string
	root common.PageID
}

func headerLess(a, b headerRecord) bool {
	return a.name < b.name
}

// HeaderCatalog is the in-memory directory of every live index's root page,
// backed by an ordered tidwall/btree.BTreeG rather than a raw map so entries
// can be enumerated in name order for diagnostics. Grounded on the teacher's
// indexing/mem_btree_index.go, which wraps the same generic tree for an
// in-memory ordered index; here it plays the header-page role instead of
// being the index itself, since the spec's actual indexes must be
// page-resident (§4.5, §4.4).
type HeaderCatalog struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[headerRecord]
}

// NewHeaderCatalog returns an empty catalog.
func NewHeaderCatalog() *HeaderCatalog {
	return &HeaderCatalog{tree: btree.NewBTreeG(headerLess)}
}

// Register publishes name's root page, overwriting any prior root for the
// same name (a tree that split or changed root republishes here).
func (c *HeaderCatalog) Register(name string, root common.PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.Set(headerRecord{name: name, root: root})
}

// Lookup returns the root page id registered for name.
func (c *HeaderCatalog) Lookup(name string) (common.PageID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.tree.Get(headerRecord{name: name})
	if !ok {
		return common.InvalidPageID, false
	}
	return rec.root, true
}

// Remove deletes name's registration, e.g. after an index is dropped.
func (c *HeaderCatalog) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.Delete(headerRecord{name: name})
}

// Names returns every registered index name in sorted order.
func (c *HeaderCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, c.tree.Len())
	c.tree.Scan(func(rec headerRecord) bool {
		names = append(names, rec.name)
		return true
	})
	return names
}

// Len reports the number of registered indexes.
func (c *HeaderCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Len()
}
