package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/relstore/reldb-core/common"
)

// DiskManager is the external collaborator spec §1/§6 summarizes: a raw
// file I/O wrapper offering byte-addressable page reads and writes. The
// core (buffer pool, indexes) never constructs page ids on its own from
// this interface — Buffer Pool Instances assign ids locally (spec §4.2) —
// so AllocatePage exists only to satisfy callers that want disk-manager-
// driven ids (e.g. a single, unsharded pool wired directly to one file).
type DiskManager interface {
	// ReadPage reads the page identified by id into buf, which must be
	// exactly common.PageSize bytes. Reading a page beyond the file's
	// current extent yields a zero-filled buffer, matching a sparse file's
	// semantics — the buffer pool relies on this for pages it has never
	// written (spec S1's fresh new() pages).
	ReadPage(id common.PageID, buf []byte) error
	// WritePage writes buf (exactly common.PageSize bytes) to the page
	// identified by id, extending the backing file if necessary.
	WritePage(id common.PageID, buf []byte) error
	// AllocatePage returns a fresh page id. Not used by the sharded
	// Parallel Buffer Pool layout (spec §6), which assigns ids itself.
	AllocatePage() (common.PageID, error)
	// Close releases the underlying file handle.
	Close() error
}

// FileDiskManager implements DiskManager over a single OS file, growing it
// on demand. Adapted from the teacher's DiskDBFile (storage/disk_storage.go)
// but simplified to a flat PageID space instead of one file per table Oid,
// matching this spec's single-file-per-instance model (§4.2/§4.3).
type FileDiskManager struct {
	file *os.File

	mu       sync.Mutex
	numPages int32
	nextID   int32
}

// NewFileDiskManager opens (or creates) the file at path and initializes
// the manager's logical page count from its current size.
func NewFileDiskManager(path string) (*FileDiskManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	numPages := int32(stat.Size() / int64(common.PageSize))
	return &FileDiskManager{file: f, numPages: numPages, nextID: numPages}, nil
}

func (m *FileDiskManager) ensureCapacity(id common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	need := int32(id) + 1
	if need <= m.numPages {
		return nil
	}
	if err := m.file.Truncate(int64(need) * int64(common.PageSize)); err != nil {
		return fmt.Errorf("failed to grow disk file to %d pages: %w", need, err)
	}
	m.numPages = need
	return nil
}

// ReadPage reads a page. Pages past the current extent are treated as
// all-zero, so a freshly allocated page id that was never written reads
// back as zeroed bytes (matches spec §4.2 new()'s "zero the frame buffer").
func (m *FileDiskManager) ReadPage(id common.PageID, buf []byte) error {
	common.Assert(len(buf) == common.PageSize, "read buffer must be exactly PageSize")
	m.mu.Lock()
	beyondExtent := int32(id) >= m.numPages
	m.mu.Unlock()
	if beyondExtent {
		clear(buf)
		return nil
	}
	offset := int64(id) * int64(common.PageSize)
	_, err := m.file.ReadAt(buf, offset)
	return err
}

// WritePage writes a page, growing the file if id is beyond its extent.
func (m *FileDiskManager) WritePage(id common.PageID, buf []byte) error {
	common.Assert(len(buf) == common.PageSize, "write buffer must be exactly PageSize")
	if err := m.ensureCapacity(id); err != nil {
		return err
	}
	offset := int64(id) * int64(common.PageSize)
	_, err := m.file.WriteAt(buf, offset)
	return err
}

// AllocatePage returns the next sequential page id, without touching disk.
func (m *FileDiskManager) AllocatePage() (common.PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return common.PageID(id), nil
}

// Close closes the underlying file.
func (m *FileDiskManager) Close() error {
	return m.file.Close()
}
