// Package primaryindex implements the ordered id->offset index that tracks
// where each flushed vector lives in the data file. An id lives in exactly
// one of the engine's memtable or this index, never both (spec §4.2).
//
// Adapted from the teacher's internal/index/BTreeIndex.go: same
// github.com/google/btree ordered tree plus golang.org/x/sys/unix
// mmap/Msync-backed persistence, repurposed from string keys to uint64
// vector ids mapped to int64 file offsets.
package primaryindex

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/google/btree"
	"golang.org/x/sys/unix"
)

// entrySize is the on-disk width of one index record: an 8-byte id and an
// 8-byte offset, both little-endian.
const entrySize = 16

const initialFileSize = 4096

// Index is an ordered, mmap-persisted map from vector id to its offset in
// the engine's data file.
type Index struct {
	mu          sync.RWMutex
	mmapLock    sync.Mutex
	tree        *btree.BTree
	file        *os.File
	mmapData    []byte
	writeOffset int
}

type item struct {
	ID     uint64
	Offset int64
}

func (it item) Less(other btree.Item) bool {
	return it.ID < other.(item).ID
}

// Open loads or creates the mmap-backed index file at path.
func Open(path string) (*Index, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("primaryindex: open %s: %w", path, err)
	}

	size, err := file.Seek(0, 2)
	if err != nil {
		return nil, fmt.Errorf("primaryindex: seek %s: %w", path, err)
	}
	if size == 0 {
		size = initialFileSize
		if err := file.Truncate(size); err != nil {
			return nil, fmt.Errorf("primaryindex: truncate %s: %w", path, err)
		}
	}

	mmapData, err := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("primaryindex: mmap %s: %w", path, err)
	}

	idx := &Index{
		tree:     btree.New(2),
		file:     file,
		mmapData: mmapData,
	}
	idx.writeOffset = idx.loadFromMmap()
	return idx, nil
}

func (idx *Index) loadFromMmap() int {
	idx.mu.Lock()
	idx.mmapLock.Lock()
	defer idx.mu.Unlock()
	defer idx.mmapLock.Unlock()

	offset := 0
	for offset+entrySize <= len(idx.mmapData) {
		id := binary.LittleEndian.Uint64(idx.mmapData[offset : offset+8])
		off := int64(binary.LittleEndian.Uint64(idx.mmapData[offset+8 : offset+16]))
		if id == 0 && off == 0 {
			// Untouched tail of a freshly-truncated file.
			break
		}
		idx.tree.ReplaceOrInsert(item{ID: id, Offset: off})
		offset += entrySize
	}
	return offset
}

// Put records that id's vector lives at fileOffset, both in memory and on
// the mmap-backed file.
func (idx *Index) Put(id uint64, fileOffset int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.tree.ReplaceOrInsert(item{ID: id, Offset: fileOffset})
	return idx.appendEntry(id, fileOffset)
}

// Get returns the file offset for id, if known.
func (idx *Index) Get(id uint64) (int64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	found := idx.tree.Get(item{ID: id})
	if found == nil {
		return 0, false
	}
	return found.(item).Offset, true
}

// Has reports whether id has an entry in the index.
func (idx *Index) Has(id uint64) bool {
	_, ok := idx.Get(id)
	return ok
}

// Len reports the number of entries currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// Ascend visits every (id, offset) pair in ascending id order.
func (idx *Index) Ascend(visit func(id uint64, offset int64) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	idx.tree.Ascend(func(i btree.Item) bool {
		it := i.(item)
		return visit(it.ID, it.Offset)
	})
}

// Reset clears every entry from the index, both in memory and on disk.
func (idx *Index) Reset() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree = btree.New(2)
	return idx.persist()
}

func (idx *Index) appendEntry(id uint64, offset int64) error {
	idx.mmapLock.Lock()
	defer idx.mmapLock.Unlock()

	if idx.writeOffset+entrySize > len(idx.mmapData) {
		newSize := int64(len(idx.mmapData)*2 + entrySize + initialFileSize)
		if err := idx.growLocked(newSize); err != nil {
			return err
		}
	}

	off := idx.writeOffset
	binary.LittleEndian.PutUint64(idx.mmapData[off:off+8], id)
	binary.LittleEndian.PutUint64(idx.mmapData[off+8:off+16], uint64(offset))
	idx.writeOffset += entrySize

	return unix.Msync(idx.mmapData, unix.MS_SYNC)
}

// persist rewrites the entire index file from the in-memory tree. Used by
// Reset, where a full-file rewrite is simpler and safer than chasing
// individual deletions through the append-only mmap layout.
func (idx *Index) persist() error {
	idx.mmapLock.Lock()
	if err := syscall.Munmap(idx.mmapData); err != nil {
		idx.mmapLock.Unlock()
		return fmt.Errorf("primaryindex: munmap: %w", err)
	}
	if err := idx.file.Truncate(0); err != nil {
		idx.mmapLock.Unlock()
		return fmt.Errorf("primaryindex: truncate: %w", err)
	}
	if err := idx.file.Truncate(initialFileSize); err != nil {
		idx.mmapLock.Unlock()
		return fmt.Errorf("primaryindex: truncate: %w", err)
	}
	mmapData, err := syscall.Mmap(int(idx.file.Fd()), 0, initialFileSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		idx.mmapLock.Unlock()
		return fmt.Errorf("primaryindex: mmap: %w", err)
	}
	idx.mmapData = mmapData
	idx.writeOffset = 0
	idx.mmapLock.Unlock()

	var appendErr error
	idx.tree.Ascend(func(i btree.Item) bool {
		it := i.(item)
		if err := idx.appendEntry(it.ID, it.Offset); err != nil {
			appendErr = err
			return false
		}
		return true
	})
	return appendErr
}

func (idx *Index) growLocked(newSize int64) error {
	if err := syscall.Munmap(idx.mmapData); err != nil {
		return fmt.Errorf("primaryindex: munmap: %w", err)
	}
	if err := idx.file.Truncate(newSize); err != nil {
		return fmt.Errorf("primaryindex: truncate: %w", err)
	}
	mmapData, err := syscall.Mmap(int(idx.file.Fd()), 0, int(newSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("primaryindex: mmap: %w", err)
	}
	idx.mmapData = mmapData
	return nil
}

// Close unmaps the index file and closes the *os.File that Open opened.
func (idx *Index) Close() error {
	idx.mmapLock.Lock()
	defer idx.mmapLock.Unlock()
	if err := syscall.Munmap(idx.mmapData); err != nil {
		return fmt.Errorf("primaryindex: munmap: %w", err)
	}
	return idx.file.Close()
}
