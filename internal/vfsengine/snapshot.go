package vfsengine

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/shibudb/vfsdb/internal/recordcodec"
	"github.com/shibudb/vfsdb/internal/vfserr"
)

// SaveState flushes the memtable and writes the engine state snapshot
// (manager_name, next_id, current_offset, primary_index) as a single framed
// record at path, overwriting whatever was there before.
func (e *Engine) SaveState(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.flushSome(e.memtable.len()); err != nil {
		return err
	}

	payload := e.encodeState()
	framed := recordcodec.Encode(payload)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return vfserr.NewIOError("open state file", err)
	}
	defer f.Close()
	if _, err := f.Write(framed); err != nil {
		return vfserr.NewIOError("write state file", err)
	}
	return nil
}

// LoadState replaces next_id, current_offset, manager_name, and the primary
// index from the snapshot at path. The memtable is left empty.
func (e *Engine) LoadState(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return vfserr.NewIOError("read state file", err)
	}
	res, err := recordcodec.ScanOne(data)
	if err != nil {
		return vfserr.NewSerializationError("scan state record", err)
	}

	manager, nextID, offset, entries, err := decodeState(res.Payload)
	if err != nil {
		return vfserr.NewSerializationError("decode state record", err)
	}

	if err := e.primaryIndex.Reset(); err != nil {
		return vfserr.NewIOError("reset primary index", err)
	}
	for _, en := range entries {
		if err := e.primaryIndex.Put(en[0], int64(en[1])); err != nil {
			return vfserr.NewIOError("rebuild primary index", err)
		}
	}

	e.managerName = manager
	e.nextID = nextID
	e.currentOffset = offset
	e.memtable = newMemtable()
	return nil
}

func (e *Engine) encodeState() []byte {
	var buf []byte
	buf = stateAppendString(buf, e.managerName)
	buf = stateAppendU64(buf, e.nextID)
	buf = stateAppendU64(buf, uint64(e.currentOffset))

	var entries [][2]uint64
	e.primaryIndex.Ascend(func(id uint64, offset int64) bool {
		entries = append(entries, [2]uint64{id, uint64(offset)})
		return true
	})
	buf = stateAppendU32(buf, uint32(len(entries)))
	for _, en := range entries {
		buf = stateAppendU64(buf, en[0])
		buf = stateAppendU64(buf, en[1])
	}
	return buf
}

func decodeState(buf []byte) (manager string, nextID uint64, offset int64, entries [][2]uint64, err error) {
	pos := 0
	readU32 := func() (uint32, error) {
		if pos+4 > len(buf) {
			return 0, fmt.Errorf("unexpected end of state buffer")
		}
		v := binary.LittleEndian.Uint32(buf[pos : pos+4])
		pos += 4
		return v, nil
	}
	readU64 := func() (uint64, error) {
		if pos+8 > len(buf) {
			return 0, fmt.Errorf("unexpected end of state buffer")
		}
		v := binary.LittleEndian.Uint64(buf[pos : pos+8])
		pos += 8
		return v, nil
	}
	readString := func() (string, error) {
		n, err := readU32()
		if err != nil {
			return "", err
		}
		if pos+int(n) > len(buf) {
			return "", fmt.Errorf("unexpected end of state buffer")
		}
		s := string(buf[pos : pos+int(n)])
		pos += int(n)
		return s, nil
	}

	manager, err = readString()
	if err != nil {
		return
	}
	nextID, err = readU64()
	if err != nil {
		return
	}
	var rawOffset uint64
	rawOffset, err = readU64()
	if err != nil {
		return
	}
	offset = int64(rawOffset)

	count, err := readU32()
	if err != nil {
		return
	}
	entries = make([][2]uint64, count)
	for i := range entries {
		id, e1 := readU64()
		if e1 != nil {
			err = e1
			return
		}
		off, e2 := readU64()
		if e2 != nil {
			err = e2
			return
		}
		entries[i] = [2]uint64{id, off}
	}
	return
}

func stateAppendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func stateAppendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func stateAppendString(buf []byte, s string) []byte {
	buf = stateAppendU32(buf, uint32(len(s)))
	return append(buf, s...)
}
