package app

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hashicorp/raft"
	"github.com/moontrade/mdbx-go"
	"github.com/moontrade/squirrel/logger"
)

var errPathNotDir = errors.New("path is not a directory")

const (
	logEnvFlags = mdbx.EnvNoMetaSync |
		mdbx.EnvNoTLS |
		mdbx.EnvWriteMap |
		mdbx.EnvLIFOReclaim |
		mdbx.EnvNoMemInit |
		mdbx.EnvCoalesce

	stableEnvFlags = mdbx.EnvSyncDurable |
		mdbx.EnvNoTLS |
		mdbx.EnvWriteMap |
		mdbx.EnvLIFOReclaim |
		mdbx.EnvNoMemInit |
		mdbx.EnvCoalesce

	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

var (
	_ raft.LogStore    = (*raftStore)(nil)
	_ raft.StableStore = (*raftStore)(nil)

	stableGeometry = mdbx.Geometry{
		SizeLower:       64 * kib,
		SizeNow:         8 * kib,
		SizeUpper:       256 * kib,
		GrowthStep:      64 * kib,
		ShrinkThreshold: 128 * kib,
		PageSize:        4 * kib,
	}
	logGeometry = mdbx.Geometry{
		SizeLower:       1 * mib,
		SizeNow:         1 * mib,
		SizeUpper:       4 * gib,
		GrowthStep:      16 * mib,
		ShrinkThreshold: 8 * mib,
		PageSize:        8 * kib,
	}
)

const (
	raftStableDBI = "raftstable"
	raftLogDBI    = "raftlog"

	// index, term, appended at, type, data length, extensions length
	logHeaderSize = 8 + 8 + 8 + 1 + 4 + 4
)

func storeInit(conf Config, dir string) (raft.LogStore, raft.StableStore) {
	store, err := openRaftStore(filepath.Join(dir, "store"), conf.NoSync, 0755)
	if err != nil {
		logger.Fatal(fmt.Errorf("mdbx store open: %w", err))
	}
	return store, store
}

// raftStore keeps the raft log and the raft stable values in two separate
// mdbx environments. The log environment skips meta syncs and is flushed
// after every batch unless noSync is set.
type raftStore struct {
	log        *mdbx.Store
	stable     *mdbx.Store
	logDBI     mdbx.DBI
	stableDBI  mdbx.DBI
	noSync     bool
	firstIndex uint64
	lastIndex  uint64

	mu    sync.RWMutex
	cache map[string][]byte
}

// openEnv opens a single table mdbx environment. open runs in the first
// update transaction and must open the table.
func openEnv(path string, flags mdbx.EnvFlags, mode os.FileMode,
	geo mdbx.Geometry, open func(tx *mdbx.Tx) mdbx.Error,
) (*mdbx.Store, error) {
	return mdbx.Open(path, flags, mode,
		func(env *mdbx.Env, create bool) error {
			if e := env.SetMaxDBS(1); e != mdbx.ErrSuccess {
				return e
			}
			if e := env.SetGeometry(geo); e != mdbx.ErrSuccess {
				return e
			}
			return nil
		}, func(store *mdbx.Store, create bool) error {
			return store.Update(func(tx *mdbx.Tx) error {
				if e := open(tx); e != mdbx.ErrSuccess {
					return e
				}
				return nil
			})
		})
}

func openRaftStore(path string, noSync bool, mode os.FileMode) (*raftStore, error) {
	if stat, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err = os.MkdirAll(path, mode); err != nil {
			return nil, err
		}
	} else if !stat.IsDir() {
		return nil, errPathNotDir
	}
	s := &raftStore{noSync: noSync, cache: make(map[string][]byte)}
	var err error
	s.log, err = openEnv(filepath.Join(path, "log"), logEnvFlags, mode,
		logGeometry, func(tx *mdbx.Tx) (e mdbx.Error) {
			s.logDBI, e = tx.OpenDBI(raftLogDBI, mdbx.DBCreate|mdbx.DBIntegerKey)
			return e
		})
	if err != nil {
		return nil, err
	}
	s.stable, err = openEnv(filepath.Join(path, "stable"), stableEnvFlags, mode,
		stableGeometry, func(tx *mdbx.Tx) (e mdbx.Error) {
			s.stableDBI, e = tx.OpenDBI(raftStableDBI, mdbx.DBCreate)
			return e
		})
	if err != nil {
		s.log.Close()
		return nil, err
	}
	if err := s.loadIndexes(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *raftStore) Close() error {
	err := s.log.Close()
	if e := s.stable.Close(); err == nil {
		err = e
	}
	return err
}

func indexKey(index *uint64) mdbx.Val {
	return mdbx.Val{Base: (*byte)(unsafe.Pointer(index)), Len: 8}
}

func keyIndex(k mdbx.Val) (uint64, bool) {
	if k.Base == nil || k.Len != 8 {
		return 0, false
	}
	return *(*uint64)(unsafe.Pointer(k.Base)), true
}

// loadIndexes reads the first and last log index from disk. Both are zero
// when the log is empty.
func (s *raftStore) loadIndexes() error {
	var first, last uint64
	err := s.log.View(func(tx *mdbx.Tx) error {
		cursor, err := tx.OpenCursor(s.logDBI)
		if err != mdbx.ErrSuccess {
			return err
		}
		defer cursor.Close()
		var k, v mdbx.Val
		if err = cursor.Get(&k, &v, mdbx.CursorFirst); err != mdbx.ErrSuccess {
			if err == mdbx.ErrNotFound {
				return nil
			}
			return err
		}
		first, _ = keyIndex(k)
		if err = cursor.Get(&k, &v, mdbx.CursorLast); err != mdbx.ErrSuccess {
			return err
		}
		last, _ = keyIndex(k)
		return nil
	})
	if err != nil && err != mdbx.ErrSuccess {
		return err
	}
	atomic.StoreUint64(&s.firstIndex, first)
	atomic.StoreUint64(&s.lastIndex, last)
	return nil
}

func (s *raftStore) Set(key []byte, val []byte) error {
	err := s.stable.Update(func(tx *mdbx.Tx) error {
		k := mdbx.Bytes(&key)
		var v mdbx.Val
		if len(val) > 0 {
			v = mdbx.Bytes(&val)
		}
		return tx.Put(s.stableDBI, &k, &v, 0)
	})
	if err != nil && err != mdbx.ErrSuccess {
		return err
	}
	s.mu.Lock()
	s.cache[string(key)] = append([]byte(nil), val...)
	s.mu.Unlock()
	return nil
}

// Get returns the value for key, or nil if key was not found.
func (s *raftStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	val, ok := s.cache[string(key)]
	s.mu.RUnlock()
	if ok {
		return val, nil
	}
	err := s.stable.View(func(tx *mdbx.Tx) error {
		k := mdbx.Bytes(&key)
		var v mdbx.Val
		if e := tx.Get(s.stableDBI, &k, &v); e != mdbx.ErrSuccess {
			return e
		}
		val = make([]byte, v.Len)
		copy(val, v.UnsafeBytes())
		return nil
	})
	if err != nil && err != mdbx.ErrSuccess {
		if err == mdbx.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	s.mu.Lock()
	s.cache[string(key)] = val
	s.mu.Unlock()
	return val, nil
}

func (s *raftStore) SetUint64(key []byte, val uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], val)
	return s.Set(key, b[:])
}

// GetUint64 returns the uint64 value for key, or 0 if key was not found.
func (s *raftStore) GetUint64(key []byte) (uint64, error) {
	val, err := s.Get(key)
	if err != nil || len(val) < 8 {
		return 0, err
	}
	return binary.LittleEndian.Uint64(val), nil
}

// FirstIndex returns the first index written. 0 for no entries.
func (s *raftStore) FirstIndex() (uint64, error) {
	return atomic.LoadUint64(&s.firstIndex), nil
}

// LastIndex returns the last index written. 0 for no entries.
func (s *raftStore) LastIndex() (uint64, error) {
	return atomic.LoadUint64(&s.lastIndex), nil
}

func (s *raftStore) GetLog(index uint64, log *raft.Log) error {
	err := s.log.View(func(tx *mdbx.Tx) error {
		k := indexKey(&index)
		var v mdbx.Val
		if e := tx.Get(s.logDBI, &k, &v); e != mdbx.ErrSuccess {
			return e
		}
		return decodeLog(v.UnsafeBytes(), log)
	})
	if err != nil && err != mdbx.ErrSuccess {
		if err == mdbx.ErrNotFound {
			return raft.ErrLogNotFound
		}
		return err
	}
	return nil
}

func (s *raftStore) StoreLog(log *raft.Log) error {
	return s.StoreLogs([]*raft.Log{log})
}

// StoreLogs appends logs, encoding each entry straight into the space mdbx
// reserves for it.
func (s *raftStore) StoreLogs(logs []*raft.Log) error {
	if len(logs) == 0 {
		return nil
	}
	err := s.log.Update(func(tx *mdbx.Tx) error {
		cursor, err := tx.OpenCursor(s.logDBI)
		if err != mdbx.ErrSuccess {
			return err
		}
		defer cursor.Close()
		for _, log := range logs {
			k := indexKey(&log.Index)
			v := mdbx.Val{Len: uint64(encodedLogSize(log))}
			if err = cursor.Put(&k, &v, mdbx.PutReserve|mdbx.PutAppend); err != mdbx.ErrSuccess {
				return err
			}
			encodeLog(v.UnsafeBytes(), log)
		}
		return nil
	})
	if err != nil && err != mdbx.ErrSuccess {
		return err
	}
	atomic.CompareAndSwapUint64(&s.firstIndex, 0, logs[0].Index)
	atomic.StoreUint64(&s.lastIndex, logs[len(logs)-1].Index)
	if !s.noSync {
		if err := s.log.Sync(); err != nil {
			logger.WarnErr(err, "log sync")
		}
	}
	return nil
}

// DeleteRange deletes the log entries from min to max, inclusive.
func (s *raftStore) DeleteRange(min, max uint64) error {
	err := s.log.Update(func(tx *mdbx.Tx) error {
		cursor, err := tx.OpenCursor(s.logDBI)
		if err != mdbx.ErrSuccess {
			return err
		}
		defer cursor.Close()
		for index := min; index <= max; {
			k := indexKey(&index)
			var v mdbx.Val
			if err = cursor.Get(&k, &v, mdbx.CursorSetRange); err != mdbx.ErrSuccess {
				if err == mdbx.ErrNotFound {
					return nil
				}
				return err
			}
			found, ok := keyIndex(k)
			if !ok || found > max {
				return nil
			}
			if err = cursor.Delete(0); err != mdbx.ErrSuccess {
				return err
			}
			if found == max {
				return nil
			}
			index = found + 1
		}
		return nil
	})
	if err != nil && err != mdbx.ErrSuccess {
		return err
	}
	return s.loadIndexes()
}

func encodedLogSize(log *raft.Log) int {
	return logHeaderSize + len(log.Data) + len(log.Extensions)
}

// encodeLog writes log into b, which must hold encodedLogSize(log) bytes.
func encodeLog(b []byte, log *raft.Log) {
	binary.LittleEndian.PutUint64(b[0:], log.Index)
	binary.LittleEndian.PutUint64(b[8:], log.Term)
	var appendedAt int64
	if !log.AppendedAt.IsZero() {
		appendedAt = log.AppendedAt.UnixNano()
	}
	binary.LittleEndian.PutUint64(b[16:], uint64(appendedAt))
	b[24] = byte(log.Type)
	binary.LittleEndian.PutUint32(b[25:], uint32(len(log.Data)))
	binary.LittleEndian.PutUint32(b[29:], uint32(len(log.Extensions)))
	n := copy(b[logHeaderSize:], log.Data)
	copy(b[logHeaderSize+n:], log.Extensions)
}

func decodeLog(b []byte, log *raft.Log) error {
	if len(b) < logHeaderSize {
		return errors.New("malformed log entry")
	}
	log.Index = binary.LittleEndian.Uint64(b[0:])
	log.Term = binary.LittleEndian.Uint64(b[8:])
	log.AppendedAt = time.Time{}
	if appendedAt := int64(binary.LittleEndian.Uint64(b[16:])); appendedAt > 0 {
		log.AppendedAt = time.Unix(0, appendedAt)
	}
	log.Type = raft.LogType(b[24])
	dataLen := int(binary.LittleEndian.Uint32(b[25:]))
	extLen := int(binary.LittleEndian.Uint32(b[29:]))
	b = b[logHeaderSize:]
	if len(b) < dataLen+extLen {
		return io.ErrShortBuffer
	}
	log.Data = append(log.Data[:0], b[:dataLen]...)
	log.Extensions = append(log.Extensions[:0], b[dataLen:dataLen+extLen]...)
	return nil
}
