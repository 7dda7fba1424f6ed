// Package writeaheadlog stores CBOR entries in rotated, append-only files so
// that a replica can recover what it said before a restart.
package writeaheadlog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	cbg "github.com/whyrusleeping/cbor-gen"
	"go.uber.org/multierr"
)

var log = logging.Logger("ledgerbft/wal")

const (
	walExtension = ".wal.cbor"
	rotateAt     = 1 << 20 // 1MiB
)

var errClosed = errors.New("write-ahead log is closed")

// Entry is a value stored in the log. Its epoch is the monotonic key used to
// purge old files.
type Entry interface {
	WALEpoch() uint64
	cbg.CBORMarshaler
	cbg.CBORUnmarshaler
}

// WriteAheadLog is a log of entries of type T, where *T implements Entry.
type WriteAheadLog[T any, PT interface {
	*T
	Entry
}] struct {
	lk     sync.Mutex
	path   string
	closed bool

	// files are the finalized log files, oldest first.
	files  []logFile[T]
	active struct {
		file       *os.File
		cborWriter *cbg.CborWriter
		logFile[T]
	}
}

type logFile[T any] struct {
	name     string
	content  []T
	maxEpoch uint64
}

// Open reads every log file under directory, creating it if needed.
func Open[T any, PT interface {
	*T
	Entry
}](directory string) (*WriteAheadLog[T, PT], error) {
	wal := &WriteAheadLog[T, PT]{path: directory}
	if err := wal.readInAll(); err != nil {
		return nil, fmt.Errorf("reading the WAL: %w", err)
	}
	return wal, nil
}

// Append durably writes value to the active log file.
func (wal *WriteAheadLog[T, PT]) Append(value T) error {
	wal.lk.Lock()
	defer wal.lk.Unlock()
	if wal.closed {
		return errClosed
	}
	if err := wal.maybeRotate(); err != nil {
		return fmt.Errorf("attempting to rotate: %w", err)
	}
	if err := PT(&value).MarshalCBOR(wal.active.cborWriter); err != nil {
		return fmt.Errorf("saving value to WAL: %w", err)
	}
	if err := wal.active.file.Sync(); err != nil {
		return fmt.Errorf("syncing the file: %w", err)
	}
	wal.active.maxEpoch = max(wal.active.maxEpoch, PT(&value).WALEpoch())
	wal.active.content = append(wal.active.content, value)
	return nil
}

// All returns every entry in append order.
func (wal *WriteAheadLog[T, PT]) All() ([]T, error) {
	var all []T
	err := wal.ForEach(func(v T) bool {
		all = append(all, v)
		return true
	})
	return all, err
}

// ForEach calls apply on every entry in append order until it returns false.
func (wal *WriteAheadLog[T, PT]) ForEach(apply func(T) bool) error {
	wal.lk.Lock()
	defer wal.lk.Unlock()
	for _, file := range wal.files {
		for _, v := range file.content {
			if !apply(v) {
				return nil
			}
		}
	}
	for _, v := range wal.active.content {
		if !apply(v) {
			return nil
		}
	}
	return nil
}

// Purge removes the finalized files whose entries are all older than
// keepEpoch. The active file is never removed.
func (wal *WriteAheadLog[T, PT]) Purge(keepEpoch uint64) error {
	wal.lk.Lock()
	defer wal.lk.Unlock()

	var err error
	kept := wal.files[:0]
	for _, file := range wal.files {
		if file.maxEpoch >= keepEpoch {
			kept = append(kept, file)
			continue
		}
		if rmErr := os.Remove(filepath.Join(wal.path, file.name)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, fmt.Errorf("removing WAL file %q: %w", file.name, rmErr))
			kept = append(kept, file)
			continue
		}
		log.Debugw("purged WAL file", "file", file.name, "maxEpoch", file.maxEpoch)
	}
	clear(wal.files[len(kept):])
	wal.files = kept
	return err
}

// Close finalizes the active file. Entries remain readable.
func (wal *WriteAheadLog[T, PT]) Close() error {
	wal.lk.Lock()
	defer wal.lk.Unlock()
	wal.closed = true
	return wal.finalize()
}

func (wal *WriteAheadLog[T, PT]) maybeRotate() error {
	if wal.active.file == nil {
		return wal.rotate()
	}
	stats, err := wal.active.file.Stat()
	if err != nil {
		return fmt.Errorf("collecting stats for the file: %w", err)
	}
	if stats.Size() > rotateAt {
		return wal.rotate()
	}
	return nil
}

func (wal *WriteAheadLog[T, PT]) rotate() error {
	if err := wal.finalize(); err != nil {
		return fmt.Errorf("finalizing log file: %w", err)
	}
	name := time.Now().UTC().Format(time.RFC3339Nano) + walExtension
	file, err := os.OpenFile(filepath.Join(wal.path, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0666)
	if err != nil {
		return fmt.Errorf("opening new log file %q: %w", name, err)
	}
	wal.active.file = file
	wal.active.cborWriter = cbg.NewCborWriter(file)
	wal.active.logFile = logFile[T]{name: name}
	return nil
}

func (wal *WriteAheadLog[T, PT]) finalize() error {
	if wal.active.file == nil {
		return nil
	}
	err := multierr.Combine(wal.active.file.Sync(), wal.active.file.Close())
	wal.active.file = nil
	wal.active.cborWriter = nil
	wal.files = append(wal.files, wal.active.logFile)
	wal.active.logFile = logFile[T]{}
	return err
}

func (wal *WriteAheadLog[T, PT]) readInAll() error {
	if err := os.MkdirAll(wal.path, 0777); err != nil {
		return fmt.Errorf("making WAL directory at %q: %w", wal.path, err)
	}
	dirEntries, err := os.ReadDir(wal.path)
	if err != nil {
		return fmt.Errorf("reading dir entries at %q: %w", wal.path, err)
	}
	slices.SortFunc(dirEntries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), walExtension) {
			continue
		}
		file, err := wal.readLogFile(entry.Name())
		if err != nil {
			return fmt.Errorf("reading log file: %w", err)
		}
		wal.files = append(wal.files, file)
	}
	return nil
}

// readLogFile reads every complete entry of a log file. A torn trailing entry,
// left by a crash mid-write, is logged and skipped.
func (wal *WriteAheadLog[T, PT]) readLogFile(name string) (logFile[T], error) {
	result := logFile[T]{name: name}
	file, err := os.Open(filepath.Join(wal.path, name))
	if err != nil {
		return result, fmt.Errorf("opening logfile %q: %w", name, err)
	}
	defer func() { _ = file.Close() }()

	reader := cbg.NewCborReader(file)
	for {
		var single T
		err := PT(&single).UnmarshalCBOR(reader)
		switch {
		case err == nil:
			result.content = append(result.content, single)
			result.maxEpoch = max(result.maxEpoch, PT(&single).WALEpoch())
		case errors.Is(err, io.EOF):
			return result, nil
		default:
			log.Errorw("truncated WAL log file", "file", name, "entries", len(result.content), "err", err)
			return result, nil
		}
	}
}
