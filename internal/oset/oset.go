// Package oset implements the ordered set: a paged, append-only buffer
// of fixed-size items that spills to a temp file once it outgrows a
// small number of in-memory pages, and is committed to its final path
// with an atomic rename so a concurrent reader never observes a
// partially written file (§4.H). It is the Go rendering of
// original_source indexer/search/ordered_set.c's ord_set_* family,
// generalized from a hand-written union of two record types
// (fcap_flow_rec / uint64) to a single implementation parameterized
// over any fixed-size Codec.
package oset

import (
	"fmt"
	"os"
	"time"
)

// Codec describes how one item type is packed into a fixed-size record,
// the same role OSET_DSIZE and the oset_types_u union play in the
// original: ordered sets only ever hold one kind of fixed-width record.
type Codec[T any] interface {
	// Size is the fixed marshaled size of one item, in bytes.
	Size() int
	// Marshal appends v's encoding to buf and returns the result.
	Marshal(buf []byte, v T) []byte
	// Unmarshal decodes one item from the front of buf.
	Unmarshal(buf []byte) T
}

// maxPages bounds how much of an ordered set's data is buffered in
// memory before it spills to a temp file, matching OSET_MAX_PAGES.
const maxPages = 16

// pageSize is the unit the in-memory buffer grows by; the original uses
// the real OS page size, but a fixed value keeps this deterministic and
// portable.
const pageSize = 4096

// staleTimeout matches OSET_TMP_STALE_TIMEOUT: a .tmp file whose mtime
// is older than this is assumed abandoned by a dead writer and may be
// reclaimed.
const staleTimeout = 10 * time.Second

// mode mirrors oset_mode.
type mode int

const (
	modeWrite mode = iota
	modeRead
)

// Set is one ordered set: either being built (mode write) or being
// consumed in ascending order (mode read). A Set is never both; call
// ReadMode to transition a fully written in-memory set straight to
// reading without a round trip through disk.
type Set[T any] struct {
	codec Codec[T]
	mode  mode

	path    string
	tmpPath string
	f       *os.File

	buf      []byte
	itemsLen int // number of complete items currently in buf
	cursor   int // next item index to read, in read mode
}

// SpillDir is the directory a buffered set's anonymous overflow file is
// created in once it outgrows maxPages (§4.H's working buffers); the
// empty string (its default) uses the OS temp directory. A process sets
// this once at startup from config.Search.SpillDir.
var SpillDir string

// ErrExists is returned by Create when the final output path already
// exists — another writer has already finished this set (ord_set_init's
// EEXIST-on-final-path case).
var ErrExists = fmt.Errorf("oset: output already exists")

// ErrInProgress is returned by Create when a live .tmp file is being
// written by another process (ord_set_init's EEXIST-on-tmp-open case).
var ErrInProgress = fmt.Errorf("oset: another writer holds the temp file")

// Create opens a new ordered set for writing at path, using a .tmp
// sibling file that is atomically renamed into place on Commit. If path
// already has live data (final file exists, or an un-stale .tmp file is
// held by another writer), Create reports that instead of overwriting
// it — ord_set_init's "fail with success, someone else is already doing
// this" behavior.
func Create[T any](path string, codec Codec[T]) (*Set[T], error) {
	tmpPath := path + ".tmp"

	if _, err := os.Stat(path); err == nil {
		return nil, ErrExists
	}

	if info, err := os.Stat(tmpPath); err == nil {
		if time.Since(info.ModTime()) > staleTimeout {
			os.Remove(tmpPath)
		} else {
			return nil, ErrInProgress
		}
	}

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrInProgress
		}
		return nil, fmt.Errorf("oset: create temp file: %w", err)
	}

	return &Set[T]{
		codec:   codec,
		mode:    modeWrite,
		path:    path,
		tmpPath: tmpPath,
		f:       f,
		buf:     make([]byte, 0, pageSize),
	}, nil
}

// NewBuffered builds a write-mode set that is never backed by a file —
// the original's OSET_TMP_WRITE mode, used for intermediate sets built
// entirely in memory during a search (§4.H's working buffers) that only
// spill to a real temp file if they exceed maxPages.
func NewBuffered[T any](codec Codec[T]) *Set[T] {
	return &Set[T]{
		codec: codec,
		mode:  modeWrite,
		buf:   make([]byte, 0, pageSize),
	}
}

// Push appends v, assuming callers add items in ascending order (the
// same contract ord_set_push_ documents). Once the in-memory buffer
// exceeds maxPages worth of items it is flushed to a temp file,
// allocating one lazily for a NewBuffered set that has grown too large
// to stay fully in memory.
func (s *Set[T]) Push(v T) error {
	if s.mode != modeWrite {
		return fmt.Errorf("oset: push on a set not in write mode")
	}

	if len(s.buf)+s.codec.Size() > maxPages*pageSize {
		if err := s.flush(); err != nil {
			return err
		}
	}
	s.buf = s.codec.Marshal(s.buf, v)
	return nil
}

// flush writes the in-memory buffer to the backing file (opening a
// private temp file first if this set has no path of its own) and
// clears it.
func (s *Set[T]) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	if s.f == nil {
		f, err := os.CreateTemp(SpillDir, "oset-*.tmp")
		if err != nil {
			return fmt.Errorf("oset: create anonymous spill file: %w", err)
		}
		s.f = f
	}
	if _, err := s.f.Write(s.buf); err != nil {
		return fmt.Errorf("oset: spill buffer: %w", err)
	}
	s.buf = s.buf[:0]
	return nil
}

// ReadMode flushes any remaining write buffer (to file, if one was
// opened) and switches the set to read mode, positioned at the first
// item — ord_set_readmode's "dump and rewind" transition.
func (s *Set[T]) ReadMode() error {
	if s.mode != modeWrite {
		return fmt.Errorf("oset: already in read mode")
	}
	if s.f != nil {
		if err := s.flush(); err != nil {
			return err
		}
		if _, err := s.f.Seek(0, os.SEEK_SET); err != nil {
			return fmt.Errorf("oset: rewind: %w", err)
		}
	}
	s.mode = modeRead
	s.cursor = 0
	if s.f == nil {
		// Everything fits in memory; buf already holds every item in
		// order and doubles as the read buffer.
		s.itemsLen = len(s.buf) / s.codec.Size()
		return nil
	}
	return s.fill()
}

// Open opens an existing committed ordered set for reading. If path
// does not exist yet but a live .tmp sibling does, Open polls the
// .tmp's mtime until it stops changing (the writer finished or died)
// and the final file appears, mirroring ord_set_init's inotify wait
// with simple polling instead of a kernel watch.
func Open[T any](path string, codec Codec[T]) (*Set[T], error) {
	if err := waitForFile(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("oset: open %s: %w", path, err)
	}
	s := &Set[T]{codec: codec, mode: modeRead, path: path, f: f}
	if err := s.fill(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// waitForFile blocks until path exists, as long as its .tmp sibling is
// still being actively written (mtime advancing); it gives up once the
// .tmp file's mtime has gone stale without path appearing.
func waitForFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmpPath := path + ".tmp"
	var lastMod time.Time
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		info, err := os.Stat(tmpPath)
		if err != nil {
			return fmt.Errorf("oset: input %s does not exist and is not being written", path)
		}
		if !lastMod.IsZero() && info.ModTime().Equal(lastMod) {
			return fmt.Errorf("oset: input %s is not ready, and %s is no longer being written", path, tmpPath)
		}
		lastMod = info.ModTime()
		time.Sleep(50 * time.Millisecond)
	}
}

// fill reads (up to) maxPages of data into buf from the current file
// position, the way o_set_fill_buffer refills a read buffer.
func (s *Set[T]) fill() error {
	if cap(s.buf) < maxPages*pageSize {
		s.buf = make([]byte, maxPages*pageSize)
	}
	s.buf = s.buf[:cap(s.buf)]
	n, err := s.f.Read(s.buf)
	if err != nil && n == 0 {
		s.itemsLen, s.cursor = 0, 0
		return fmt.Errorf("oset: fill buffer: %w", err)
	}
	itemSize := s.codec.Size()
	s.itemsLen = n / itemSize
	s.buf = s.buf[:s.itemsLen*itemSize]
	s.cursor = 0
	return nil
}

// Peek returns the next unread item without consuming it. ok is false
// once the set is exhausted.
func (s *Set[T]) Peek() (v T, ok bool) {
	if s.mode != modeRead {
		return v, false
	}
	if s.cursor >= s.itemsLen {
		if s.f == nil {
			return v, false
		}
		if err := s.fill(); err != nil || s.itemsLen == 0 {
			return v, false
		}
	}
	itemSize := s.codec.Size()
	off := s.cursor * itemSize
	return s.codec.Unmarshal(s.buf[off : off+itemSize]), true
}

// Pop returns and consumes the next item, as Peek followed by advancing
// the cursor.
func (s *Set[T]) Pop() (v T, ok bool) {
	v, ok = s.Peek()
	if ok {
		s.cursor++
	}
	return v, ok
}

// Seek repositions a read-mode set to the nth record (0-based),
// discarding any buffered data — ord_set_seek.
func (s *Set[T]) Seek(rec int) error {
	if s.mode != modeRead {
		return fmt.Errorf("oset: seek on a set not in read mode")
	}
	if s.f == nil {
		s.cursor = rec
		return nil
	}
	s.cursor, s.itemsLen = 0, 0
	itemSize := s.codec.Size()
	if _, err := s.f.Seek(int64(rec)*int64(itemSize), os.SEEK_SET); err != nil {
		return fmt.Errorf("oset: seek: %w", err)
	}
	return s.fill()
}

// Commit finishes a write-mode set: flush, close, and atomically rename
// the temp file into its final path (ord_set_cleanup's write-mode
// path). A set created with NewBuffered and never spilled to disk has
// nothing to rename.
func (s *Set[T]) Commit() error {
	if s.mode != modeWrite {
		return fmt.Errorf("oset: commit on a set not in write mode")
	}
	if err := s.flush(); err != nil {
		return err
	}
	if s.f != nil {
		if err := s.f.Close(); err != nil {
			return fmt.Errorf("oset: close: %w", err)
		}
	}
	if s.path != "" && s.tmpPath != "" {
		if err := os.Rename(s.tmpPath, s.path); err != nil {
			return fmt.Errorf("oset: commit rename: %w", err)
		}
	}
	return nil
}

// Close releases a read-mode set's file handle, if any.
func (s *Set[T]) Close() error {
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}
