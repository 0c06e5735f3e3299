// Package dagio is the disk-I/O boundary for DAG files: opening, creating,
// and doing line-granular reads and writes against the files that back
// each epoch's dataset. It is a thin adaptation of the generic filesystem
// abstraction used elsewhere in this module, specialized to the
// "line offset, line count" addressing DAG files use instead of raw byte
// offsets.
package dagio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dagforge/dagd/internal/kernel"
	"github.com/dagforge/dagd/pkg/fs"
)

// ErrNotExist is returned by Store.TryOpen when the requested DAG file does
// not exist. Callers treat this as "epoch not cached yet", not a fatal error.
var ErrNotExist = errors.New("dagio: dag file does not exist")

// File is an open DAG file. All offsets and counts are in lines
// (kernel.LineBytes bytes each), matching how CacheStage and ChunkEngine
// address the dataset.
type File interface {
	// Bytes returns the current size of the file, in bytes.
	Bytes() (int64, error)

	// PReadLines reads len(dst)/kernel.LineBytes whole lines starting at
	// lineOffset. dst's length must be a multiple of kernel.LineBytes.
	PReadLines(dst []byte, lineOffset uint32) error

	// PWriteLines writes len(src)/kernel.LineBytes whole lines starting at
	// lineOffset. src's length must be a multiple of kernel.LineBytes.
	PWriteLines(src []byte, lineOffset uint32) error

	// Close closes the file without deleting it.
	Close() error

	// CloseAndDelete closes the file and removes it from disk.
	CloseAndDelete() error
}

// Store opens and creates DAG files backed by an fs.FS.
type Store struct {
	fs fs.FS
}

// New returns a Store backed by fsys.
func New(fsys fs.FS) *Store {
	return &Store{fs: fsys}
}

// TryOpen opens an existing DAG file read-write. It returns ErrNotExist
// (wrapped) if the file is not present, matching the original
// dagio_try_open contract of returning "no handle" rather than treating a
// missing file as fatal.
func (s *Store) TryOpen(path string) (File, error) {
	f, err := s.fs.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
		}

		return nil, fmt.Errorf("dagio: open %s: %w", path, err)
	}

	return &realFile{fs: s.fs, path: path, f: f}, nil
}

// Create creates (truncating any existing content) a DAG file for writing.
func (s *Store) Create(path string) (File, error) {
	f, err := s.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dagio: create %s: %w", path, err)
	}

	return &realFile{fs: s.fs, path: path, f: f}, nil
}

type realFile struct {
	fs   fs.FS
	path string
	f    fs.File
}

func (r *realFile) Bytes() (int64, error) {
	info, err := r.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("dagio: stat %s: %w", r.path, err)
	}

	return info.Size(), nil
}

func (r *realFile) PReadLines(dst []byte, lineOffset uint32) error {
	off := int64(lineOffset) * int64(kernel.LineBytes)

	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("dagio: seek %s: %w", r.path, err)
	}

	if _, err := io.ReadFull(r.f, dst); err != nil {
		return fmt.Errorf("dagio: read %s at line %d: %w", r.path, lineOffset, err)
	}

	return nil
}

func (r *realFile) PWriteLines(src []byte, lineOffset uint32) error {
	off := int64(lineOffset) * int64(kernel.LineBytes)

	if _, err := r.f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("dagio: seek %s: %w", r.path, err)
	}

	if _, err := r.f.Write(src); err != nil {
		return fmt.Errorf("dagio: write %s at line %d: %w", r.path, lineOffset, err)
	}

	return nil
}

func (r *realFile) Close() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("dagio: close %s: %w", r.path, err)
	}

	return nil
}

func (r *realFile) CloseAndDelete() error {
	closeErr := r.f.Close()

	removeErr := r.fs.Remove(r.path)
	if removeErr != nil {
		removeErr = fmt.Errorf("dagio: remove %s: %w", r.path, removeErr)
	}

	return errors.Join(closeErr, removeErr)
}

var _ File = (*realFile)(nil)
