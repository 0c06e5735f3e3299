package dagio

import (
	"fmt"
	"io"
	"os"

	"github.com/dagforge/dagd/internal/kernel"
	"github.com/dagforge/dagd/pkg/fs"
)

// ChecksumFile reads the per-chunk reference checksums that accompany a DAG
// file, one kernel.CsumBytes entry per chunk, used to verify whether an
// on-disk chunk still matches what the kernel would generate.
type ChecksumFile struct {
	fs   fs.FS
	path string
	f    fs.File
}

// OpenChecksumFile opens path read-only. A missing checksum file is returned
// as an error satisfying os.IsNotExist. The original daemon treats "no
// checksum file configured, or none present for this epoch" as "nothing to
// verify against", not as a fault, so callers fall back to a nil
// *ChecksumFile (unconditional regeneration) on that error.
func OpenChecksumFile(fsys fs.FS, path string) (*ChecksumFile, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}

	return &ChecksumFile{fs: fsys, path: path, f: f}, nil
}

// ReadChunk reads the stored checksum for the given chunk index into dst
// (len(dst) == kernel.CsumBytes).
func (c *ChecksumFile) ReadChunk(dst []byte, chunk uint32) error {
	off := int64(chunk) * int64(kernel.CsumBytes)

	if _, err := c.f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("dagio: seek checksum %s: %w", c.path, err)
	}

	if _, err := io.ReadFull(c.f, dst); err != nil {
		return fmt.Errorf("dagio: read checksum %s chunk %d: %w", c.path, chunk, err)
	}

	return nil
}

// Close closes the checksum file.
func (c *ChecksumFile) Close() error {
	return c.f.Close()
}
