package dagio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dagforge/dagd/internal/dagio"
	"github.com/dagforge/dagd/internal/kernel"
	"github.com/dagforge/dagd/pkg/fs"
)

func TestOpenChecksumFile_MissingFileReturnsNotExist(t *testing.T) {
	t.Parallel()

	_, err := dagio.OpenChecksumFile(fs.NewReal(), filepath.Join(t.TempDir(), "missing.csum"))
	if !os.IsNotExist(err) {
		t.Fatalf("err=%v, want a not-exist error", err)
	}
}

func TestChecksumFile_ReadChunk_ReadsTheRecordAtTheRequestedIndex(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "epoch.csum")

	const chunks = 4

	data := make([]byte, chunks*kernel.CsumBytes)
	for i := range data {
		data[i] = byte(i + 1)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	realFS := fs.NewReal()

	cf, err := dagio.OpenChecksumFile(realFS, path)
	if err != nil {
		t.Fatalf("OpenChecksumFile: %v", err)
	}
	defer cf.Close()

	for chunk := uint32(0); chunk < chunks; chunk++ {
		got := make([]byte, kernel.CsumBytes)
		if err := cf.ReadChunk(got, chunk); err != nil {
			t.Fatalf("ReadChunk(%d): %v", chunk, err)
		}

		want := data[chunk*kernel.CsumBytes : (chunk+1)*kernel.CsumBytes]
		if string(got) != string(want) {
			t.Fatalf("ReadChunk(%d)=%v, want %v", chunk, got, want)
		}
	}
}

func TestChecksumFile_ReadChunk_PastEndOfFileIsAnError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "epoch.csum")

	if err := os.WriteFile(path, make([]byte, kernel.CsumBytes), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cf, err := dagio.OpenChecksumFile(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("OpenChecksumFile: %v", err)
	}
	defer cf.Close()

	if err := cf.ReadChunk(make([]byte, kernel.CsumBytes), 5); err == nil {
		t.Fatalf("ReadChunk past end of file: error=nil, want an error")
	}
}
