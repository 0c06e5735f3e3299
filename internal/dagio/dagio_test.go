package dagio_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/dagforge/dagd/internal/dagio"
	"github.com/dagforge/dagd/internal/kernel"
	"github.com/dagforge/dagd/pkg/fs"
)

func TestStore_TryOpen_MissingFileReturnsErrNotExist(t *testing.T) {
	t.Parallel()

	store := dagio.New(fs.NewReal())

	_, err := store.TryOpen(filepath.Join(t.TempDir(), "missing.dag"))
	if !errors.Is(err, dagio.ErrNotExist) {
		t.Fatalf("err=%v, want ErrNotExist", err)
	}
}

func TestStore_Create_Then_PWriteLines_Then_PReadLines_RoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "epoch.dag")
	store := dagio.New(fs.NewReal())

	f, err := store.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	want := make([]byte, 2*kernel.LineBytes)
	for i := range want {
		want[i] = byte(i)
	}

	if err := f.PWriteLines(want, 3); err != nil {
		t.Fatalf("PWriteLines: %v", err)
	}

	got := make([]byte, len(want))
	if err := f.PReadLines(got, 3); err != nil {
		t.Fatalf("PReadLines: %v", err)
	}

	if string(got) != string(want) {
		t.Fatalf("PReadLines=%v, want %v", got, want)
	}

	size, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	wantSize := int64(3+2) * int64(kernel.LineBytes)
	if size != wantSize {
		t.Fatalf("size=%d, want %d", size, wantSize)
	}
}

func TestFile_CloseAndDelete_RemovesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "epoch.dag")
	store := dagio.New(fs.NewReal())

	f, err := store.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.CloseAndDelete(); err != nil {
		t.Fatalf("CloseAndDelete: %v", err)
	}

	if _, err := store.TryOpen(path); !errors.Is(err, dagio.ErrNotExist) {
		t.Fatalf("TryOpen after delete: err=%v, want ErrNotExist", err)
	}
}
