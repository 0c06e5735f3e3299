package chunkengine_test

import (
	"os"
	"testing"

	"github.com/dagforge/dagd/internal/cachestage"
	"github.com/dagforge/dagd/internal/chunkengine"
	"github.com/dagforge/dagd/internal/dagio"
	"github.com/dagforge/dagd/internal/kernel"
	"github.com/dagforge/dagd/pkg/fs"
)

func writeChecksumFile(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write checksum file: %v", err)
	}
}

// memFile is an in-memory dagio.File for tests that don't need real disk.
type memFile struct {
	data []byte
}

func (f *memFile) Bytes() (int64, error) { return int64(len(f.data)), nil }

func (f *memFile) PReadLines(dst []byte, lineOffset uint32) error {
	off := int(lineOffset) * kernel.LineBytes
	copy(dst, f.data[off:off+len(dst)])

	return nil
}

func (f *memFile) PWriteLines(src []byte, lineOffset uint32) error {
	off := int(lineOffset) * kernel.LineBytes
	end := off + len(src)

	if end > len(f.data) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}

	copy(f.data[off:end], src)

	return nil
}

func (f *memFile) Close() error           { return nil }
func (f *memFile) CloseAndDelete() error  { return nil }

var _ dagio.File = (*memFile)(nil)

type fakeEpoch struct {
	pos, nominal, lines uint32
	stage               *cachestage.Stage
	file                *memFile
	csum                *dagio.ChecksumFile
	kern                kernel.Kernels
	chunkBuf            []byte
}

func (e *fakeEpoch) Pos() uint32              { return e.pos }
func (e *fakeEpoch) Nominal() uint32          { return e.nominal }
func (e *fakeEpoch) Lines() uint32            { return e.lines }
func (e *fakeEpoch) SetPos(v uint32)          { e.pos = v }
func (e *fakeEpoch) SetNominal(v uint32)      { e.nominal = v }
func (e *fakeEpoch) Stage() *cachestage.Stage { return e.stage }
func (e *fakeEpoch) File() dagio.File         { return e.file }
func (e *fakeEpoch) Checksum() *dagio.ChecksumFile { return e.csum }
func (e *fakeEpoch) Kernels() kernel.Kernels  { return e.kern }

func (e *fakeEpoch) ChunkBuf(n int) []byte {
	if cap(e.chunkBuf) < n {
		e.chunkBuf = make([]byte, n)
	} else {
		e.chunkBuf = e.chunkBuf[:n]
	}

	return e.chunkBuf
}

func buildReadyStage(kern kernel.Kernels, epoch uint32) *cachestage.Stage {
	s := cachestage.New(kern, epoch)
	for s.Build() {
	}

	return s
}

func TestWorkOn_GeneratesChunkWhenPastNominal(t *testing.T) {
	t.Parallel()

	kern := kernel.NewFake(kernel.Ethash)
	e := &fakeEpoch{
		lines: kern.DatasetLines(3),
		stage: buildReadyStage(kern, 3),
		file:  &memFile{},
		kern:  kern,
	}

	progressed, err := chunkengine.WorkOn(e, kernel.NewSHA3Hasher())
	if err != nil {
		t.Fatalf("WorkOn: %v", err)
	}

	if !progressed {
		t.Fatalf("WorkOn reported no progress")
	}

	wantLines := chunkengine.LinesPerChunk
	if int(e.lines) < wantLines {
		wantLines = int(e.lines)
	}

	if int(e.pos) != wantLines {
		t.Fatalf("pos=%d, want %d", e.pos, wantLines)
	}

	if e.nominal != e.pos {
		t.Fatalf("nominal=%d, want %d (pos)", e.nominal, e.pos)
	}
}

func TestWorkOn_VerifiesMatchingChunkAndAdvances(t *testing.T) {
	t.Parallel()

	kern := kernel.NewFake(kernel.Ethash)
	hasher := kernel.NewSHA3Hasher()

	stage := buildReadyStage(kern, 1)
	lines := kern.DatasetLines(1)

	file := &memFile{}
	want := wantLinesFor(lines, 0)
	buf := make([]byte, int(want)*kernel.LineBytes)
	kern.CalcDatasetRange(buf, 0, want, stage.Cache())

	if err := file.PWriteLines(buf, 0); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	var csumBuf [kernel.CsumBytes]byte
	hasher.Sum(csumBuf[:], buf)

	csumPath := t.TempDir() + "/e.csum"
	writeChecksumFile(t, csumPath, csumBuf[:])

	csum, err := dagio.OpenChecksumFile(fs.NewReal(), csumPath)
	if err != nil {
		t.Fatalf("OpenChecksumFile: %v", err)
	}
	defer csum.Close()

	e := &fakeEpoch{
		lines:   lines,
		nominal: lines, // already fully present on disk, go straight to verify path
		stage:   stage,
		file:    file,
		csum:    csum,
		kern:    kern,
	}

	progressed, err := chunkengine.WorkOn(e, hasher)
	if err != nil {
		t.Fatalf("WorkOn: %v", err)
	}

	if !progressed {
		t.Fatalf("WorkOn reported no progress")
	}

	if e.pos != want {
		t.Fatalf("pos=%d, want %d", e.pos, want)
	}
}

func TestWorkOn_TruncatesOnChecksumMismatch(t *testing.T) {
	t.Parallel()

	kern := kernel.NewFake(kernel.Ethash)
	hasher := kernel.NewSHA3Hasher()

	stage := buildReadyStage(kern, 1)
	lines := kern.DatasetLines(1)

	file := &memFile{}
	want := wantLinesFor(lines, 0)
	buf := make([]byte, int(want)*kernel.LineBytes)
	kern.CalcDatasetRange(buf, 0, want, stage.Cache())

	if err := file.PWriteLines(buf, 0); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	// Store a deliberately wrong checksum.
	wrong := make([]byte, kernel.CsumBytes)
	wrong[0] = 0xff

	csumPath := t.TempDir() + "/e.csum"
	writeChecksumFile(t, csumPath, wrong)

	csum, err := dagio.OpenChecksumFile(fs.NewReal(), csumPath)
	if err != nil {
		t.Fatalf("OpenChecksumFile: %v", err)
	}
	defer csum.Close()

	e := &fakeEpoch{
		lines:   lines,
		pos:     0,
		nominal: lines,
		stage:   stage,
		file:    file,
		csum:    csum,
		kern:    kern,
	}

	progressed, err := chunkengine.WorkOn(e, hasher)
	if err != nil {
		t.Fatalf("WorkOn: %v", err)
	}

	if !progressed {
		t.Fatalf("WorkOn reported no progress")
	}

	if e.pos != 0 || e.nominal != 0 {
		t.Fatalf("pos=%d nominal=%d, want both 0 after truncation", e.pos, e.nominal)
	}
}

func wantLinesFor(lines, pos uint32) uint32 {
	if pos+chunkengine.LinesPerChunk > lines {
		return lines - pos
	}

	return chunkengine.LinesPerChunk
}
