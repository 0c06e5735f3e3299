// Package chunkengine verifies or generates one chunk of an epoch's
// dataset at a time: on each call it either confirms that the on-disk bytes
// at the current position still match their stored checksum, or — once
// past the verified prefix — computes and writes the next chunk from the
// epoch's cache. The first checksum mismatch it finds ends verification for
// that epoch; everything from that chunk onward is treated as needing
// regeneration.
package chunkengine

import (
	"fmt"

	"github.com/dagforge/dagd/internal/cachestage"
	"github.com/dagforge/dagd/internal/dagio"
	"github.com/dagforge/dagd/internal/kernel"
)

// ChunkBytes is the unit of verification and generation: one chunk is
// always exactly this many bytes, except for the final chunk of a dataset
// whose size is not a multiple of ChunkBytes.
const ChunkBytes = 1024 * 1024

// LinesPerChunk is ChunkBytes expressed in dataset lines.
const LinesPerChunk = ChunkBytes / kernel.LineBytes

// Epoch is the state ChunkEngine reads and mutates. epoch.Record implements
// it; the interface exists so this package has no dependency on the epoch
// package (which imports chunkengine to assert that Record implements Epoch).
type Epoch interface {
	Pos() uint32
	Nominal() uint32
	Lines() uint32
	SetPos(uint32)
	SetNominal(uint32)

	Stage() *cachestage.Stage
	File() dagio.File
	Checksum() *dagio.ChecksumFile // nil if none configured/present
	Kernels() kernel.Kernels

	// ChunkBuf returns a reusable buffer of exactly n bytes, growing and
	// keeping its own backing array across calls instead of allocating a
	// fresh one every chunk (spec.md §4.3's e->chunk).
	ChunkBuf(n int) []byte
}

// WorkOn performs one unit of work on e: either a cache-construction step,
// a chunk verification, or a chunk generation. The caller must ensure
// e.Pos() < e.Lines() before calling.
//
// It returns true if it made progress and should be called again soon,
// false only together with a non-nil error: a violated precondition, a
// failed read of the DAG file, or a failed write. The scheduler returns
// that error from Tick, and the host loop stops on it.
func WorkOn(e Epoch, hasher kernel.Hasher) (bool, error) {
	pos := e.Pos()
	if pos >= e.Lines() {
		return false, fmt.Errorf("chunkengine: WorkOn called with pos=%d >= lines=%d", pos, e.Lines())
	}

	atNominalEdge := pos+LinesPerChunk > e.Nominal() && e.Nominal() != e.Lines()
	if atNominalEdge {
		stage := e.Stage()
		if !stage.Done() {
			stage.Build()

			return true, nil
		}

		if err := generateChunk(e); err != nil {
			return false, err
		}
	} else {
		ok, err := checkChunk(e, hasher)
		if err != nil {
			return false, err
		}

		if !ok {
			truncateToChunkBoundary(e)

			return true, nil
		}
	}

	if e.Nominal() < e.Pos() {
		e.SetNominal(e.Pos())
	}

	return true, nil
}

func wantLines(pos, lines uint32) uint32 {
	if pos+LinesPerChunk > lines {
		return lines - pos
	}

	return LinesPerChunk
}

func generateChunk(e Epoch) error {
	pos := e.Pos()
	want := wantLines(pos, e.Lines())

	buf := e.ChunkBuf(int(want) * kernel.LineBytes)
	e.Kernels().CalcDatasetRange(buf, pos, want, e.Stage().Cache())

	if err := e.File().PWriteLines(buf, pos); err != nil {
		return fmt.Errorf("chunkengine: generate chunk at line %d: %w", pos, err)
	}

	e.SetPos(pos + want)

	return nil
}

// checkChunk verifies the chunk starting at e.Pos() against its stored
// checksum. It returns (true, nil) and advances e.Pos() on a match,
// (false, nil) on a mismatch or a missing checksum file (the caller then
// truncates the verified prefix), and a non-nil error only for I/O
// failures reading the DAG file itself.
func checkChunk(e Epoch, hasher kernel.Hasher) (bool, error) {
	csum := e.Checksum()
	if csum == nil {
		return false, nil
	}

	pos := e.Pos()
	chunk := pos / LinesPerChunk

	var ref [kernel.CsumBytes]byte

	if err := csum.ReadChunk(ref[:], chunk); err != nil {
		return false, nil //nolint:nilerr // missing/short checksum entry means "can't verify", not an I/O fault
	}

	want := wantLines(pos, e.Lines())

	buf := e.ChunkBuf(int(want) * kernel.LineBytes)
	if err := e.File().PReadLines(buf, pos); err != nil {
		return false, fmt.Errorf("chunkengine: read chunk at line %d: %w", pos, err)
	}

	var got [kernel.CsumBytes]byte

	hasher.Sum(got[:], buf)

	if got != ref {
		return false, nil
	}

	e.SetPos(pos + want)

	return true, nil
}

// truncateToChunkBoundary resets pos (and therefore nominal) back to the
// start of the chunk that just failed verification, so the next WorkOn
// call regenerates it and everything after it. The dataset file itself is
// never truncated: bytes past the new pos are simply treated as not
// present.
func truncateToChunkBoundary(e Epoch) {
	pos := e.Pos()
	pos -= pos % LinesPerChunk
	e.SetPos(pos)
	e.SetNominal(pos)
}
