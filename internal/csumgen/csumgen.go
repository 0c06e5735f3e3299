// Package csumgen implements the standalone checksum-stream generator
// spec.md §6 calls out as an external collaborator: given an algorithm and
// epoch, build that epoch's intermediate cache once and emit the
// CSUM_BYTES-truncated SHA3-256 of every chunk, in order, to a writer.
// This is the same control flow the daemon's ChunkEngine uses to produce
// the checksum file a running daemon verifies against; cmd/dagcsum and
// dagd's own -g flag both call Generate to build that file from scratch.
package csumgen

import (
	"fmt"
	"io"

	"github.com/dagforge/dagd/internal/cachestage"
	"github.com/dagforge/dagd/internal/chunkengine"
	"github.com/dagforge/dagd/internal/kernel"
)

// Generate builds epoch's intermediate cache with kern, then writes one
// kernel.CsumBytes record per chunk to out, in ascending chunk order.
func Generate(kern kernel.Kernels, hasher kernel.Hasher, epoch uint32, out io.Writer) error {
	stage := cachestage.New(kern, epoch)
	for stage.Build() {
	}

	lines := kern.DatasetLines(epoch)

	buf := make([]byte, chunkengine.ChunkBytes)
	sum := make([]byte, kernel.CsumBytes)

	for pos := uint32(0); pos < lines; pos += chunkengine.LinesPerChunk {
		want := chunkengine.LinesPerChunk
		if pos+want > lines {
			want = lines - pos
		}

		chunk := buf[:int(want)*kernel.LineBytes]
		kern.CalcDatasetRange(chunk, pos, want, stage.Cache())

		hasher.Sum(sum, chunk)

		if _, err := out.Write(sum); err != nil {
			return fmt.Errorf("csumgen: write chunk at line %d: %w", pos, err)
		}
	}

	return nil
}
