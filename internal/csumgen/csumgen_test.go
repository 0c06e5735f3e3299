package csumgen_test

import (
	"bytes"
	"testing"

	"github.com/dagforge/dagd/internal/chunkengine"
	"github.com/dagforge/dagd/internal/csumgen"
	"github.com/dagforge/dagd/internal/kernel"
)

func TestGenerate_WritesOneChecksumPerChunkInOrder(t *testing.T) {
	t.Parallel()

	kern := kernel.NewFake(kernel.Ethash)
	hasher := kernel.NewSHA3Hasher()

	var buf bytes.Buffer

	const epoch = 12

	if err := csumgen.Generate(kern, hasher, epoch, &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	lines := kern.DatasetLines(epoch)
	wantChunks := (lines + chunkengine.LinesPerChunk - 1) / chunkengine.LinesPerChunk

	wantBytes := int(wantChunks) * kernel.CsumBytes
	if buf.Len() != wantBytes {
		t.Fatalf("Generate wrote %d bytes, want %d (%d chunks * %d csum bytes)", buf.Len(), wantBytes, wantChunks, kernel.CsumBytes)
	}
}

func TestGenerate_IsDeterministic(t *testing.T) {
	t.Parallel()

	kern := kernel.NewFake(kernel.Ethash)
	hasher := kernel.NewSHA3Hasher()

	var a, b bytes.Buffer

	if err := csumgen.Generate(kern, hasher, 5, &a); err != nil {
		t.Fatalf("Generate a: %v", err)
	}

	if err := csumgen.Generate(kern, hasher, 5, &b); err != nil {
		t.Fatalf("Generate b: %v", err)
	}

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("Generate produced different output across two runs for the same epoch")
	}
}

func TestGenerate_DifferentEpochsDiffer(t *testing.T) {
	t.Parallel()

	kern := kernel.NewFake(kernel.Ethash)
	hasher := kernel.NewSHA3Hasher()

	var a, b bytes.Buffer

	if err := csumgen.Generate(kern, hasher, 1, &a); err != nil {
		t.Fatalf("Generate epoch 1: %v", err)
	}

	if err := csumgen.Generate(kern, hasher, 2, &b); err != nil {
		t.Fatalf("Generate epoch 2: %v", err)
	}

	if bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("Generate produced identical output for two different epochs")
	}
}
