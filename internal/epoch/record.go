// Package epoch holds the per-(algorithm, epoch) dataset bookkeeping
// (Record) and the ordered collection of records currently kept on disk
// (Registry): scanning the cache directory on startup, deciding what to
// evict to make room, and producing the status report the daemon publishes.
package epoch

import (
	"fmt"

	"github.com/dagforge/dagd/internal/cachestage"
	"github.com/dagforge/dagd/internal/chunkengine"
	"github.com/dagforge/dagd/internal/dagio"
	"github.com/dagforge/dagd/internal/kernel"
)

// RoundToBlock rounds size up to the next multiple of blockSize. A
// blockSize of 0 or 1 is a no-op. This mirrors the original daemon's
// round_to_block, used to report cache usage in the same units the
// filesystem actually allocates.
func RoundToBlock(size, blockSize int64) int64 {
	if blockSize <= 1 {
		return size
	}

	size += blockSize - 1
	size -= size % blockSize

	return size
}

// Record is the state for one (algorithm, epoch) dataset: its place on
// disk, how much of it is verified/generated so far, and the cache used to
// generate whatever part of it is still missing.
type Record struct {
	algo kernel.Algorithm
	num  uint32
	path string

	file dagio.File
	csum *dagio.ChecksumFile

	pos, nominal, lines uint32
	size, final         int64

	stage    *cachestage.Stage
	kern     kernel.Kernels
	chunkBuf []byte
}

// newRecord builds a Record for (algo, num) that has not yet been opened or
// created on disk.
func newRecord(kern kernel.Kernels, algo kernel.Algorithm, num uint32, path string, blockSize int64) *Record {
	lines := kern.DatasetLines(num)

	return &Record{
		algo:  algo,
		num:   num,
		path:  path,
		lines: lines,
		final: RoundToBlock(int64(lines)*kernel.LineBytes, blockSize),
		stage: cachestage.New(kern, num),
		kern:  kern,
	}
}

func (r *Record) Algorithm() kernel.Algorithm { return r.algo }
func (r *Record) Num() uint32                 { return r.num }
func (r *Record) Path() string                { return r.path }
func (r *Record) Size() int64                 { return r.size }
func (r *Record) Final() int64                { return r.final }
func (r *Record) HasFile() bool               { return r.file != nil }

func (r *Record) Pos() uint32         { return r.pos }
func (r *Record) Nominal() uint32     { return r.nominal }
func (r *Record) Lines() uint32       { return r.lines }
func (r *Record) SetPos(v uint32)     { r.pos = v }
func (r *Record) SetNominal(v uint32) { r.nominal = v }

func (r *Record) Stage() *cachestage.Stage      { return r.stage }
func (r *Record) File() dagio.File              { return r.file }
func (r *Record) Checksum() *dagio.ChecksumFile { return r.csum }
func (r *Record) Kernels() kernel.Kernels       { return r.kern }

// ChunkBuf returns r's reusable chunk buffer resized to exactly n bytes,
// growing (and keeping) its backing array across calls rather than
// allocating fresh on every chunk, matching the original daemon's e->chunk
// allocated once and reused for every verify/generate step.
func (r *Record) ChunkBuf(n int) []byte {
	if cap(r.chunkBuf) < n {
		r.chunkBuf = make([]byte, n)
	} else {
		r.chunkBuf = r.chunkBuf[:n]
	}

	return r.chunkBuf
}

var _ chunkengine.Epoch = (*Record)(nil)

// Report renders the record in the same comma-separated field order the
// original daemon used, so downstream tooling parsing status reports does
// not need to change: algo,epoch,pos,nominal,lines,cache_round,cache_rounds.
func (r *Record) Report() string {
	return fmt.Sprintf("%s,%d,%d,%d,%d,%d,%d",
		r.algo.Name(), r.num, r.pos, r.nominal, r.lines, r.stage.Round(), kernel.CacheRounds)
}

// RefreshSize recomputes Size from the dataset file's current length. The
// scheduler calls this after every successful unit of work, matching the
// original daemon's post-work_on update of e->size.
func (r *Record) RefreshSize(blockSize int64) error {
	bytes, err := r.file.Bytes()
	if err != nil {
		return err
	}

	r.size = RoundToBlock(bytes, blockSize)

	return nil
}

// Complete reports whether the dataset has been fully verified/generated.
func (r *Record) Complete() bool {
	return r.pos == r.lines
}

// releaseCache drops the intermediate cache once the dataset is complete,
// matching cache_free being called as soon as an epoch needs no more work.
func (r *Record) releaseCache() {
	r.stage.Reset()
}

// releaseChunkBuf frees the reusable chunk buffer. Called only when the
// record itself is being destroyed (evicted or wiped), not on mere
// completion, which retains the chunk buffer alongside the on-disk artifact
// (spec.md §5's "completion releases the intermediate buffers ... while
// retaining the on-disk artifact").
func (r *Record) releaseChunkBuf() {
	r.chunkBuf = nil
}
