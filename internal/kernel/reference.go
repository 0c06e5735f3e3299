package kernel

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Reference is a deterministic stand-in, built on SHA3-256, for the real
// ethash-family mixing kernels. It reproduces the *shape* of the real
// algorithm (seed chaining, cache growth by epoch, cache rounds that mix
// neighboring rows, dataset lines derived from a handful of cache lookups)
// closely enough that CacheStage and ChunkEngine exercise the same control
// flow they would against the production kernels, but it is not bit-compatible
// with any real network's DAG. Swapping it for a production kernel only
// requires providing a different Kernels implementation; nothing above this
// package depends on Reference's specific outputs.
type Reference struct {
	algo Algorithm

	cacheInitBytes   uint64
	cacheGrowthBytes uint64
	lineInitCount    uint64
	lineGrowthCount  uint64
}

// For returns the reference Kernels for algo.
func For(algo Algorithm) (Kernels, error) {
	switch algo {
	case Ethash:
		return Reference{
			algo:             Ethash,
			cacheInitBytes:   1 << 24,
			cacheGrowthBytes: 1 << 17,
			lineInitCount:    1 << 24,
			lineGrowthCount:  1 << 16,
		}, nil
	case Etchash:
		// ECIP-1099: epoch length doubled, so the cache/dataset grow at
		// half the rate per epoch number to land on the same sizes at
		// the same wall-clock epoch boundaries.
		return Reference{
			algo:             Etchash,
			cacheInitBytes:   1 << 24,
			cacheGrowthBytes: 1 << 16,
			lineInitCount:    1 << 24,
			lineGrowthCount:  1 << 15,
		}, nil
	case Ubqhash:
		return Reference{
			algo:             Ubqhash,
			cacheInitBytes:   1 << 24,
			cacheGrowthBytes: 1 << 17,
			lineInitCount:    1 << 24,
			lineGrowthCount:  1 << 16,
		}, nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

func (r Reference) Algorithm() Algorithm { return r.algo }

func (r Reference) CacheBytes(epoch uint32) uint32 {
	n := r.cacheInitBytes + r.cacheGrowthBytes*uint64(epoch)
	n -= n % uint64(LineBytes)

	return uint32(n)
}

func (r Reference) DatasetLines(epoch uint32) uint32 {
	lines := r.lineInitCount + r.lineGrowthCount*uint64(epoch)

	return uint32(lines)
}

func (r Reference) SeedHash(epoch uint32) [SeedBytes]byte {
	var seed [SeedBytes]byte

	for i := uint32(0); i < epoch; i++ {
		seed = sha3.Sum256(seed[:])
	}

	return seed
}

func (r Reference) InitCache(cache []byte, seed [SeedBytes]byte) {
	rows := len(cache) / LineBytes

	prev := sha3.Sum256(seed[:])

	for row := 0; row < rows; row++ {
		copy(cache[row*LineBytes:row*LineBytes+32], prev[:])

		next := sha3.Sum256(prev[:])
		copy(cache[row*LineBytes+32:row*LineBytes+64], next[:])

		prev = sha3.Sum256(next[:])
	}
}

func (r Reference) MixCacheRound(cache []byte) {
	rows := len(cache) / LineBytes
	if rows == 0 {
		return
	}

	for row := 0; row < rows; row++ {
		line := cache[row*LineBytes : row*LineBytes+LineBytes]
		neighbor := int(binary.LittleEndian.Uint32(line[:4])) % rows
		nline := cache[neighbor*LineBytes : neighbor*LineBytes+LineBytes]

		var mixed [LineBytes]byte
		for i := range mixed {
			mixed[i] = line[i] ^ nline[i]
		}

		out := sha3.Sum256(mixed[:])
		copy(line[:32], out[:])

		out2 := sha3.Sum256(out[:])
		copy(line[32:], out2[:])
	}
}

// lookupsPerLine is how many cache rows are combined to derive one dataset
// line, mirroring the real algorithm's small constant fan-in per item.
const lookupsPerLine = 4

func (r Reference) CalcDatasetRange(dst []byte, startLine, want uint32, cache []byte) {
	rows := uint32(len(cache) / LineBytes)
	if rows == 0 {
		return
	}

	for i := uint32(0); i < want; i++ {
		line := startLine + i

		var mixed [LineBytes]byte

		var seedBuf [4]byte
		binary.LittleEndian.PutUint32(seedBuf[:], line)

		idx := sha3.Sum256(seedBuf[:])

		for l := 0; l < lookupsPerLine; l++ {
			row := binary.LittleEndian.Uint32(idx[l*4:l*4+4]) % rows
			cacheRow := cache[row*LineBytes : row*LineBytes+LineBytes]

			for b := range mixed {
				mixed[b] ^= cacheRow[b]
			}
		}

		out := sha3.Sum256(mixed[:])
		copy(dst[int(i)*LineBytes:int(i)*LineBytes+32], out[:])

		out2 := sha3.Sum256(out[:])
		copy(dst[int(i)*LineBytes+32:int(i)*LineBytes+64], out2[:])
	}
}
