package kernel

// Fake is a tiny, fast Kernels used by tests elsewhere in this module. It
// keeps the same seed/cache/dataset relationship Reference has (deterministic,
// content actually depends on seed and cache state) but at sizes small
// enough to exercise chunk boundaries without generating megabytes of data.
type Fake struct {
	Algo        Algorithm
	LinesPerEp  uint32 // DatasetLines grows by this much per epoch
	BaseLines   uint32
	CacheBytesN uint32 // fixed cache size, independent of epoch
}

// NewFake returns a Fake sized so a handful of chunks (LinesPerChunk lines
// each) cover a handful of epochs, keeping test fixtures small.
func NewFake(algo Algorithm) *Fake {
	return &Fake{Algo: algo, LinesPerEp: 64, BaseLines: 64, CacheBytesN: 4 * LineBytes}
}

func (f *Fake) Algorithm() Algorithm { return f.Algo }

func (f *Fake) CacheBytes(uint32) uint32 { return f.CacheBytesN }

func (f *Fake) DatasetLines(epoch uint32) uint32 {
	return f.BaseLines + f.LinesPerEp*epoch
}

func (f *Fake) SeedHash(epoch uint32) [SeedBytes]byte {
	var seed [SeedBytes]byte

	seed[0] = byte(f.Algo)
	seed[1] = byte(epoch)
	seed[2] = byte(epoch >> 8)

	return seed
}

func (f *Fake) InitCache(cache []byte, seed [SeedBytes]byte) {
	for i := range cache {
		cache[i] = seed[i%SeedBytes] + byte(i)
	}
}

func (f *Fake) MixCacheRound(cache []byte) {
	for i := range cache {
		cache[i] ^= byte(i) + 1
	}
}

func (f *Fake) CalcDatasetRange(dst []byte, startLine, want uint32, cache []byte) {
	for i := uint32(0); i < want; i++ {
		line := startLine + i
		for b := 0; b < LineBytes; b++ {
			dst[int(i)*LineBytes+b] = cache[(int(line)*LineBytes+b)%len(cache)] ^ byte(line) ^ byte(b)
		}
	}
}
