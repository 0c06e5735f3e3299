// Package cachestage implements the incremental, resumable construction of
// an epoch's intermediate cache: derive the seed hash, allocate and
// initialize the cache from the seed, then run a fixed number of mixing
// rounds over it. Each step is a unit of work a scheduler tick can perform
// without blocking on the others, so construction can be interleaved with
// everything else the daemon does.
package cachestage

import "github.com/dagforge/dagd/internal/kernel"

// Stage tracks the incremental state of one epoch's cache construction.
// The zero value is not usable; use New.
type Stage struct {
	kern  kernel.Kernels
	epoch uint32

	haveSeed bool
	seed     [kernel.SeedBytes]byte

	cache []byte
	round int // next round to run; == kernel.CacheRounds means fully built
}

// New returns a Stage that will build epoch's cache using kern.
func New(kern kernel.Kernels, epoch uint32) *Stage {
	return &Stage{kern: kern, epoch: epoch}
}

// Build performs one unit of work toward a complete cache: deriving the
// seed, allocating and initializing the cache, or running one mixing round.
// It returns true if it did work and should be called again, false if the
// cache is already fully built.
func (s *Stage) Build() bool {
	if !s.haveSeed {
		s.seed = s.kern.SeedHash(s.epoch)
		s.haveSeed = true

		return true
	}

	if s.cache == nil {
		s.cache = make([]byte, s.kern.CacheBytes(s.epoch))
		s.kern.InitCache(s.cache, s.seed)

		return true
	}

	if s.round != kernel.CacheRounds {
		s.kern.MixCacheRound(s.cache)
		s.round++

		return true
	}

	return false
}

// Done reports whether the cache is fully built and ready for
// ChunkEngine to use.
func (s *Stage) Done() bool {
	return s.haveSeed && s.cache != nil && s.round == kernel.CacheRounds
}

// Cache returns the built cache bytes. Only valid once Done reports true.
func (s *Stage) Cache() []byte {
	return s.cache
}

// Round reports how many mixing rounds have completed so far, for status
// reporting (the original daemon reports this alongside CacheRounds).
func (s *Stage) Round() int {
	return s.round
}

// Reset discards all progress, freeing the cache and restarting
// construction from the seed-hash step. The epoch registry calls this once
// an epoch's dataset is fully verified/generated and the cache is no longer
// needed, and when a record is removed or shut down.
func (s *Stage) Reset() {
	s.haveSeed = false
	s.seed = [kernel.SeedBytes]byte{}
	s.cache = nil
	s.round = 0
}
