// Package scheduler implements the daemon's single public "do one quantum
// of work" entry point (spec.md §4.5): it arbitrates between prepending a
// newly-announced epoch, wiping a stale one, advancing an in-progress
// one, or growing into a brand new one, bounded by the configured cache
// budget.
package scheduler

import (
	"github.com/dagforge/dagd/internal/chunkengine"
	"github.com/dagforge/dagd/internal/control"
	"github.com/dagforge/dagd/internal/epoch"
	"github.com/dagforge/dagd/internal/kernel"
)

// Scheduler advances the epoch registry one unit of work per Tick call,
// reading and reacting to whatever Control currently holds.
type Scheduler struct {
	ctrl   *control.Control
	reg    *epoch.Registry
	hasher kernel.Hasher
}

// New returns a Scheduler driving reg according to ctrl. hasher verifies
// chunk checksums; the zero value of kernel.SHA3Hasher is the production
// default.
func New(ctrl *control.Control, reg *epoch.Registry, hasher kernel.Hasher) *Scheduler {
	return &Scheduler{ctrl: ctrl, reg: reg, hasher: hasher}
}

// Tick performs at most one unit of work — one chunk verify/generate, one
// cache-construction round, one prepend, one wipe, or one admission of a
// new epoch — and reports whether it did anything. A false result means
// the daemon can idle until the next external event (spec.md §4.5).
//
// justOne mirrors the original daemon's "-1 -1" one-shot mode: stale-epoch
// wiping and speculative growth into an epoch beyond curr_epoch are both
// suppressed, so a single invocation only ever finishes (or starts) the
// one epoch currently named by Control.
func (s *Scheduler) Tick(justOne bool) (bool, error) {
	if !s.ctrl.HaveCurr {
		return false, nil
	}

	added, err := s.reg.MaybePrepend(s.ctrl.CurrAlgo, s.ctrl.CurrEpoch)
	if err != nil {
		return false, err
	}

	if added {
		return true, nil
	}

	if !justOne && s.reg.MaybeWipe(s.ctrl.CurrAlgo, s.ctrl.CurrEpoch) {
		return true, nil
	}

	if more, handled, err := s.advance(justOne); handled {
		return more, err
	}

	return s.grow(justOne)
}

// advance walks the registry in ascending order starting at curr_epoch,
// over the contiguous run of tracked epochs for curr_algo, performing one
// unit of work on the first one that still needs any. handled is false
// when the walk fell off the end of the contiguous run without finding
// work (the record rec, if any, is exhausted/complete and the daemon
// should consider growing into a brand new epoch instead).
func (s *Scheduler) advance(justOne bool) (more bool, handled bool, err error) {
	next := s.ctrl.CurrEpoch

	for _, rec := range s.reg.Records() {
		if rec.Algorithm() != s.ctrl.CurrAlgo || rec.Num() < next {
			continue
		}

		if rec.Num() > next {
			break
		}

		if rec.Complete() {
			s.reg.ReleaseCache(rec)
			next++

			continue
		}

		return s.workOn(rec, justOne)
	}

	return false, false, nil
}

// workOn performs the growth-admission check and then one ChunkEngine (or
// CacheStage) step on rec, which the caller has already established needs
// more work.
func (s *Scheduler) workOn(rec *epoch.Record, justOne bool) (more bool, handled bool, err error) {
	if !justOne {
		sum := s.reg.TotalSize()
		if sum > s.ctrl.MaxCache || sum+rec.Final()-rec.Size() > s.ctrl.MaxCache {
			succ := s.reg.Successor(rec)
			if succ == nil {
				return false, true, nil
			}

			s.reg.Remove(succ)

			return true, true, nil
		}
	}

	if !rec.HasFile() {
		if err := s.reg.CreateFile(rec); err != nil {
			return false, true, nil //nolint:nilerr // create failure: tick reports no progress, daemon keeps running (spec.md §7)
		}
	}

	if _, err := chunkengine.WorkOn(rec, s.hasher); err != nil {
		return false, true, err
	}

	if err := rec.RefreshSize(s.reg.BlockSize()); err != nil {
		return false, true, err
	}

	return true, true, nil
}

// grow considers admitting a brand new epoch at curr_epoch's successor
// once every tracked epoch for curr_algo is either absent or complete.
// With justOne set, only curr_epoch itself is admitted, without a budget
// check.
func (s *Scheduler) grow(justOne bool) (bool, error) {
	next := s.nextEpoch()

	if justOne {
		if next != s.ctrl.CurrEpoch {
			return false, nil
		}
	} else {
		kern, err := s.reg.KernelFor(s.ctrl.CurrAlgo)
		if err != nil {
			return false, err
		}

		if !s.reg.MayAdd(s.ctrl.CurrAlgo, next, kern) {
			return false, nil
		}
	}

	if _, err := s.reg.NewEpoch(s.ctrl.CurrAlgo, next); err != nil {
		return false, err
	}

	return true, nil
}

// nextEpoch returns the first epoch number at or after curr_epoch that is
// not already tracked for curr_algo, mirroring the contiguous walk advance
// performs.
func (s *Scheduler) nextEpoch() uint32 {
	next := s.ctrl.CurrEpoch

	for _, rec := range s.reg.Records() {
		if rec.Algorithm() != s.ctrl.CurrAlgo || rec.Num() < next {
			continue
		}

		if rec.Num() > next {
			break
		}

		next++
	}

	return next
}
