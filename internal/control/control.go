// Package control holds the process-wide scheduling state the original
// daemon kept as globals (shutdown_pending, hold, curr_algo, curr_epoch,
// alt_epoch, max_cache, the path templates) and the event-ingress logic
// that mutates it from bus notifications. Control is filled in by cmd/dagd
// at startup, may have its current epoch seeded by the daemon's
// initDefaults, and is then updated by Ingress.Dispatch and read by the
// scheduler and host loop; all of these run on the single logical thread
// the host loop drives, so no locking is needed (spec.md §5's "no shared
// mutable state between cores").
package control

import (
	"math"

	"github.com/dagforge/dagd/internal/kernel"
)

// InfiniteCache is the MaxCache value meaning "no budget configured": no
// real dataset cache approaches it, so admission checks against it never
// trigger eviction.
const InfiniteCache = math.MaxInt64

// DefaultEtchashActivation is the ECIP-1099 activation epoch used when
// --etchash is not given.
const DefaultEtchashActivation = 390

// Control is the shared, explicitly-threaded replacement for the original
// daemon's global control variables (spec.md §3 "Control state", §9's own
// proposed resolution).
type Control struct {
	ShutdownPending bool
	Hold            bool

	// HaveCurr reports whether CurrAlgo/CurrEpoch have been set yet
	// (the original used curr_algo == -1 / curr_epoch == 0 as "unset"
	// sentinels; an explicit bool avoids overloading epoch 0, which
	// EPOCH_MIN already excludes but which is clearer stated directly).
	HaveCurr  bool
	CurrAlgo  kernel.Algorithm
	CurrEpoch uint32

	HaveAltEpoch bool
	AltEpoch     uint32

	EtchashActivation uint32

	// MaxCache is the total on-disk byte budget across all tracked
	// epochs. InfiniteCache means unlimited.
	MaxCache int64

	DagPathTemplate  string
	CsumPathTemplate string
}

// New returns a Control with the original daemon's defaults: unlimited
// cache, ETChash activation at epoch 390, no current algorithm/epoch.
func New() *Control {
	return &Control{
		MaxCache:          InfiniteCache,
		EtchashActivation: DefaultEtchashActivation,
	}
}

// SetCurrent updates the algorithm/epoch the scheduler should be working
// toward, matching the original's curr_algo/curr_epoch assignment followed
// by notify(mqtt_notify_epoch).
func (c *Control) SetCurrent(algo kernel.Algorithm, epoch uint32) {
	c.HaveCurr = true
	c.CurrAlgo = algo
	c.CurrEpoch = epoch
}
