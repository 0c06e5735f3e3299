// Package daemon implements the host loop (spec.md §4.7): it alternates
// Scheduler ticks with EventIngress polls, suspending ticks while Control
// reports Hold or there is no work to do, and publishes a rate-limited
// status report on the event bus.
package daemon

import (
	"context"
	"strings"
	"time"

	"github.com/dagforge/dagd/internal/bus"
	"github.com/dagforge/dagd/internal/control"
	"github.com/dagforge/dagd/internal/diag"
	"github.com/dagforge/dagd/internal/epoch"
	"github.com/dagforge/dagd/internal/scheduler"
	"github.com/dagforge/dagd/pkg/fs"
)

// PollWait is the nominal blocking poll duration used while idle or held,
// matching spec.md §5's POLL_WAIT_MS.
const PollWait = 200 * time.Millisecond

// statusInterval is the minimum spacing between non-flushed status
// publishes, matching spec.md §5's "at most one message per wall-clock
// second unless a flush is requested".
const statusInterval = time.Second

// Config bundles everything Daemon needs to run the host loop.
type Config struct {
	Control   *control.Control
	Registry  *epoch.Registry
	Scheduler *scheduler.Scheduler
	Ingress   *control.Ingress
	Bus       bus.Bus
	Log       *diag.Logger

	// PublishStatus enables publishing on bus.TopicCache at all. Disabled
	// by default in one-shot mode unless -M was given (spec.md §6).
	PublishStatus bool

	// StatusFile, if set, receives an atomically-written copy of the
	// registry report every time publish fires, independent of
	// PublishStatus -- the operator-facing "-status-file" dump, which has
	// no bus subscriber of its own to rate-limit against.
	StatusFile string

	// FS backs the StatusFile write. Required only if StatusFile is set.
	FS fs.FS
}

// Daemon drives Scheduler and Ingress from a single goroutine, matching
// spec.md §5's single-threaded cooperative model: Tick and Dispatch never
// run concurrently with each other.
type Daemon struct {
	ctrl   *control.Control
	reg    *epoch.Registry
	sched  *scheduler.Scheduler
	ingr   *control.Ingress
	events bus.Bus
	log    *diag.Logger

	publishStatus bool
	statusFile    string
	statusWriter  *fs.AtomicWriter
	lastStatus    time.Time
}

// New returns a Daemon built from cfg. Nil Log is replaced with a no-op
// logger.
func New(cfg Config) *Daemon {
	log := cfg.Log
	if log == nil {
		log = diag.Nop()
	}

	d := &Daemon{
		ctrl:          cfg.Control,
		reg:           cfg.Registry,
		sched:         cfg.Scheduler,
		ingr:          cfg.Ingress,
		events:        cfg.Bus,
		log:           log,
		publishStatus: cfg.PublishStatus,
		statusFile:    cfg.StatusFile,
	}

	if cfg.StatusFile != "" {
		d.statusWriter = fs.NewAtomicWriter(cfg.FS)
	}

	return d
}

// Run drives the continuous host loop until ctx is cancelled or a shutdown
// notification arrives, then shuts the registry down and returns.
//
// The original daemon nests this in an outer "while not shutdown_pending"
// rescan loop (spec.md §4.7's pseudo-contract); the inner loop's exit
// condition is the same shutdown_pending flag, so the outer loop body only
// ever executes once in practice. This implementation keeps that single
// scan-then-run shape rather than modeling a rescan that spec.md never
// actually triggers.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.reg.Scan(); err != nil {
		return err
	}

	d.initDefaults()

	defer d.reg.Shutdown()

	idle := false

	for !d.ctrl.ShutdownPending && ctx.Err() == nil {
		if d.ctrl.Hold || idle {
			changed, err := d.pollAndDispatch(ctx, PollWait)
			if err != nil {
				return errIfNotCtxDone(ctx, err)
			}

			if changed {
				idle = false
			}

			continue
		}

		more, err := d.sched.Tick(false)
		if err != nil {
			return err
		}

		idle = !more
		d.publish(ctx, idle)

		if _, err := d.pollAndDispatch(ctx, 0); err != nil {
			return errIfNotCtxDone(ctx, err)
		}
	}

	return nil
}

// RunOnce drives the one-shot host loop (the original's "-1"/"-1 -1"): it
// scans exactly once, ticks until Tick reports no more work (or shutdown
// is requested), and never speculatively re-scans. justOne mirrors the
// doubled "-1 -1" flag, restricting Scheduler.Tick to exactly the named
// epoch (spec.md §4.5); a single "-1" still runs one-shot but leaves the
// normal wipe/growth arbitration enabled.
func (d *Daemon) RunOnce(ctx context.Context, justOne bool) error {
	if err := d.reg.Scan(); err != nil {
		return err
	}

	d.initDefaults()

	defer d.reg.Shutdown()

	for {
		if ctx.Err() != nil {
			return nil
		}

		more, err := d.sched.Tick(justOne)
		if err != nil {
			return err
		}

		d.publish(ctx, !more)

		if !more {
			break
		}

		if _, err := d.pollAndDispatch(ctx, 0); err != nil {
			return errIfNotCtxDone(ctx, err)
		}

		if d.ctrl.ShutdownPending {
			break
		}
	}

	return nil
}

// pollAndDispatch polls the bus for up to wait and dispatches every
// message received, reporting whether (CurrAlgo, CurrEpoch) changed as a
// result.
func (d *Daemon) pollAndDispatch(ctx context.Context, wait time.Duration) (changed bool, err error) {
	algoBefore, epochBefore := d.ctrl.CurrAlgo, d.ctrl.CurrEpoch

	msgs, err := d.events.Poll(ctx, wait)
	if err != nil {
		return false, err
	}

	for _, msg := range msgs {
		d.ingr.Dispatch(msg)
	}

	return d.ctrl.CurrAlgo != algoBefore || d.ctrl.CurrEpoch != epochBefore, nil
}

// errIfNotCtxDone swallows err when it is just ctx's own cancellation
// (a clean shutdown request), so Run/RunOnce return nil instead of
// surfacing context.Canceled as a daemon failure.
func errIfNotCtxDone(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}

	return err
}

// initDefaults seeds Control's (CurrAlgo, CurrEpoch) from whatever Scan
// found on disk when no epoch announcement or CLI flag has set them yet, so
// a daemon started with a populated cache directory but no -e resumes
// instead of sitting idle until the first bus notification. Records are
// kept sorted ascending by epoch, so the first tracked record is the
// lowest, matching the original daemon's epoch_init seeding curr_epoch
// from epochs->num (the head of its ascending list).
func (d *Daemon) initDefaults() {
	if d.ctrl.HaveCurr {
		return
	}

	recs := d.reg.Records()
	if len(recs) == 0 {
		return
	}

	first := recs[0]
	d.ctrl.SetCurrent(first.Algorithm(), first.Num())
}

// publish sends the current registry report on bus.TopicCache, honoring
// the 1/sec rate limit unless flush is set (spec.md §5). flush is set
// whenever the loop just went idle or just finished a one-shot run, so a
// subscriber always sees the final state promptly.
func (d *Daemon) publish(ctx context.Context, flush bool) {
	if !d.publishStatus && d.statusFile == "" {
		return
	}

	now := time.Now()
	if !flush && !d.lastStatus.IsZero() && now.Sub(d.lastStatus) < statusInterval {
		return
	}

	d.lastStatus = now
	report := d.reg.Report()

	if d.publishStatus {
		if err := d.events.Publish(ctx, bus.TopicCache, report, true); err != nil {
			d.log.Printf(1, "daemon: status publish failed: %v", err)
		}
	}

	if d.statusFile != "" {
		if err := d.statusWriter.WriteWithDefaults(d.statusFile, strings.NewReader(report)); err != nil {
			d.log.Printf(1, "daemon: status file write failed: %v", err)
		}
	}
}
