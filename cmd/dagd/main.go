// Command dagd is the DAG cache build/verify daemon (spec.md §6): it keeps
// one or more Ethash-family dataset files on disk up to date with whatever
// (algorithm, epoch) a mining rig's event bus announces, building ahead of
// need and evicting to stay inside a configured size budget.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/dagforge/dagd/internal/bus"
	"github.com/dagforge/dagd/internal/budget"
	"github.com/dagforge/dagd/internal/cli"
	"github.com/dagforge/dagd/internal/config"
	"github.com/dagforge/dagd/internal/control"
	"github.com/dagforge/dagd/internal/csumgen"
	"github.com/dagforge/dagd/internal/daemon"
	"github.com/dagforge/dagd/internal/dagio"
	"github.com/dagforge/dagd/internal/diag"
	"github.com/dagforge/dagd/internal/epoch"
	"github.com/dagforge/dagd/internal/kernel"
	"github.com/dagforge/dagd/internal/scheduler"
	"github.com/dagforge/dagd/pkg/fs"
)

func main() {
	io := cli.NewIO(os.Stdout, os.Stderr)

	if err := run(context.Background(), os.Args[1:], io); err != nil {
		io.ErrPrintln(err)
		os.Exit(1)
	}
}

// flagValues bundles every CLI-settable value cmd/dagd accepts, before it
// is merged over config.Config and turned into running components.
type flagValues struct {
	oneShot     int
	algo        string
	debug       int
	epochNum    uint32
	haveEpoch   bool
	genEpoch    uint32
	haveGen     bool
	broker      string
	statusOnBus bool
	sizeSpec    string
	etchash     uint32
	haveEtchash bool
	altEpoch    uint32
	haveAlt     bool
	statusFile  string
	configPath  string
}

func run(ctx context.Context, args []string, io *cli.IO) error {
	flagSet := flag.NewFlagSet("dagd", flag.ContinueOnError)
	flagSet.SetOutput(io.ErrWriter())

	var f flagValues

	flagSet.CountVarP(&f.oneShot, "one-shot", "1", "verify/generate then exit; repeat to restrict work to the named epoch")
	flagSet.StringVarP(&f.algo, "algo", "a", "", "mining algorithm (ethash, etchash, ubqhash)")
	flagSet.CountVarP(&f.debug, "debug", "d", "increase diagnostic verbosity")
	flagSet.Uint32VarP(&f.epochNum, "epoch", "e", 0, "starting epoch")
	flagSet.Uint32VarP(&f.genEpoch, "gen-checksum", "g", 0, "build the named epoch's cache, stream its checksums to stdout, and exit")
	flagSet.StringVarP(&f.broker, "broker", "m", "", "event bus broker address (host[:port])")
	flagSet.BoolVarP(&f.statusOnBus, "status-bus", "M", false, "publish status on the bus even in one-shot mode")
	flagSet.StringVarP(&f.sizeSpec, "size", "s", "", "cache size budget: <n>[kMG] or <path>-<reserve>[kMG]")
	flagSet.Uint32Var(&f.etchash, "etchash", 0, "ECIP-1099 activation epoch")
	flagSet.Uint32Var(&f.altEpoch, "alt-epoch", 0, "epoch number to ignore in announcements (dual-epoch rigs)")
	flagSet.StringVar(&f.statusFile, "status-file", "", "atomically write the registry report to this path on every status tick")
	flagSet.StringVar(&f.configPath, "config", "", "path to a dagd config.hujson file (overrides $XDG_CONFIG_HOME)")

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	f.haveEpoch = flagSet.Changed("epoch")
	f.haveGen = flagSet.Changed("gen-checksum")
	f.haveEtchash = flagSet.Changed("etchash")
	f.haveAlt = flagSet.Changed("alt-epoch")

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	if f.haveGen {
		return runGenChecksum(f, io)
	}

	positional := flagSet.Args()

	dagTmpl := cfg.DagPathTemplate
	if len(positional) >= 1 {
		dagTmpl = positional[0]
	}

	if dagTmpl == "" {
		return fmt.Errorf("usage: dagd [flags] <dag-fmt> [csum-fmt]")
	}

	if err := epoch.ValidatePathTemplate(dagTmpl); err != nil {
		return err
	}

	csumTmpl := cfg.CsumPathTemplate
	if len(positional) >= 2 {
		csumTmpl = positional[1]
	}

	if csumTmpl != "" {
		if err := epoch.ValidatePathTemplate(csumTmpl); err != nil {
			return err
		}
	}

	debugLevel := uint(f.debug)
	if debugLevel == 0 {
		debugLevel = uint(cfg.DebugLevel)
	}

	log := diag.New(io.ErrWriter(), debugLevel)

	ctrl := control.New()

	if f.haveEtchash {
		ctrl.EtchashActivation = f.etchash
	} else if cfg.EtchashActivation != 0 {
		ctrl.EtchashActivation = cfg.EtchashActivation
	}

	if f.haveAlt {
		ctrl.HaveAltEpoch = true
		ctrl.AltEpoch = f.altEpoch
	}

	algo := kernel.Ethash

	if f.algo != "" {
		algo, err = kernel.ParseAlgorithm(f.algo)
		if err != nil {
			return err
		}
	}

	if f.haveEpoch {
		ctrl.SetCurrent(algo, f.epochNum)
	}

	sizeSpec := f.sizeSpec
	if sizeSpec == "" {
		sizeSpec = cfg.MaxCacheSpec
	}

	if sizeSpec != "" {
		maxCache, err := budget.Parse(sizeSpec)
		if err != nil {
			return err
		}

		ctrl.MaxCache = maxCache
	}

	realFS := fs.NewReal()
	store := dagio.New(realFS)

	// A dataset line is the natural block granularity for Record's Size()
	// accounting; dagd has no separate filesystem-block-size discovery
	// path the way the original's statvfs-based sizing did.
	const blockSize = int64(kernel.LineBytes)

	reg := epoch.New(epoch.Config{
		Store:            store,
		FS:               realFS,
		KernelsFor:       kernel.For,
		DagPathTemplate:  dagTmpl,
		CsumPathTemplate: csumTmpl,
		BlockSize:        blockSize,
		MaxCache:         ctrl.MaxCache,
		Log:              log,
	})

	broker := f.broker
	if broker == "" {
		broker = cfg.Broker
	}

	justOne := f.oneShot > 0

	eventBus, closeBus, err := dialBus(broker, justOne, f.statusOnBus)
	if err != nil {
		return err
	}
	defer closeBus() //nolint:errcheck // best-effort disconnect on exit

	hasher := kernel.NewSHA3Hasher()
	sched := scheduler.New(ctrl, reg, hasher)
	ingress := control.NewIngress(ctrl, log)

	d := daemon.New(daemon.Config{
		Control:       ctrl,
		Registry:      reg,
		Scheduler:     sched,
		Ingress:       ingress,
		Bus:           eventBus,
		Log:           log,
		PublishStatus: !justOne || f.statusOnBus,
		StatusFile:    f.statusFile,
		FS:            realFS,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if justOne {
		return d.RunOnce(runCtx, f.oneShot >= 2)
	}

	return d.Run(runCtx)
}

// dialBus connects to broker unless running one-shot without -M, in which
// case a Null bus avoids paying for an MQTT round trip a run that never
// publishes status and never needs epoch announcements has no use for.
func dialBus(broker string, justOne, statusOnBus bool) (bus.Bus, func() error, error) {
	if justOne && !statusOnBus {
		return bus.Null{}, func() error { return nil }, nil
	}

	m, err := bus.Dial(broker, justOne)
	if err != nil {
		return nil, nil, err
	}

	return m, m.Close, nil
}

// runGenChecksum implements -g: build the named epoch's cache once and
// stream its checksums to stdout, bypassing the registry/scheduler/daemon
// machinery entirely (spec.md's supplemented feature 1).
func runGenChecksum(f flagValues, io *cli.IO) error {
	algo := kernel.Ethash

	var err error
	if f.algo != "" {
		algo, err = kernel.ParseAlgorithm(f.algo)
		if err != nil {
			return err
		}
	}

	kern, err := kernel.For(algo)
	if err != nil {
		return err
	}

	return csumgen.Generate(kern, kernel.NewSHA3Hasher(), f.genEpoch, io.OutWriter())
}
