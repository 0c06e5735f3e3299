package control

import (
	"strconv"
	"strings"

	"github.com/dagforge/dagd/internal/bus"
	"github.com/dagforge/dagd/internal/diag"
	"github.com/dagforge/dagd/internal/kernel"
)

// slotState is the per-slot mining-progress bookkeeping Ingress needs to
// compute Hold: whether a slot is mid-upload (some progress fraction
// strictly between 0 and 1) and whether the miner considers that slot
// running at all. Both must hold for that slot to justify suspending
// scheduler ticks.
type slotState struct {
	dagFrac  float64
	algoFrac float64
	running  bool
}

func (s slotState) uploading() bool {
	return between01(s.dagFrac) || between01(s.algoFrac)
}

func between01(f float64) bool {
	return f > 0 && f < 1
}

// Ingress dispatches event-bus messages into Control mutations, matching
// spec.md §4.6. Once the host loop is running it is the only writer of the
// fields it touches (cmd/dagd and the daemon's initDefaults set them before
// that); Scheduler only ever reads them, so the two never need to
// coordinate beyond running on the same logical thread (spec.md §5).
type Ingress struct {
	ctrl *Control
	log  *diag.Logger

	slots [2]slotState

	// Woken is set whenever Dispatch changes (CurrAlgo, CurrEpoch), so the
	// host loop can tell "the event changed what we're working toward"
	// apart from "nothing interesting happened" without comparing the
	// whole Control struct itself.
	Woken bool
}

// NewIngress returns an Ingress writing into ctrl. log may be nil.
func NewIngress(ctrl *Control, log *diag.Logger) *Ingress {
	if log == nil {
		log = diag.Nop()
	}

	return &Ingress{ctrl: ctrl, log: log}
}

// Dispatch applies msg to Control, matching spec.md §4.6's topic mapping.
// Unrecognized topics and malformed payloads are logged and dropped —
// never fatal (spec.md §7's "protocol parse errors ... log and drop").
func (g *Ingress) Dispatch(msg bus.Message) {
	switch {
	case msg.Topic == bus.TopicShutdown:
		g.dispatchShutdown(msg.Payload)
	case msg.Topic == bus.TopicEpoch || msg.Topic == bus.TopicSlot0Epoch || msg.Topic == bus.TopicSlot1Epoch:
		g.dispatchEpoch(msg.Payload)
	case msg.Topic == bus.TopicSlot0State:
		g.dispatchState(0, msg.Payload)
	case msg.Topic == bus.TopicSlot1State:
		g.dispatchState(1, msg.Payload)
	case msg.Topic == bus.TopicRunning:
		g.dispatchRunning(-1, msg.Payload)
	case msg.Topic == bus.TopicRunning0:
		g.dispatchRunning(0, msg.Payload)
	case msg.Topic == bus.TopicRunning1:
		g.dispatchRunning(1, msg.Payload)
	default:
		g.log.Printf(2, "control: ignoring unrecognized topic %q", msg.Topic)
	}
}

// dispatchShutdown handles /sys/shutdown: "0"/"1".
func (g *Ingress) dispatchShutdown(payload string) {
	switch strings.TrimSpace(payload) {
	case "1":
		g.ctrl.ShutdownPending = true
	case "0":
		g.ctrl.ShutdownPending = false
	default:
		g.log.Printf(1, "control: malformed shutdown payload %q", payload)
	}
}

// dispatchEpoch handles "<n>[ <algo_name>]". alt_epoch is ignored outright
// (spec.md §4.6); a missing algorithm name defaults to ethash.
func (g *Ingress) dispatchEpoch(payload string) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		g.log.Printf(1, "control: empty epoch payload")

		return
	}

	n, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		g.log.Printf(1, "control: malformed epoch payload %q: %v", payload, err)

		return
	}

	epoch := uint32(n)

	if g.ctrl.HaveAltEpoch && epoch == g.ctrl.AltEpoch {
		g.log.Printf(2, "control: ignoring alt-epoch announcement %d", epoch)

		return
	}

	algo := kernel.Ethash

	if len(fields) >= 2 {
		parsed, err := kernel.ParseAlgorithm(fields[1])
		if err != nil {
			g.log.Printf(1, "control: malformed algorithm in epoch payload %q: %v", payload, err)

			return
		}

		algo = parsed
	}

	if g.ctrl.HaveCurr && g.ctrl.CurrAlgo == algo && g.ctrl.CurrEpoch == epoch {
		return
	}

	g.log.Printf(1, "control: epoch change -> %s %d", algo.Name(), epoch)
	g.ctrl.SetCurrent(algo, epoch)
	g.Woken = true
}

// dispatchState handles /mine/<slot>/state: free-form key:value tokens,
// only D: and A: are meaningful.
func (g *Ingress) dispatchState(slot int, payload string) {
	for _, tok := range strings.Fields(payload) {
		key, val, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}

		frac, err := strconv.ParseFloat(val, 64)
		if err != nil {
			g.log.Printf(2, "control: malformed state token %q: %v", tok, err)

			continue
		}

		switch key {
		case "D":
			g.slots[slot].dagFrac = frac
		case "A":
			g.slots[slot].algoFrac = frac
		}
	}

	g.recomputeHold()
}

// dispatchRunning handles /mine/running (slot == -1, wildcard) and
// /mine/<slot>/running.
func (g *Ingress) dispatchRunning(slot int, payload string) {
	var running bool

	switch strings.TrimSpace(payload) {
	case "1":
		running = true
	case "0":
		running = false
	default:
		g.log.Printf(1, "control: malformed running payload %q", payload)

		return
	}

	if slot < 0 {
		g.slots[0].running = running
		g.slots[1].running = running
	} else {
		g.slots[slot].running = running
	}

	g.recomputeHold()
}

// recomputeHold implements hold = (slot0_uploading && slot0_running) ||
// (slot1_uploading && slot1_running), spec.md §4.6.
func (g *Ingress) recomputeHold() {
	hold := (g.slots[0].uploading() && g.slots[0].running) ||
		(g.slots[1].uploading() && g.slots[1].running)

	if hold != g.ctrl.Hold {
		g.log.Printf(1, "control: hold -> %v", hold)
	}

	g.ctrl.Hold = hold
}
