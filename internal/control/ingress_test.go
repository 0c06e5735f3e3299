package control_test

import (
	"testing"

	"github.com/dagforge/dagd/internal/bus"
	"github.com/dagforge/dagd/internal/control"
	"github.com/dagforge/dagd/internal/kernel"
)

func TestIngress_Dispatch_ShutdownTogglesControl(t *testing.T) {
	t.Parallel()

	ctrl := control.New()
	ing := control.NewIngress(ctrl, nil)

	ing.Dispatch(bus.Message{Topic: bus.TopicShutdown, Payload: "1"})

	if !ctrl.ShutdownPending {
		t.Fatalf("ShutdownPending=false after shutdown:1")
	}

	ing.Dispatch(bus.Message{Topic: bus.TopicShutdown, Payload: "0"})

	if ctrl.ShutdownPending {
		t.Fatalf("ShutdownPending=true after shutdown:0")
	}
}

func TestIngress_Dispatch_EpochUpdatesControlAndWoken(t *testing.T) {
	t.Parallel()

	ctrl := control.New()
	ing := control.NewIngress(ctrl, nil)

	ing.Dispatch(bus.Message{Topic: bus.TopicEpoch, Payload: "42 etchash"})

	if !ctrl.HaveCurr || ctrl.CurrAlgo != kernel.Etchash || ctrl.CurrEpoch != 42 {
		t.Fatalf("Control after epoch dispatch: have=%v algo=%v epoch=%d", ctrl.HaveCurr, ctrl.CurrAlgo, ctrl.CurrEpoch)
	}

	if !ing.Woken {
		t.Fatalf("Woken=false after an epoch change")
	}
}

func TestIngress_Dispatch_EpochDefaultsToEthashWithoutAlgoField(t *testing.T) {
	t.Parallel()

	ctrl := control.New()
	ing := control.NewIngress(ctrl, nil)

	ing.Dispatch(bus.Message{Topic: bus.TopicEpoch, Payload: "7"})

	if ctrl.CurrAlgo != kernel.Ethash || ctrl.CurrEpoch != 7 {
		t.Fatalf("Control after bare epoch dispatch: algo=%v epoch=%d", ctrl.CurrAlgo, ctrl.CurrEpoch)
	}
}

func TestIngress_Dispatch_EpochIgnoresConfiguredAltEpoch(t *testing.T) {
	t.Parallel()

	ctrl := control.New()
	ctrl.HaveAltEpoch = true
	ctrl.AltEpoch = 99

	ing := control.NewIngress(ctrl, nil)

	ing.Dispatch(bus.Message{Topic: bus.TopicEpoch, Payload: "99 ethash"})

	if ctrl.HaveCurr {
		t.Fatalf("HaveCurr=true, an alt-epoch announcement should be ignored entirely")
	}
}

func TestIngress_Dispatch_StateAndRunningComputeHold(t *testing.T) {
	t.Parallel()

	ctrl := control.New()
	ing := control.NewIngress(ctrl, nil)

	// Slot 0 mid-upload and running -> hold.
	ing.Dispatch(bus.Message{Topic: bus.TopicSlot0State, Payload: "D:0.5 A:0.2"})
	ing.Dispatch(bus.Message{Topic: bus.TopicRunning0, Payload: "1"})

	if !ctrl.Hold {
		t.Fatalf("Hold=false, want true while slot 0 uploads and runs")
	}

	// Slot 0 finishes uploading (fraction reaches 1) -> hold drops.
	ing.Dispatch(bus.Message{Topic: bus.TopicSlot0State, Payload: "D:1 A:1"})

	if ctrl.Hold {
		t.Fatalf("Hold=true, want false once slot 0 finished uploading")
	}
}

func TestIngress_Dispatch_RunningWildcardAppliesToBothSlots(t *testing.T) {
	t.Parallel()

	ctrl := control.New()
	ing := control.NewIngress(ctrl, nil)

	ing.Dispatch(bus.Message{Topic: bus.TopicSlot0State, Payload: "D:0.5"})
	ing.Dispatch(bus.Message{Topic: bus.TopicSlot1State, Payload: "D:0.5"})
	ing.Dispatch(bus.Message{Topic: bus.TopicRunning, Payload: "1"})

	if !ctrl.Hold {
		t.Fatalf("Hold=false, want true with both slots mid-upload and /mine/running:1")
	}
}

func TestIngress_Dispatch_MalformedPayloadsAreDropped(t *testing.T) {
	t.Parallel()

	ctrl := control.New()
	ing := control.NewIngress(ctrl, nil)

	ing.Dispatch(bus.Message{Topic: bus.TopicShutdown, Payload: "maybe"})

	if ctrl.ShutdownPending {
		t.Fatalf("ShutdownPending=true after malformed payload")
	}

	ing.Dispatch(bus.Message{Topic: bus.TopicEpoch, Payload: "not-a-number"})

	if ctrl.HaveCurr {
		t.Fatalf("HaveCurr=true after malformed epoch payload")
	}
}

func TestIngress_Dispatch_UnrecognizedTopicIsIgnored(t *testing.T) {
	t.Parallel()

	ctrl := control.New()
	ing := control.NewIngress(ctrl, nil)

	ing.Dispatch(bus.Message{Topic: "/unknown/topic", Payload: "1"})

	if ctrl.ShutdownPending || ctrl.HaveCurr || ctrl.Hold {
		t.Fatalf("unrecognized topic mutated control state")
	}
}
