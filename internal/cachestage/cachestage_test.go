package cachestage_test

import (
	"testing"

	"github.com/dagforge/dagd/internal/cachestage"
	"github.com/dagforge/dagd/internal/kernel"
)

func TestStage_Build_RunsSeedThenInitThenRoundsThenDone(t *testing.T) {
	t.Parallel()

	kern := kernel.NewFake(kernel.Ethash)
	s := cachestage.New(kern, 5)

	steps := 0
	for s.Build() {
		steps++

		if steps > 100 {
			t.Fatalf("Build never converged")
		}
	}

	// 1 seed step + 1 init step + kernel.CacheRounds round steps.
	want := 2 + kernel.CacheRounds
	if steps != want {
		t.Fatalf("steps=%d, want %d", steps, want)
	}

	if !s.Done() {
		t.Fatalf("Done()=false after Build() returned false")
	}

	if len(s.Cache()) != int(kern.CacheBytes(5)) {
		t.Fatalf("len(Cache())=%d, want %d", len(s.Cache()), kern.CacheBytes(5))
	}
}

func TestStage_Reset_RestartsConstruction(t *testing.T) {
	t.Parallel()

	kern := kernel.NewFake(kernel.Ethash)
	s := cachestage.New(kern, 1)

	for s.Build() {
	}

	firstCache := append([]byte(nil), s.Cache()...)

	s.Reset()

	if s.Done() {
		t.Fatalf("Done()=true immediately after Reset")
	}

	for s.Build() {
	}

	if string(s.Cache()) != string(firstCache) {
		t.Fatalf("cache after reset+rebuild differs from first build; construction is not deterministic")
	}
}
