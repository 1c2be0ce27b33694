package audio_test

import (
	"testing"

	"github.com/mirepoix-app/mirepoix/pkg/audio"
)

// loudBlock returns a block whose RMS is comfortably above threshold.
func loudBlock(n int) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = 0.5
	}
	return b
}

// quietBlock returns a near-silent block.
func quietBlock(n int) []float32 {
	b := make([]float32, n)
	for i := range b {
		b[i] = 0.001
	}
	return b
}

func TestNoiseGate_PassesSpeech(t *testing.T) {
	t.Parallel()
	g := audio.NewNoiseGate(audio.GateConfig{Threshold: 0.1, HangBlocks: 3})

	for i := range 10 {
		if !g.Pass(loudBlock(160)) {
			t.Fatalf("loud block %d was dropped", i)
		}
	}
}

func TestNoiseGate_ShortDipDoesNotDrop(t *testing.T) {
	t.Parallel()
	g := audio.NewNoiseGate(audio.GateConfig{Threshold: 0.1, HangBlocks: 3})

	g.Pass(loudBlock(160))

	// A dip shorter than the hysteresis limit must forward every block.
	for i := range 3 {
		if !g.Pass(quietBlock(160)) {
			t.Fatalf("quiet block %d inside hang window was dropped", i)
		}
	}

	// Speech resumes; counter must have been reset by the loud block.
	if !g.Pass(loudBlock(160)) {
		t.Fatal("loud block after short dip was dropped")
	}
	for i := range 3 {
		if !g.Pass(quietBlock(160)) {
			t.Fatalf("quiet block %d after reset was dropped", i)
		}
	}
}

func TestNoiseGate_LongDipDropsUntilSpeechReturns(t *testing.T) {
	t.Parallel()
	g := audio.NewNoiseGate(audio.GateConfig{Threshold: 0.1, HangBlocks: 3})

	g.Pass(loudBlock(160))

	// Exhaust the hang window.
	for range 3 {
		if !g.Pass(quietBlock(160)) {
			t.Fatal("block inside hang window was dropped")
		}
	}

	// Beyond the limit everything is dropped.
	for i := range 5 {
		if g.Pass(quietBlock(160)) {
			t.Fatalf("quiet block %d past hang window was forwarded", i)
		}
	}

	// Energy returns: gate reopens immediately.
	if !g.Pass(loudBlock(160)) {
		t.Fatal("loud block after gate closed was dropped")
	}
}

func TestNoiseGate_Reset(t *testing.T) {
	t.Parallel()
	g := audio.NewNoiseGate(audio.GateConfig{Threshold: 0.1, HangBlocks: 1})

	g.Pass(quietBlock(160)) // consumes the single hang block
	if g.Pass(quietBlock(160)) {
		t.Fatal("expected gate closed")
	}

	g.Reset()
	if !g.Pass(quietBlock(160)) {
		t.Fatal("expected gate reopened after Reset")
	}
}

func TestNewNoiseGate_ZeroConfigUsesDefaults(t *testing.T) {
	t.Parallel()
	g := audio.NewNoiseGate(audio.GateConfig{})
	// Defaults must behave like a real gate: loud passes.
	if !g.Pass(loudBlock(160)) {
		t.Fatal("default gate dropped a loud block")
	}
}
