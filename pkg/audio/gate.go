package audio

// GateConfig tunes the capture noise gate. The defaults were chosen against
// kitchen recordings (frying, extractor fans, cutlery); treat them as starting
// points, not truths.
type GateConfig struct {
	// Threshold is the RMS energy (on normalised Float32 samples, so in
	// [0, 1]) above which a block is considered speech.
	Threshold float64

	// HangBlocks is the number of consecutive below-threshold blocks that are
	// still forwarded before the gate closes. This keeps trailing consonants
	// from being clipped at the gate boundary.
	HangBlocks int
}

// DefaultGateConfig returns the gate tuning used when the config file does not
// override it.
func DefaultGateConfig() GateConfig {
	return GateConfig{Threshold: 0.015, HangBlocks: 8}
}

// NoiseGate decides, block by block, whether capture audio is worth sending
// uplink. It is stateful (hysteresis counter) and not safe for concurrent use;
// create one per capture stream.
type NoiseGate struct {
	cfg   GateConfig
	quiet int
}

// NewNoiseGate creates a gate with cfg. Zero values fall back to
// [DefaultGateConfig].
func NewNoiseGate(cfg GateConfig) *NoiseGate {
	def := DefaultGateConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.HangBlocks <= 0 {
		cfg.HangBlocks = def.HangBlocks
	}
	return &NoiseGate{cfg: cfg}
}

// Pass reports whether the block should be forwarded uplink.
//
// A block at or above the threshold resets the hysteresis counter and passes.
// A below-threshold block still passes while the counter has not reached
// HangBlocks; once it has, blocks are dropped until energy rises again.
func (g *NoiseGate) Pass(block []float32) bool {
	if RMS(block) >= g.cfg.Threshold {
		g.quiet = 0
		return true
	}
	if g.quiet < g.cfg.HangBlocks {
		g.quiet++
		return true
	}
	return false
}

// Reset reopens the gate, clearing the hysteresis counter. Call when the
// capture stream restarts.
func (g *NoiseGate) Reset() {
	g.quiet = 0
}
