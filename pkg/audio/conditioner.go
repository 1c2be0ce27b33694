package audio

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// DefaultFrameDuration balances uplink latency against per-frame transport
// overhead.
const DefaultFrameDuration = 20 * time.Millisecond

// CaptureDevice abstracts a microphone. Implementations deliver raw Float32
// sample blocks at the device's native rate.
//
// Start returns a terminal error when the microphone is absent or permission
// is denied; the conditioner never retries — that decision belongs to the
// session supervisor.
type CaptureDevice interface {
	// Start begins capture. The returned channel is closed when the device is
	// closed or capture fails irrecoverably.
	Start(ctx context.Context) (<-chan []float32, error)

	// SampleRate returns the device's native rate in Hz.
	SampleRate() int

	// Close stops capture and releases the device. Safe to call twice.
	Close() error
}

// ConditionerConfig configures a [Conditioner].
type ConditionerConfig struct {
	// NativeRate is the capture device's sample rate in Hz.
	NativeRate int

	// FrameDuration is the duration of each emitted frame.
	// Defaults to [DefaultFrameDuration].
	FrameDuration time.Duration

	// Gate tunes the noise gate. Zero values use [DefaultGateConfig].
	Gate GateConfig
}

// Conditioner turns raw Float32 capture blocks into gate-filtered, resampled,
// quantized 16 kHz mono PCM16 frames of fixed duration.
//
// The output sequence is lazy, unbounded, and non-restartable: once the input
// channel closes the output closes and the conditioner is done. Level is safe
// to read from any goroutine; everything else runs on the pipeline goroutine.
type Conditioner struct {
	cfg   ConditionerConfig
	gate  *NoiseGate
	level atomic.Uint64 // math.Float64bits of the latest block RMS
}

// NewConditioner creates a conditioner for a device running at cfg.NativeRate.
func NewConditioner(cfg ConditionerConfig) *Conditioner {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = DefaultFrameDuration
	}
	if cfg.NativeRate <= 0 {
		cfg.NativeRate = CaptureRate
	}
	return &Conditioner{
		cfg:  cfg,
		gate: NewNoiseGate(cfg.Gate),
	}
}

// Run consumes raw sample blocks from in and produces conditioned frames.
// The returned channel is closed when in closes or ctx is cancelled.
//
// Per input block: the RMS level meter is updated, the noise gate decides
// whether the block is forwarded, the block is quantized to PCM16 and
// resampled to [CaptureRate], and the result is re-batched into frames of
// exactly cfg.FrameDuration.
func (c *Conditioner) Run(ctx context.Context, in <-chan []float32) <-chan Frame {
	out := make(chan Frame, 32)

	frameBytes := int(int64(CaptureRate) * 2 * int64(c.cfg.FrameDuration) / int64(time.Second))
	if frameBytes < 2 {
		frameBytes = 2
	}

	go func() {
		defer close(out)

		var pending []byte
		for {
			select {
			case <-ctx.Done():
				return
			case block, ok := <-in:
				if !ok {
					return
				}
				c.level.Store(math.Float64bits(RMS(block)))
				if !c.gate.Pass(block) {
					continue
				}

				pcm := Quantize(block)
				pcm = ResampleMono16(pcm, c.cfg.NativeRate, CaptureRate)
				pending = append(pending, pcm...)

				for len(pending) >= frameBytes {
					data := make([]byte, frameBytes)
					copy(data, pending[:frameBytes])
					pending = pending[frameBytes:]

					frame := Frame{
						Data:       data,
						SampleRate: CaptureRate,
						Channels:   1,
						Timestamp:  time.Now(),
					}
					select {
					case out <- frame:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}

// Level returns the RMS energy of the most recently processed capture block,
// in [0, 1]. Intended for the UI input-level meter.
func (c *Conditioner) Level() float64 {
	return math.Float64frombits(c.level.Load())
}
