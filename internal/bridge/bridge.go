// Package bridge carries session audio between a Mirepoix client and the
// server over one WebSocket connection.
//
// The client opens the socket, sends a JSON hello naming the recipe and its
// microphone sample rate, then streams raw little-endian Float32 capture
// blocks as binary frames. The server pushes assistant speech back as JSON
// "audio" messages (base64 24 kHz PCM16 with an absolute start time and a
// speed multiplier) and "flush" messages when scheduled playback must be
// discarded.
//
// A Bridge implements both [audio.CaptureDevice] and [audio.Sink], so the
// session supervisor treats a remote phone exactly like a local microphone
// and speaker pair.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mirepoix-app/mirepoix/pkg/audio"
)

// helloTimeout bounds how long a freshly accepted socket may wait before
// identifying itself.
const helloTimeout = 5 * time.Second

// writeTimeout bounds a single downlink write. A client that cannot drain
// audio this slowly is effectively gone.
const writeTimeout = 3 * time.Second

var (
	_ audio.CaptureDevice = (*Bridge)(nil)
	_ audio.Sink          = (*Bridge)(nil)
)

// Hello is the first message a client must send after connecting.
type Hello struct {
	Type       string `json:"type"`
	RecipeID   string `json:"recipe_id"`
	SampleRate int    `json:"sample_rate"`
}

// downMsg is the wire shape of every server-to-client message.
type downMsg struct {
	Type string `json:"type"`

	// audio fields
	PCM     string  `json:"pcm,omitempty"`
	StartMS int64   `json:"start_ms,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

// Bridge is one client's audio link. Create it with [Accept]; hand it to the
// session supervisor as both capture device and playback sink.
type Bridge struct {
	conn  *websocket.Conn
	hello Hello
	log   *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
}

// Accept upgrades r to a WebSocket, reads the client hello, and returns the
// bridge. The caller owns the bridge and must Close it.
func Accept(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*Bridge, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: accept: %w", err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), helloTimeout)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "hello timeout")
		return nil, fmt.Errorf("bridge: read hello: %w", err)
	}
	var hello Hello
	if typ != websocket.MessageText || json.Unmarshal(data, &hello) != nil || hello.Type != "hello" {
		conn.Close(websocket.StatusPolicyViolation, "expected hello")
		return nil, errors.New("bridge: first message must be a hello")
	}
	if hello.RecipeID == "" || hello.SampleRate <= 0 {
		conn.Close(websocket.StatusPolicyViolation, "invalid hello")
		return nil, fmt.Errorf("bridge: invalid hello: recipe_id=%q sample_rate=%d", hello.RecipeID, hello.SampleRate)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Bridge{conn: conn, hello: hello, log: log}, nil
}

// RecipeID returns the recipe the client asked to cook.
func (b *Bridge) RecipeID() string { return b.hello.RecipeID }

// SampleRate implements [audio.CaptureDevice].
func (b *Bridge) SampleRate() int { return b.hello.SampleRate }

// Start implements [audio.CaptureDevice]. It spawns the uplink read loop; the
// returned channel closes when the client disconnects or the bridge is closed.
// Start may be called once.
func (b *Bridge) Start(ctx context.Context) (<-chan []float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("bridge: closed")
	}
	if b.started {
		return nil, errors.New("bridge: capture already started")
	}
	b.started = true

	blocks := make(chan []float32, 8)
	go b.readLoop(ctx, blocks)
	return blocks, nil
}

func (b *Bridge) readLoop(ctx context.Context, blocks chan<- []float32) {
	defer close(blocks)
	for {
		typ, data, err := b.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				b.log.Debug("bridge uplink ended", "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			// Clients have nothing else to say mid-session.
			continue
		}
		block, err := decodeFloat32(data)
		if err != nil {
			b.log.Warn("bridge dropped malformed capture block", "err", err)
			continue
		}
		select {
		case blocks <- block:
		case <-ctx.Done():
			return
		}
	}
}

// ScheduleAt implements [audio.Sink]. Delivery is best-effort: a write error
// means the client is gone and the session supervisor will find out through
// the capture channel closing.
func (b *Bridge) ScheduleAt(pcm []byte, start time.Time, speed float64) {
	msg := downMsg{
		Type:    "audio",
		PCM:     base64.StdEncoding.EncodeToString(pcm),
		StartMS: start.UnixMilli(),
		Speed:   speed,
	}
	if err := b.write(msg); err != nil {
		b.log.Debug("bridge playback write failed", "err", err)
	}
}

// StopAll implements [audio.Sink]. It tells the client to discard everything
// scheduled or playing.
func (b *Bridge) StopAll() {
	if err := b.write(downMsg{Type: "flush"}); err != nil {
		b.log.Debug("bridge flush write failed", "err", err)
	}
}

func (b *Bridge) write(msg downMsg) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bridge: closed")
	}
	b.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return b.conn.Write(ctx, websocket.MessageText, data)
}

// Close implements [audio.CaptureDevice]. Safe to call twice.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return b.conn.Close(websocket.StatusNormalClosure, "session ended")
}

// decodeFloat32 converts a little-endian Float32 byte stream into samples.
func decodeFloat32(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("block length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
