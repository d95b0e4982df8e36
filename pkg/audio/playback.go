package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	// PlaybackSampleRate is the fixed model output rate.
	PlaybackSampleRate = 24000

	defaultFlushInterval = 100 * time.Millisecond
	defaultGain          = 3.0
)

// PlayerConfig configures a Player. Zero values pick the defaults used by
// voice sessions: 24kHz mono, 100ms buffering, 3.0 gain.
type PlayerConfig struct {
	SampleRate    int
	FlushInterval time.Duration
	Gain          float64
}

// Player streams 16-bit mono PCM to the speaker. Fed audio is gain-boosted,
// buffered until roughly one flush interval is queued, then played
// continuously; the device pulls via Read and receives silence once closed.
type Player struct {
	otoCtx *oto.Context
	player *oto.Player

	gain     float64
	minStart int

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	playing bool
	closed  bool
}

// NewPlayer opens the speaker and blocks until the audio backend is ready.
func NewPlayer(cfg PlayerConfig) (*Player, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = PlaybackSampleRate
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.Gain <= 0 {
		cfg.Gain = defaultGain
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   cfg.FlushInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	p := &Player{
		otoCtx:   otoCtx,
		gain:     cfg.Gain,
		minStart: int(int64(cfg.SampleRate) * 2 * int64(cfg.FlushInterval) / int64(time.Second)),
		buf:      make([]byte, 0, cfg.SampleRate*4),
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Resume reactivates a suspended audio context. Some platforms start the
// backend suspended until an explicit user action.
func (p *Player) Resume() error {
	return p.otoCtx.Resume()
}

// Feed queues inbound PCM (s16le) for playback, applying the configured
// gain with clamping. Playback starts once enough audio is buffered to
// cover one flush interval, so short bursts do not stutter.
func (p *Player) Feed(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	boosted := applyGain(pcm, p.gain)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.buf = append(p.buf, boosted...)

	if !p.playing && len(p.buf) >= p.minStart {
		p.playing = true
		p.player = p.otoCtx.NewPlayer(p)
		p.player.Play()
	}
	p.cond.Signal()
}

// Read implements io.Reader for the device. It blocks until audio is queued
// and returns silence after Destroy so the backend drains cleanly.
func (p *Player) Read(out []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}

	if p.closed && len(p.buf) == 0 {
		for i := range out {
			out[i] = 0
		}
		return len(out), nil
	}

	n := copy(out, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

// Destroy drops queued audio and releases the speaker. Safe to call more
// than once.
func (p *Player) Destroy() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.buf = nil
	player := p.player
	p.player = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	if player != nil {
		_ = player.Close()
	}
	_ = p.otoCtx.Suspend()
}

// applyGain scales s16le samples by gain, clamping to the int16 range.
func applyGain(pcm []byte, gain float64) []byte {
	out := make([]byte, len(pcm)&^1)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		scaled := float64(sample) * gain
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		value := int16(scaled)
		out[i] = byte(value)
		out[i+1] = byte(value >> 8)
	}
	return out
}
