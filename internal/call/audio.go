package call

import (
	"sync"
	"time"
)

// Gemini Live audio rates: 16kHz PCM16 in, 24kHz PCM16 out.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

// AudioSink receives decoded audio scheduled against a playback clock.
// PlayAt schedules samples to start at the given instant; Flush discards
// anything scheduled but not yet played.
type AudioSink interface {
	PlayAt(samples []float32, at time.Time)
	Flush()
}

// NullSink discards all audio. Used headless and in tests.
type NullSink struct{}

func (NullSink) PlayAt([]float32, time.Time) {}
func (NullSink) Flush()                      {}

// Player schedules decoded response audio for gapless playback. Buffers
// are queued back to back on a running clock; an interruption resets the
// clock to now so the next reply starts immediately.
type Player struct {
	mu         sync.Mutex
	sink       AudioSink
	sampleRate int
	nextPlay   time.Time
	now        func() time.Time
}

// NewPlayer creates a player emitting to sink at the given sample rate.
func NewPlayer(sink AudioSink, sampleRate int) *Player {
	return &Player{sink: sink, sampleRate: sampleRate, now: time.Now}
}

// Enqueue schedules samples immediately after whatever is already queued,
// or right now if the queue has drained.
func (p *Player) Enqueue(samples []float32) {
	if len(samples) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.nextPlay.Before(now) {
		p.nextPlay = now
	}
	p.sink.PlayAt(samples, p.nextPlay)
	p.nextPlay = p.nextPlay.Add(duration(len(samples), p.sampleRate))
}

// Reset models barge-in: queued-but-unplayed audio is discarded and the
// playback clock snaps back to now.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink.Flush()
	p.nextPlay = p.now()
}

// Scheduled returns the instant the next enqueued buffer would start.
func (p *Player) Scheduled() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextPlay
}

func duration(samples, rate int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// DecodePCM16 converts little-endian 16-bit PCM bytes to float32 samples
// in [-1, 1].
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}

// EncodePCM16 converts float32 samples to little-endian 16-bit PCM bytes,
// clamping to [-1, 1].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		out[2*i] = byte(uint16(v))
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}
