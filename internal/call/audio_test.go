package call

import (
	"testing"
	"time"
)

// recordingSink captures scheduled buffers and flushes.
type recordingSink struct {
	plays   []int // sample counts
	starts  []time.Time
	flushes int
}

func (r *recordingSink) PlayAt(samples []float32, at time.Time) {
	r.plays = append(r.plays, len(samples))
	r.starts = append(r.starts, at)
}

func (r *recordingSink) Flush() { r.flushes++ }

func TestPlayerSchedulesGaplessly(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, OutputSampleRate)

	base := time.Unix(1000, 0)
	p.now = func() time.Time { return base }

	// One second of audio, then half a second: the second buffer must be
	// scheduled exactly at the end of the first.
	p.Enqueue(make([]float32, OutputSampleRate))
	p.Enqueue(make([]float32, OutputSampleRate/2))

	if len(sink.starts) != 2 {
		t.Fatalf("expected 2 scheduled buffers, got %d", len(sink.starts))
	}
	if !sink.starts[0].Equal(base) {
		t.Errorf("first buffer at %v, want %v", sink.starts[0], base)
	}
	if want := base.Add(time.Second); !sink.starts[1].Equal(want) {
		t.Errorf("second buffer at %v, want %v", sink.starts[1], want)
	}
	if want := base.Add(1500 * time.Millisecond); !p.Scheduled().Equal(want) {
		t.Errorf("clock at %v, want %v", p.Scheduled(), want)
	}
}

func TestPlayerClockCatchesUpAfterDrain(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, OutputSampleRate)

	now := time.Unix(1000, 0)
	p.now = func() time.Time { return now }

	p.Enqueue(make([]float32, OutputSampleRate)) // queued until t+1s

	// Long silence: the queue has drained, so the next buffer plays now,
	// not at the stale clock position.
	now = now.Add(10 * time.Second)
	p.Enqueue(make([]float32, OutputSampleRate))

	if !sink.starts[1].Equal(now) {
		t.Errorf("post-drain buffer at %v, want %v", sink.starts[1], now)
	}
}

func TestPlayerResetDiscardsQueue(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlayer(sink, OutputSampleRate)

	base := time.Unix(1000, 0)
	p.now = func() time.Time { return base }

	p.Enqueue(make([]float32, OutputSampleRate*5))
	p.Reset()

	if sink.flushes != 1 {
		t.Errorf("expected 1 flush, got %d", sink.flushes)
	}
	if !p.Scheduled().Equal(base) {
		t.Errorf("clock not snapped back: %v", p.Scheduled())
	}

	// The next reply starts immediately, not after the discarded 5s.
	p.Enqueue(make([]float32, 100))
	if !sink.starts[1].Equal(base) {
		t.Errorf("post-interrupt buffer at %v, want %v", sink.starts[1], base)
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.999, -1}
	decoded := DecodePCM16(EncodePCM16(samples))

	if len(decoded) != len(samples) {
		t.Fatalf("length changed: %d vs %d", len(decoded), len(samples))
	}
	for i := range samples {
		diff := decoded[i] - samples[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 1.0/32768 {
			t.Errorf("sample %d: %f -> %f", i, samples[i], decoded[i])
		}
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	out := EncodePCM16([]float32{2.0, -2.0})
	decoded := DecodePCM16(out)
	if decoded[0] < 0.99 {
		t.Errorf("positive overflow not clamped: %f", decoded[0])
	}
	if decoded[1] > -0.99 {
		t.Errorf("negative overflow not clamped: %f", decoded[1])
	}
}
