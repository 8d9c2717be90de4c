// Package call tracks an in-progress support call from connect to end:
// it relays microphone audio and screen frames to the conversational AI
// endpoint, accumulates the transcript, schedules response audio for
// gapless playback, and persists the call record when the host hangs up.
package call

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"devrelive/internal/logging"
	"devrelive/internal/store"
)

// State is the call session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultFrameInterval bounds screen-share bandwidth and endpoint load.
const DefaultFrameInterval = 2 * time.Second

// Recorder persists completed calls and user stat increments.
// Implemented by *store.Store.
type Recorder interface {
	CreateCall(ctx context.Context, call *store.CallHistory) (*store.CallHistory, error)
	IncrementUserStats(ctx context.Context, address string, calls, messages, durationSeconds int) error
}

// Options configures one call session attempt.
type Options struct {
	ChannelName string
	Topic       string
	HostAddress string
	HostUserID  string

	// IsHost controls persistence: only the host's hangup writes a call
	// record and bumps stats.
	IsHost bool

	// InitialContext, when set, is sent as the first turn on entering
	// active (e.g. a forum thread escalated to a call).
	InitialContext string

	// FrameInterval is the screen-frame capture period (default 2s).
	FrameInterval time.Duration

	// CacheDir, when set, receives a durable local transcript fallback
	// before the call record is persisted.
	CacheDir string
}

// Session is one call session attempt. States move idle → connecting →
// active → ended; error is reachable from connecting and active and is
// terminal for the attempt. Retrying requires a fresh Session.
type Session struct {
	opts   Options
	dialer LiveDialer
	mic    AudioSource
	player *Player
	rec    Recorder

	mu           sync.Mutex
	state        State
	stream       LiveStream
	transcript   []store.TranscriptTurn
	connectedAt  time.Time
	screenCancel context.CancelFunc
	released     bool
	lastErr      error

	recvDone chan struct{}
	bg       sync.WaitGroup
}

// NewSession wires a session from its collaborators. player may be nil, in
// which case response audio is discarded.
func NewSession(opts Options, dialer LiveDialer, mic AudioSource, player *Player, rec Recorder) *Session {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if player == nil {
		player = NewPlayer(NullSink{}, OutputSampleRate)
	}
	return &Session{
		opts:   opts,
		dialer: dialer,
		mic:    mic,
		player: player,
		rec:    rec,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that forced the session into StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Transcript returns a copy of the accumulated transcript.
func (s *Session) Transcript() []store.TranscriptTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.TranscriptTurn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Connect acquires the microphone and opens the live stream. On success
// the session is active and the receive loop is running; on any failure
// the session lands in StateError with all resources released.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("connect from state %s", state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	logging.Call("Connecting call session for channel %s", s.opts.ChannelName)

	stream, err := s.dialer.Dial(ctx, s.opts.ChannelName, s.opts.Topic)
	if err != nil {
		err = fmt.Errorf("failed to open live stream: %w", err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	err = s.mic.Start(ctx, func(pcm []byte) {
		if s.State() != StateActive {
			return
		}
		if err := stream.SendAudio(pcm); err != nil {
			s.fail(fmt.Errorf("failed to forward audio: %w", err))
		}
	})
	if err != nil {
		err = fmt.Errorf("failed to acquire microphone: %w", err)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.state = StateActive
	s.connectedAt = time.Now()
	s.recvDone = make(chan struct{})
	s.mu.Unlock()

	// An escalated thread rides in as the first turn of the call.
	if s.opts.InitialContext != "" {
		s.appendTurn("user", "[Automated Context Provided]\n"+s.opts.InitialContext)
		if err := stream.SendText("I am calling about this thread:\n\n" + s.opts.InitialContext); err != nil {
			err = fmt.Errorf("failed to send initial context: %w", err)
			s.fail(err)
			return err
		}
	}

	go s.recvLoop(stream)

	logging.Call("Call session active for channel %s", s.opts.ChannelName)
	return nil
}

// recvLoop drains server events until the stream errors or closes.
func (s *Session) recvLoop(stream LiveStream) {
	defer close(s.recvDone)

	for {
		ev, err := stream.Recv()
		if err != nil {
			// Expected once the session has been torn down deliberately.
			if st := s.State(); st == StateEnded || st == StateError {
				return
			}
			s.fail(fmt.Errorf("live stream receive: %w", err))
			return
		}

		if ev.Interrupted {
			logging.CallDebug("Barge-in: discarding queued audio")
			s.player.Reset()
		}
		if len(ev.Audio) > 0 {
			s.player.Enqueue(DecodePCM16(ev.Audio))
		}
		if ev.Text != "" {
			s.appendTurn("ai", ev.Text)
		}
	}
}

// SendText forwards an ad hoc text message; it lands in the transcript
// immediately rather than waiting for the endpoint to echo it.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("send text from state %s", state)
	}
	stream := s.stream
	s.mu.Unlock()

	s.appendTurn("user", text)
	if err := stream.SendText(text); err != nil {
		err = fmt.Errorf("failed to send text: %w", err)
		s.fail(err)
		return err
	}
	return nil
}

// StartScreenShare begins forwarding a compressed still frame of the
// shared screen every frame interval. Capture failures are logged and
// skipped; they do not end the session.
func (s *Session) StartScreenShare(src FrameSource) error {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("screen share from state %s", state)
	}
	if s.screenCancel != nil {
		s.mu.Unlock()
		return nil // already sharing
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.screenCancel = cancel
	stream := s.stream
	s.mu.Unlock()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ticker := time.NewTicker(s.opts.FrameInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				frame, err := src.CaptureJPEG(ctx)
				if err != nil {
					logging.CallDebug("Frame capture failed: %v", err)
					continue
				}
				if err := stream.SendFrame(frame); err != nil {
					logging.Get(logging.CategoryCall).Warn("Failed to send screen frame: %v", err)
				}
			}
		}
	}()
	return nil
}

// StopScreenShare stops frame forwarding. Safe to call when not sharing.
func (s *Session) StopScreenShare() {
	s.mu.Lock()
	cancel := s.screenCancel
	s.screenCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// End is the user-initiated hangup. Resources are released
// unconditionally; persistence runs for the host only. The call record
// write is best-effort (its error is returned for logging) and the stat
// increments run in the background, allowed to fail without rolling back
// the record.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive && s.state != StateConnecting {
		s.mu.Unlock()
		return nil
	}
	connectedAt := s.connectedAt
	transcript := make([]store.TranscriptTurn, len(s.transcript))
	copy(transcript, s.transcript)
	s.state = StateEnded
	s.releaseLocked()
	s.mu.Unlock()

	logging.Call("Call session ended for channel %s (%d turns)", s.opts.ChannelName, len(transcript))

	if !s.opts.IsHost {
		return nil
	}

	now := time.Now()
	duration := 0
	if !connectedAt.IsZero() {
		duration = int(now.Sub(connectedAt).Seconds())
		if duration < 0 {
			duration = 0
		}
	}

	s.cacheTranscript(transcript, now)

	record := &store.CallHistory{
		ChannelName: s.opts.ChannelName,
		Topic:       s.opts.Topic,
		HostAddress: s.opts.HostAddress,
		HostUserID:  s.opts.HostUserID,
		Participants: []store.Participant{
			{Address: s.opts.HostAddress, Role: "host", JoinedAt: connectedAt, LeftAt: &now},
			{Address: "gemini", Role: "ai", JoinedAt: connectedAt, LeftAt: &now},
		},
		Transcript: transcript,
		Status:     store.CallStatusEnded,
		StartedAt:  connectedAt,
		EndedAt:    &now,
		Duration:   duration,
	}

	if _, err := s.rec.CreateCall(ctx, record); err != nil {
		logging.Get(logging.CategoryCall).Error("Failed to persist call record: %v", err)
		return fmt.Errorf("failed to persist call record: %w", err)
	}

	// Eventual-consistency gap accepted: a lost increment is logged, never
	// retried against the already-written call record.
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.rec.IncrementUserStats(ctx, s.opts.HostAddress, 1, len(transcript), duration); err != nil {
			logging.Get(logging.CategoryCall).Warn("Stat increment failed for %s: %v", s.opts.HostAddress, err)
		}
	}()

	return nil
}

// Close releases all resources without persisting anything. It covers
// abandonment: unmount, cancellation, a non-host participant leaving.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting || s.state == StateActive {
		s.state = StateEnded
	}
	s.releaseLocked()
}

// Wait blocks until background work (receive loop, frame loop, stat
// increments) has finished. Intended for shutdown and tests.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.recvDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	s.bg.Wait()
}

// fail transitions to StateError and releases resources. No-op once the
// session is already terminal.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded || s.state == StateError {
		return
	}
	s.state = StateError
	s.lastErr = err
	s.releaseLocked()
	logging.Get(logging.CategoryCall).Error("Call session failed: %v", err)
}

// releaseLocked frees the microphone, the frame-capture loop and the live
// stream. Unconditional and idempotent; it must not depend on the session
// reaching ended cleanly. Callers hold s.mu.
func (s *Session) releaseLocked() {
	if s.released {
		return
	}
	s.released = true

	if s.mic != nil {
		s.mic.Stop()
	}
	if s.screenCancel != nil {
		s.screenCancel()
		s.screenCancel = nil
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			logging.CallDebug("Live stream close: %v", err)
		}
	}
}

func (s *Session) appendTurn(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, store.TranscriptTurn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// cacheTranscript writes a durable local fallback before the call record
// is persisted, so a failed write is recoverable.
func (s *Session) cacheTranscript(transcript []store.TranscriptTurn, endedAt time.Time) {
	if s.opts.CacheDir == "" {
		return
	}
	if err := os.MkdirAll(s.opts.CacheDir, 0755); err != nil {
		logging.Get(logging.CategoryCall).Warn("Transcript cache dir: %v", err)
		return
	}

	payload := map[string]interface{}{
		"channelName": s.opts.ChannelName,
		"hostAddress": s.opts.HostAddress,
		"endedAt":     endedAt,
		"transcript":  transcript,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(s.opts.CacheDir, fmt.Sprintf("call-%d.json", endedAt.UnixMilli()))
	if err := os.WriteFile(path, data, 0644); err != nil {
		logging.Get(logging.CategoryCall).Warn("Transcript cache write: %v", err)
	}
}
