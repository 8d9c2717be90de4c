package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"devrelive/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStream is an in-memory live stream fed by the test.
type fakeStream struct {
	mu     sync.Mutex
	texts  []string
	audio  int
	frames int

	events chan *ServerEvent
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan *ServerEvent, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeStream) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeStream) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio++
	return nil
}

func (f *fakeStream) SendFrame(jpeg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	return nil
}

func (f *fakeStream) Recv() (*ServerEvent, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.closed:
		return nil, errors.New("stream closed")
	}
}

func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeStream) sentFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

type fakeDialer struct {
	stream *fakeStream
	err    error
}

func (d *fakeDialer) Dial(ctx context.Context, channelName, topic string) (LiveStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type fakeMic struct {
	mu      sync.Mutex
	started bool
	stops   int
	err     error
}

func (m *fakeMic) Start(ctx context.Context, fn func(pcm []byte)) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) Stop() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
}

func (m *fakeMic) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []*store.CallHistory
	stats []int // calls, messages, duration triples flattened

	createErr error
	statsDone chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{statsDone: make(chan struct{}, 1)}
}

func (r *fakeRecorder) CreateCall(ctx context.Context, call *store.CallHistory) (*store.CallHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.calls = append(r.calls, call)
	return call, nil
}

func (r *fakeRecorder) IncrementUserStats(ctx context.Context, address string, calls, messages, durationSeconds int) error {
	r.mu.Lock()
	r.stats = append(r.stats, calls, messages, durationSeconds)
	r.mu.Unlock()
	select {
	case r.statsDone <- struct{}{}:
	default:
	}
	return nil
}

func (r *fakeRecorder) persisted() []*store.CallHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*store.CallHistory(nil), r.calls...)
}

type fakeFrames struct {
	mu       sync.Mutex
	captures int
}

func (f *fakeFrames) CaptureJPEG(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	return []byte{0xff, 0xd8}, nil
}

func newTestSession(opts Options, stream *fakeStream, mic *fakeMic, rec *fakeRecorder) *Session {
	return NewSession(opts, &fakeDialer{stream: stream}, mic, nil, rec)
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionLifecycle(t *testing.T) {
	stream := newFakeStream()
	mic := &fakeMic{}
	rec := newFakeRecorder()
	s := newTestSession(Options{
		ChannelName: "base-support",
		HostAddress: "0xabc",
		IsHost:      true,
	}, stream, mic, rec)

	if s.State() != StateIdle {
		t.Fatalf("new session in state %s", s.State())
	}

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.State() != StateActive {
		t.Fatalf("post-connect state %s", s.State())
	}

	// A second connect on the same attempt is rejected.
	if err := s.Connect(context.Background()); err == nil {
		t.Error("double connect succeeded")
	}

	if err := s.SendText("my transaction reverts"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	stream.events <- &ServerEvent{Text: "let's check the revert reason"}

	waitFor(t, func() bool { return len(s.Transcript()) == 2 }, "assistant turn")

	if err := s.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}
	if s.State() != StateEnded {
		t.Fatalf("post-end state %s", s.State())
	}
	if mic.stopCount() == 0 {
		t.Error("microphone not released")
	}

	<-rec.statsDone
	s.Wait()

	persisted := rec.persisted()
	if len(persisted) != 1 {
		t.Fatalf("expected 1 persisted call, got %d", len(persisted))
	}
	call := persisted[0]
	if len(call.Transcript) != 2 {
		t.Errorf("persisted transcript has %d turns", len(call.Transcript))
	}
	if call.Transcript[0].Role != "user" || call.Transcript[1].Role != "ai" {
		t.Errorf("transcript roles wrong: %+v", call.Transcript)
	}
	if call.Duration < 0 {
		t.Errorf("negative duration %d", call.Duration)
	}
	if call.Status != store.CallStatusEnded {
		t.Errorf("persisted status %s", call.Status)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.stats) != 3 || rec.stats[0] != 1 || rec.stats[1] != 2 {
		t.Errorf("stat increments wrong: %v", rec.stats)
	}
}

func TestSessionInitialContext(t *testing.T) {
	stream := newFakeStream()
	rec := newFakeRecorder()
	s := newTestSession(Options{
		ChannelName:    "base-support",
		InitialContext: "thread: deploy fails with out-of-gas",
	}, stream, &fakeMic{}, rec)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() {
		s.Close()
		s.Wait()
	}()

	transcript := s.Transcript()
	if len(transcript) != 1 {
		t.Fatalf("expected 1 seeded turn, got %d", len(transcript))
	}
	if transcript[0].Role != "user" || !strings.Contains(transcript[0].Text, "[Automated Context Provided]") {
		t.Errorf("seeded turn wrong: %+v", transcript[0])
	}

	texts := stream.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "out-of-gas") {
		t.Errorf("initial context not forwarded: %v", texts)
	}
}

func TestSessionNonHostEndPersistsNothing(t *testing.T) {
	stream := newFakeStream()
	rec := newFakeRecorder()
	s := newTestSession(Options{ChannelName: "c", IsHost: false}, stream, &fakeMic{}, rec)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}
	s.Wait()

	if len(rec.persisted()) != 0 {
		t.Error("non-host hangup persisted a call record")
	}
}

func TestSessionBargeIn(t *testing.T) {
	stream := newFakeStream()
	sink := &recordingSink{}
	player := NewPlayer(sink, OutputSampleRate)
	s := NewSession(Options{ChannelName: "c"}, &fakeDialer{stream: stream}, &fakeMic{}, player, newFakeRecorder())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() {
		s.Close()
		s.Wait()
	}()

	stream.events <- &ServerEvent{Audio: EncodePCM16(make([]float32, OutputSampleRate))}
	waitFor(t, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return len(sink.plays) == 1
	}, "audio enqueue")

	stream.events <- &ServerEvent{Interrupted: true}
	waitFor(t, func() bool {
		player.mu.Lock()
		defer player.mu.Unlock()
		return sink.flushes == 1
	}, "barge-in flush")
}

func TestSessionDialFailure(t *testing.T) {
	rec := newFakeRecorder()
	s := NewSession(Options{ChannelName: "c"}, &fakeDialer{err: errors.New("endpoint down")}, &fakeMic{}, nil, rec)

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded against a dead endpoint")
	}
	if s.State() != StateError {
		t.Errorf("state %s, want error", s.State())
	}
	if s.Err() == nil {
		t.Error("Err() empty after failure")
	}
}

func TestSessionMicFailureReleasesStream(t *testing.T) {
	stream := newFakeStream()
	mic := &fakeMic{err: errors.New("no capture device")}
	s := newTestSession(Options{ChannelName: "c"}, stream, mic, newFakeRecorder())

	if err := s.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded without a microphone")
	}
	if s.State() != StateError {
		t.Errorf("state %s, want error", s.State())
	}

	select {
	case <-stream.closed:
	default:
		t.Error("stream not closed after microphone failure")
	}
}

func TestSessionRecvErrorFails(t *testing.T) {
	stream := newFakeStream()
	mic := &fakeMic{}
	s := newTestSession(Options{ChannelName: "c"}, stream, mic, newFakeRecorder())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Transport drops underneath the session.
	stream.Close()

	waitFor(t, func() bool { return s.State() == StateError }, "error state")
	s.Wait()

	if mic.stopCount() == 0 {
		t.Error("microphone not released on transport error")
	}
}

func TestSessionScreenShare(t *testing.T) {
	stream := newFakeStream()
	s := NewSession(Options{
		ChannelName:   "c",
		FrameInterval: 5 * time.Millisecond,
	}, &fakeDialer{stream: stream}, &fakeMic{}, nil, newFakeRecorder())

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	frames := &fakeFrames{}
	if err := s.StartScreenShare(frames); err != nil {
		t.Fatalf("StartScreenShare: %v", err)
	}

	waitFor(t, func() bool { return stream.sentFrames() >= 2 }, "forwarded frames")

	s.StopScreenShare()
	s.Close()
	s.Wait()
}
