package call

import "context"

// ServerEvent is one message drained from the streaming AI endpoint.
type ServerEvent struct {
	Audio        []byte // 24kHz PCM16, already base64-decoded by the SDK
	Text         string // transcription or text part
	Interrupted  bool   // barge-in: discard queued unplayed audio
	TurnComplete bool
}

// LiveStream is one bidirectional stream to the conversational AI
// endpoint. Recv blocks until the next server event or stream error.
type LiveStream interface {
	SendText(text string) error
	SendAudio(pcm []byte) error
	SendFrame(jpeg []byte) error
	Recv() (*ServerEvent, error)
	Close() error
}

// LiveDialer opens streams seeded with a per-call system instruction.
// The production implementation wraps the Gemini Live SDK; tests inject
// fakes.
type LiveDialer interface {
	Dial(ctx context.Context, channelName, topic string) (LiveStream, error)
}
