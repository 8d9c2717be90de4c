package call

import "context"

// AudioSource is a microphone-like capture device producing 16kHz PCM16
// chunks. Start invokes fn from a capture goroutine until Stop is called;
// Stop must be safe to call more than once and after a failed Start.
type AudioSource interface {
	Start(ctx context.Context, fn func(pcm []byte)) error
	Stop()
}

// FrameSource captures a compressed still frame of the shared screen.
// Called on a fixed interval while screen sharing is on.
type FrameSource interface {
	CaptureJPEG(ctx context.Context) ([]byte, error)
}
