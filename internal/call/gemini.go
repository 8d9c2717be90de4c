package call

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"devrelive/internal/logging"
)

const systemInstructionTemplate = `You are an AI DevRel assistant for Base, working in the DevReLive call center. You are currently helping a developer with an issue related to %s. You can see their screen and hear their voice. Help them debug their code. Be concise, helpful, and technical. You have been trained on and should use the Base documentation from https://docs.base.org to resolve problems.`

// GeminiDialer opens Gemini Live sessions. One dialer (and one underlying
// client) is shared per process.
type GeminiDialer struct {
	client *genai.Client
	model  string
	voice  string
}

// NewGeminiDialer creates a dialer for the given model and voice.
func NewGeminiDialer(ctx context.Context, apiKey, model, voice string) (*GeminiDialer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiDialer{client: client, model: model, voice: voice}, nil
}

// Dial opens a bidirectional live stream seeded with the support-channel
// system instruction.
func (d *GeminiDialer) Dial(ctx context.Context, channelName, topic string) (LiveStream, error) {
	subject := channelName
	if topic != "" {
		subject = fmt.Sprintf("%s (%s)", channelName, topic)
	}

	session, err := d.client.Live.Connect(ctx, d.model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: d.voice},
			},
		},
		SystemInstruction:        genai.NewContentFromText(fmt.Sprintf(systemInstructionTemplate, subject), genai.RoleUser),
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open live stream: %w", err)
	}

	logging.Call("Opened Gemini Live stream for channel %s", channelName)
	return &geminiStream{session: session}, nil
}

// geminiStream adapts a genai live session to the LiveStream interface.
type geminiStream struct {
	session *genai.Session
}

func (g *geminiStream) SendText(text string) error {
	return g.session.SendClientContent(clientContentInput(text))
}

// clientContentInput builds the payload for one user text turn. The
// turn-complete flag is set so generation starts on this turn instead of
// waiting for further input.
func clientContentInput(text string) genai.LiveClientContentInput {
	return genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(true),
	}
}

func (g *geminiStream) SendAudio(pcm []byte) error {
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pcm, MIMEType: fmt.Sprintf("audio/pcm;rate=%d", InputSampleRate)},
	})
}

func (g *geminiStream) SendFrame(jpeg []byte) error {
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: jpeg, MIMEType: "image/jpeg"},
	})
}

func (g *geminiStream) Recv() (*ServerEvent, error) {
	msg, err := g.session.Receive()
	if err != nil {
		return nil, err
	}

	ev := &ServerEvent{}
	if sc := msg.ServerContent; sc != nil {
		ev.Interrupted = sc.Interrupted
		ev.TurnComplete = sc.TurnComplete
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					ev.Audio = append(ev.Audio, part.InlineData.Data...)
				}
				if part.Text != "" {
					ev.Text += part.Text
				}
			}
		}
		if sc.OutputTranscription != nil && ev.Text == "" {
			ev.Text = sc.OutputTranscription.Text
		}
	}
	return ev, nil
}

func (g *geminiStream) Close() error {
	return g.session.Close()
}
