package live

import (
	"context"
	"fmt"

	"github.com/xpanvictor/voxbridge/pkg/Logger"
	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini Live connector.
type GeminiConfig struct {
	APIKey          string
	Model           string // e.g. "models/gemini-2.5-flash-preview-native-audio-dialog"
	InputSampleRate int    // sample rate of the PCM the client sends
}

// GeminiConnector opens live sessions against the Gemini Live API.
type GeminiConnector struct {
	client *genai.Client
	config GeminiConfig
	logger *Logger.Logger
}

func NewGeminiConnector(ctx context.Context, config GeminiConfig, logger *Logger.Logger) (*GeminiConnector, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiConnector{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Connect implements Connector.
func (c *GeminiConnector) Connect(ctx context.Context) (Session, error) {
	c.logger.Infof("connecting to Gemini Live API with model %s", c.config.Model)

	session, err := c.client.Live.Connect(ctx, c.config.Model, &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Gemini Live API: %w", err)
	}

	return &geminiSession{
		session:  session,
		mimeType: fmt.Sprintf("audio/pcm;rate=%d", c.config.InputSampleRate),
	}, nil
}

type geminiSession struct {
	session  *genai.Session
	mimeType string
}

func (g *geminiSession) SendAudio(pcm []byte) error {
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     pcm,
			MIMEType: g.mimeType,
		},
	})
}

func (g *geminiSession) Receive() (ServerEvent, error) {
	msg, err := g.session.Receive()
	if err != nil {
		return ServerEvent{}, err
	}

	var ev ServerEvent
	if msg.GoAway != nil {
		ev.GoAway = true
		return ev, nil
	}

	sc := msg.ServerContent
	if sc == nil {
		return ev, nil
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				ev.Audio = append(ev.Audio, part.InlineData.Data...)
			}
		}
	}
	if sc.InputTranscription != nil {
		ev.UserText = sc.InputTranscription.Text
		ev.UserFinal = sc.InputTranscription.Finished
	}
	if sc.OutputTranscription != nil {
		ev.ModelText = sc.OutputTranscription.Text
	}
	ev.TurnComplete = sc.TurnComplete

	return ev, nil
}

func (g *geminiSession) Close() error {
	return g.session.Close()
}
