// Package transcription provides the secondary speech-to-text pass that
// cross-checks the live API's built-in user transcript, one user turn at a
// time.
package transcription

import (
	"context"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/xpanvictor/voxbridge/pkg/Logger"
	"google.golang.org/api/option"
)

// Recognizer turns one finalized turn's PCM audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, pcm []byte) (string, error)
}

// GoogleConfig holds configuration for the Cloud Speech recognizer.
type GoogleConfig struct {
	Language         string // BCP-47, e.g. "en-US"
	SampleRate       int    // Hz of the PCM handed to Recognize
	StreamChunkBytes int    // size of audio chunks written to the stream
}

// GoogleRecognizer recognizes speech with the Cloud Speech-to-Text streaming
// API. Credentials come from the ambient environment (ADC) unless options
// override them.
type GoogleRecognizer struct {
	client *speech.Client
	config GoogleConfig
	logger *Logger.Logger
}

func NewGoogleRecognizer(ctx context.Context, config GoogleConfig, logger *Logger.Logger, opts ...option.ClientOption) (*GoogleRecognizer, error) {
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	if config.StreamChunkBytes <= 0 {
		config.StreamChunkBytes = 8192
	}

	return &GoogleRecognizer{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Recognize implements Recognizer. It streams the whole buffer, closes the
// send side and collects the finalized alternatives in order.
func (r *GoogleRecognizer) Recognize(ctx context.Context, pcm []byte) (string, error) {
	stream, err := r.client.StreamingRecognize(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open recognize stream: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: int32(r.config.SampleRate),
					LanguageCode:    r.config.Language,
				},
			},
		},
	}); err != nil {
		return "", fmt.Errorf("failed to send streaming config: %w", err)
	}

	for offset := 0; offset < len(pcm); offset += r.config.StreamChunkBytes {
		end := offset + r.config.StreamChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: pcm[offset:end],
			},
		}); err != nil {
			return "", fmt.Errorf("failed to send audio: %w", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send side: %w", err)
	}

	var parts []string
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to receive results: %w", err)
		}
		if resp.Error != nil {
			return "", fmt.Errorf("recognition error: %s", resp.Error.GetMessage())
		}
		for _, result := range resp.Results {
			if !result.IsFinal || len(result.Alternatives) == 0 {
				continue
			}
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}

	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

func (r *GoogleRecognizer) Close() error {
	return r.client.Close()
}
