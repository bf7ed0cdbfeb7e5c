package transcriber

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hireloop/interview-capture/internal/transcriber"
)

const speechAPIEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	SampleRateHertz int
}

type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	language        string
	location        string
	sampleRateHertz int
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) transcriber.Transcriber {
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		language:        cfg.Language,
		location:        strings.TrimSpace(cfg.Location),
		sampleRateHertz: cfg.SampleRateHertz,
	}
}

func (t *CloudSpeechTranscriber) newClient(ctx context.Context) (*speech.Client, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if t.location != "" && t.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}
	return speech.NewClient(ctx, opts...)
}

func (t *CloudSpeechTranscriber) StartStreaming(ctx context.Context, sessionID string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	slog.Info("starting cloud speech streaming",
		"session_id", sessionID, "project_id", t.projectID, "location", t.location, "language", t.language)

	client, err := t.newClient(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	w := &streamWriter{
		sessionID:       sessionID,
		stream:          stream,
		language:        t.language,
		sampleRateHertz: t.sampleRateHertz,
	}
	w.startReceiver(stream, client.Close, receiver)

	return w, nil
}

// Transcribe runs one synchronous recognition pass over a complete 16kHz
// mono LINEAR16 WAV recording and returns the concatenated transcript.
func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	client, err := t.newClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            16000,
			AudioChannelCount:          1,
			LanguageCode:               t.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: wav},
		},
	})
	if err != nil {
		return "", fmt.Errorf("batch recognize: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		text := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript())
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

type streamWriter struct {
	mu              sync.Mutex
	closed          bool
	configSent      bool
	sessionID       string
	stream          speechpb.Speech_StreamingRecognizeClient
	language        string
	sampleRateHertz int
}

// Write forwards one audio frame. The streaming config goes out ahead of the
// first frame; its encoding label comes from the frame itself, so the choice
// made during first-chunk codec extraction propagates to the provider.
func (w *streamWriter) Write(frame transcriber.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	if !w.configSent {
		if err := w.sendConfigLocked(frame.Encoding); err != nil {
			return fmt.Errorf("send streaming config: %w", err)
		}
		w.configSent = true
	}
	return w.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: frame.Data,
		},
	})
}

func (w *streamWriter) sendConfigLocked(encoding transcriber.Encoding) error {
	enc := speechpb.RecognitionConfig_WEBM_OPUS
	if encoding == transcriber.EncodingOggOpus {
		enc = speechpb.RecognitionConfig_OGG_OPUS
	}
	slog.Info("cloud speech stream config committed", "session_id", w.sessionID, "encoding", encoding)
	return w.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   enc,
					SampleRateHertz:            int32(w.sampleRateHertz),
					AudioChannelCount:          1,
					LanguageCode:               w.language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	})
}

// Close half-closes the send direction so the provider flushes any pending
// final results before tearing the stream down. The receiver goroutine owns
// the client and closes it when the read side drains.
func (w *streamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.stream.CloseSend()
}

func (w *streamWriter) startReceiver(stream speechpb.Speech_StreamingRecognizeClient, closeFn func() error, receiver transcriber.ResultReceiver) {
	go func() {
		defer func() { _ = closeFn() }()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if err == io.EOF || status.Code(err) == codes.Canceled {
					slog.Info("cloud speech receive loop stopped", "session_id", w.sessionID, "reason", err.Error())
					return
				}
				slog.Error("cloud speech receive failed",
					"session_id", w.sessionID, "code", status.Code(err).String(), "error", err)
				receiver.OnError(err)
				return
			}
			for _, result := range resp.GetResults() {
				if len(result.GetAlternatives()) == 0 {
					continue
				}
				text := result.GetAlternatives()[0].GetTranscript()
				if strings.TrimSpace(text) == "" {
					slog.Debug("empty transcript result",
						"session_id", w.sessionID, "is_final", result.GetIsFinal())
					continue
				}
				receiver.OnResult(text, result.GetIsFinal())
			}
		}
	}()
}
