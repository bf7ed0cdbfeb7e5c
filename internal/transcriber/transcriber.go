// Package transcriber defines the boundary to the streaming speech-to-text
// provider.
package transcriber

import "context"

// Encoding is the label advertised to the provider for the session's audio.
// It is committed once per session, from the outcome of codec extraction on
// the session's first chunk.
type Encoding string

const (
	// EncodingWebMOpus forwards original WebM container bytes.
	EncodingWebMOpus Encoding = "webm_opus"
	// EncodingOggOpus forwards the extracted audio-only Ogg/Opus stream.
	EncodingOggOpus Encoding = "ogg_opus"
)

// Event is a normalized transcript update. Err marks a terminal provider
// error; such events always carry IsFinal=true.
type Event struct {
	Text    string
	IsFinal bool
	Err     error
}

// Frame is one audio chunk on its way to the provider.
type Frame struct {
	Data     []byte
	Encoding Encoding
}

type ResultReceiver interface {
	OnResult(text string, isFinal bool)
	OnError(err error)
}

// StreamWriter is the sending half of one duplex provider connection.
type StreamWriter interface {
	// Write sends a frame. The provider handshake config is committed on
	// the first frame so the encoding label can follow the first-chunk
	// extraction outcome.
	Write(frame Frame) error
	// Close sends the protocol-level close-stream message, giving the
	// provider a chance to flush final results, rather than tearing the
	// connection down abruptly.
	Close() error
}

// Streamer opens one duplex connection per session. A connection
// establishment failure is a session start failure.
type Streamer interface {
	StartStreaming(ctx context.Context, sessionID string, receiver ResultReceiver) (StreamWriter, error)
}

// Batcher performs the one-shot full-session pass used for the definitive
// end-of-interview transcript.
type Batcher interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

type Transcriber interface {
	Streamer
	Batcher
}
