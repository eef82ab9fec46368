package voice

import (
	"bytes"
	"context"
	"strings"
	"time"
)

// Transcript is recognised speech.
type Transcript struct {
	Text         string `json:"transcript"`
	LanguageCode string `json:"language_code,omitempty"`
}

// AudioInput describes an uploaded recording.
type AudioInput struct {
	Data         []byte
	Format       string // file extension, e.g. "wav"
	LanguageCode string
	SampleRate   int
}

// SpeechRequest describes text to be spoken.
type SpeechRequest struct {
	Text         string
	Voice        string
	LanguageCode string
}

// SpeechToText is the whole-file transcription call.
type SpeechToText interface {
	Transcribe(ctx context.Context, in AudioInput) (Transcript, error)
}

// StreamingSpeechToText streams partial transcripts.
type StreamingSpeechToText interface {
	TranscribeStream(ctx context.Context, in AudioInput) (<-chan Chunk[Transcript], error)
}

// TextToSpeech is the whole-text synthesis call.
type TextToSpeech interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// StreamingTextToSpeech streams audio chunks.
type StreamingTextToSpeech interface {
	SynthesizeStream(ctx context.Context, req SpeechRequest) (<-chan Chunk[[]byte], error)
}

// Transcriber turns audio into text through the stream/REST fallback.
type Transcriber struct {
	REST     SpeechToText
	Stream   StreamingSpeechToText
	fallback *Fallback[Transcript]
}

func NewTranscriber(rest SpeechToText, stream StreamingSpeechToText, timeout time.Duration) *Transcriber {
	return &Transcriber{REST: rest, Stream: stream, fallback: NewFallback(timeout, joinTranscripts)}
}

func (t *Transcriber) Transcribe(ctx context.Context, in AudioInput) (Result[Transcript], error) {
	var stream StreamFunc[Transcript]
	if t.Stream != nil {
		stream = func(ctx context.Context) (<-chan Chunk[Transcript], error) { return t.Stream.TranscribeStream(ctx, in) }
	}
	var rest RESTFunc[Transcript]
	if t.REST != nil {
		rest = func(ctx context.Context) (Transcript, error) { return t.REST.Transcribe(ctx, in) }
	}
	return t.fallback.Run(ctx, stream, rest)
}

// Synthesizer turns text into audio through the stream/REST fallback.
type Synthesizer struct {
	REST     TextToSpeech
	Stream   StreamingTextToSpeech
	fallback *Fallback[[]byte]
}

func NewSynthesizer(rest TextToSpeech, stream StreamingTextToSpeech, timeout time.Duration) *Synthesizer {
	return &Synthesizer{REST: rest, Stream: stream, fallback: NewFallback(timeout, joinAudio)}
}

func (s *Synthesizer) Synthesize(ctx context.Context, req SpeechRequest) (Result[[]byte], error) {
	var stream StreamFunc[[]byte]
	if s.Stream != nil {
		stream = func(ctx context.Context) (<-chan Chunk[[]byte], error) { return s.Stream.SynthesizeStream(ctx, req) }
	}
	var rest RESTFunc[[]byte]
	if s.REST != nil {
		rest = func(ctx context.Context) ([]byte, error) { return s.REST.Synthesize(ctx, req) }
	}
	return s.fallback.Run(ctx, stream, rest)
}

func joinTranscripts(parts []Transcript) Transcript {
	var out Transcript
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
		if p.LanguageCode != "" {
			out.LanguageCode = p.LanguageCode
		}
	}
	out.Text = strings.Join(texts, " ")
	return out
}

func joinAudio(parts [][]byte) []byte {
	return bytes.Join(parts, nil)
}
