package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sashabaranov/go-openai"
)

// OpenAISpeech implements the REST calls with the OpenAI audio API.
type OpenAISpeech struct {
	Client     *openai.Client
	STTModel   string
	TTSModel   openai.SpeechModel
	DefaultVox openai.SpeechVoice
}

func NewOpenAISpeech() (*OpenAISpeech, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	cfg := openai.DefaultConfig(key)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	return &OpenAISpeech{
		Client:     openai.NewClientWithConfig(cfg),
		STTModel:   openai.Whisper1,
		TTSModel:   openai.TTSModel1,
		DefaultVox: openai.VoiceAlloy,
	}, nil
}

func (o *OpenAISpeech) Transcribe(ctx context.Context, in AudioInput) (Transcript, error) {
	format := in.Format
	if format == "" {
		format = "wav"
	}
	req := openai.AudioRequest{
		Model:    o.STTModel,
		FilePath: "recording." + format,
		Reader:   bytes.NewReader(in.Data),
		Format:   openai.AudioResponseFormatVerboseJSON,
	}
	if in.LanguageCode != "" {
		req.Language = baseLanguage(in.LanguageCode)
	}
	resp, err := o.Client.CreateTranscription(ctx, req)
	if err != nil {
		return Transcript{}, fmt.Errorf("openai transcription: %w", err)
	}
	lang := in.LanguageCode
	if lang == "" {
		lang = resp.Language
	}
	return Transcript{Text: resp.Text, LanguageCode: lang}, nil
}

func (o *OpenAISpeech) Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error) {
	voice := o.DefaultVox
	if req.Voice != "" {
		voice = openai.SpeechVoice(req.Voice)
	}
	body, err := o.Client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.TTSModel,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer body.Close()
	return io.ReadAll(body)
}

// baseLanguage turns "en-IN" into "en".
func baseLanguage(code string) string {
	for i, r := range code {
		if r == '-' || r == '_' {
			return code[:i]
		}
	}
	return code
}

var (
	_ SpeechToText = (*OpenAISpeech)(nil)
	_ TextToSpeech = (*OpenAISpeech)(nil)
)
