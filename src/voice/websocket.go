package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsMessage is the JSON envelope exchanged with the streaming speech server.
type wsMessage struct {
	Type string `json:"type"`
	Data wsData `json:"data"`
}

type wsData struct {
	Audio        string `json:"audio,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
	SampleRate   int    `json:"sample_rate,omitempty"`
	Text         string `json:"text,omitempty"`
	Speaker      string `json:"speaker,omitempty"`
	Transcript   string `json:"transcript,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	EventType    string `json:"event_type,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Message types.
const (
	msgAudio      = "audio"
	msgFlush      = "flush"
	msgText       = "text"
	msgTranscript = "data"
	msgEvent      = "event"
	msgError      = "error"
	eventFinal    = "final"
)

// WebSocketSpeech streams speech over a JSON WebSocket protocol:
// audio and text are sent base64 encoded, the server answers with transcript
// or audio messages and a final event.
type WebSocketSpeech struct {
	STTURL string
	TTSURL string
	Header http.Header
	Dialer *websocket.Dialer
}

func NewWebSocketSpeech(sttURL, ttsURL, apiKey string) *WebSocketSpeech {
	h := http.Header{}
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	return &WebSocketSpeech{STTURL: sttURL, TTSURL: ttsURL, Header: h, Dialer: websocket.DefaultDialer}
}

func (w *WebSocketSpeech) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	if url == "" {
		return nil, errors.New("websocket url is empty")
	}
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, w.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	// Closing the connection unblocks ReadJSON once the caller abandons the stream.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	return conn, nil
}

func (w *WebSocketSpeech) TranscribeStream(ctx context.Context, in AudioInput) (<-chan Chunk[Transcript], error) {
	conn, err := w.dial(ctx, w.STTURL)
	if err != nil {
		return nil, err
	}
	encoding := "audio/" + in.Format
	if in.Format == "" {
		encoding = "audio/wav"
	}
	rate := in.SampleRate
	if rate == 0 {
		rate = 16000
	}
	if err := conn.WriteJSON(wsMessage{Type: msgAudio, Data: wsData{
		Audio:        base64.StdEncoding.EncodeToString(in.Data),
		Encoding:     encoding,
		SampleRate:   rate,
		LanguageCode: in.LanguageCode,
	}}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send audio: %w", err)
	}
	if err := conn.WriteJSON(wsMessage{Type: msgFlush}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("flush: %w", err)
	}

	out := make(chan Chunk[Transcript], 8)
	go readLoop(ctx, conn, out, func(m wsMessage) (Transcript, bool, error) {
		if m.Type != msgTranscript {
			return Transcript{}, false, nil
		}
		return Transcript{Text: m.Data.Transcript, LanguageCode: m.Data.LanguageCode}, true, nil
	})
	return out, nil
}

func (w *WebSocketSpeech) SynthesizeStream(ctx context.Context, req SpeechRequest) (<-chan Chunk[[]byte], error) {
	conn, err := w.dial(ctx, w.TTSURL)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(wsMessage{Type: msgText, Data: wsData{
		Text:         req.Text,
		Speaker:      req.Voice,
		LanguageCode: req.LanguageCode,
	}}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send text: %w", err)
	}
	if err := conn.WriteJSON(wsMessage{Type: msgFlush}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("flush: %w", err)
	}

	out := make(chan Chunk[[]byte], 16)
	go readLoop(ctx, conn, out, func(m wsMessage) ([]byte, bool, error) {
		if m.Type != msgAudio {
			return nil, false, nil
		}
		audio, err := base64.StdEncoding.DecodeString(m.Data.Audio)
		if err != nil {
			return nil, false, fmt.Errorf("decode audio chunk: %w", err)
		}
		return audio, true, nil
	})
	return out, nil
}

// readLoop forwards decoded messages until a final event, an error or ctx ends.
func readLoop[T any](ctx context.Context, conn *websocket.Conn, out chan<- Chunk[T], decode func(wsMessage) (T, bool, error)) {
	defer close(out)
	defer conn.Close()
	send := func(c Chunk[T]) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			if ctx.Err() == nil {
				send(Chunk[T]{Err: fmt.Errorf("read: %w", err)})
			}
			return
		}
		switch m.Type {
		case msgError:
			send(Chunk[T]{Err: fmt.Errorf("server error: %s", m.Data.Message)})
			return
		case msgEvent:
			if m.Data.EventType == eventFinal {
				send(Chunk[T]{Done: true})
				return
			}
			continue
		}
		data, ok, err := decode(m)
		if err != nil {
			send(Chunk[T]{Err: err})
			return
		}
		if ok && !send(Chunk[T]{Data: data}) {
			return
		}
	}
}

var (
	_ StreamingSpeechToText = (*WebSocketSpeech)(nil)
	_ StreamingTextToSpeech = (*WebSocketSpeech)(nil)
)
