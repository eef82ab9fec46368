package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

type OllamaLLM struct {
	Client *ollama.Client
	Model  string
}

func NewOllamaLLM(model string) (*OllamaLLM, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	if model == "" {
		model = "llama3.2"
	}
	c := ollama.NewClient(u, &http.Client{Timeout: 60 * time.Second})
	return &OllamaLLM{Client: c, Model: model}, nil
}

func (o *OllamaLLM) Generate(ctx context.Context, req Request) (string, error) {
	opts := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	var text strings.Builder
	err := o.Client.Generate(ctx, &ollama.GenerateRequest{
		Model:   o.Model,
		System:  req.System,
		Prompt:  req.Prompt,
		Options: opts,
	}, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text.String(), nil
}

var _ Agent = (*OllamaLLM)(nil)
