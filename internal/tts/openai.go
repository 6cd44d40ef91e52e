package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIProvider targets OpenAI-compatible speech endpoints for users who
// prefer a remote engine over the local one.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = "tts-1"
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: speakTimeout},
	}
}

func (p *OpenAIProvider) Speak(ctx context.Context, req SpeakRequest) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, fmt.Errorf("empty input text")
	}
	payload := map[string]any{
		"model": p.model,
		"input": req.Input,
		"voice": req.Voice,
	}
	if req.Format != "" {
		payload["response_format"] = req.Format
	}
	if req.Speed > 0 {
		payload["speed"] = req.Speed
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("speech request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

// Voices returns the fixed voice set OpenAI-compatible APIs document; these
// endpoints expose no voice-listing route.
func (p *OpenAIProvider) Voices(_ context.Context) ([]string, error) {
	return []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}, nil
}
