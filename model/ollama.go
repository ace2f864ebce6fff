package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama is a thin client for the Ollama generate API.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Options struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func NewOllama(baseURL, model string, timeout time.Duration) *Ollama {
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Complete sends a single prompt and returns the full completion text.
// Routing and reranking depend on literal replies, so temperature stays 0.
func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ollama generate API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(data))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Response != "" {
		return parsed.Response, nil
	}

	// Some deployments stream regardless of the flag; collect the chunks.
	var b strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(data))
	for decoder.More() {
		var chunk generateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("decode generate response: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama generate error: %s", chunk.Error)
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return b.String(), nil
}
