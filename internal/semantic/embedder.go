package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quotedesk/internal/config"
)

// Embedder turns text into a fixed-dimension vector. The matching engine
// treats any failure as a degradation, never an abort.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type HTTPEmbedder struct {
	cfg        config.Config
	httpClient *http.Client
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Embedding []float32 `json:"embedding"`
}

func NewHTTPEmbedder(cfg config.Config) *HTTPEmbedder {
	return &HTTPEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.EmbedTimeoutMs) * time.Millisecond},
	}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(e.cfg.EmbedAPIToken) == "" {
		return nil, errors.New("missing EMBED_API_TOKEN")
	}

	body, err := json.Marshal(embedRequest{Model: e.cfg.EmbedModel, Input: text})
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(e.cfg.EmbedAPIBaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.EmbedAPIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding api error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, err
	}
	if !parsed.Success {
		return nil, fmt.Errorf("embedding api unsuccessful: %s", parsed.Message)
	}
	if len(parsed.Embedding) == 0 {
		return nil, errors.New("embedding api returned empty vector")
	}
	return parsed.Embedding, nil
}
