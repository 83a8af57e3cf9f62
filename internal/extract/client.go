package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"quotedesk/internal/config"
)

// Request is the contract of the external extraction service: content plus
// a mime hint, a JSON-schema-like dict describing the wanted output, and an
// optional context string. The service replies with raw text that should
// parse as JSON matching the schema.
type Request struct {
	Model    string         `json:"model"`
	Content  string         `json:"content"`
	Encoding string         `json:"encoding,omitempty"`
	MimeHint string         `json:"mimeHint"`
	Schema   map[string]any `json:"schema"`
	Context  string         `json:"context,omitempty"`
}

// Extractor is the boundary the orchestrator depends on; tests substitute
// it with a scripted fake.
type Extractor interface {
	Extract(ctx context.Context, req Request) (string, error)
}

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type extractPayload struct {
	Output string `json:"output"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.ExtractTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.ExtractRateLimitRPS),
	}
}

// Extract posts one document to the extraction service and returns the raw
// response text. Retries transient failures with exponential backoff.
func (c *Client) Extract(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(c.cfg.ExtractAPIToken) == "" {
		return "", errors.New("missing EXTRACT_API_TOKEN")
	}
	if req.Model == "" {
		req.Model = c.cfg.ExtractModel
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.cfg.ExtractAPIBaseURL, "/") + "/extract"

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.ExtractAPIToken)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				time.Sleep(backoff)
				lastErr = fmt.Errorf("extraction status %d", resp.StatusCode)
				continue
			}
			return "", fmt.Errorf("extraction api error: status=%d body=%s", resp.StatusCode, string(respBody))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return "", err
		}
		if !apiResp.Success {
			return "", fmt.Errorf("extraction api unsuccessful: %s", string(apiResp.Errors))
		}

		var payload extractPayload
		if err := json.Unmarshal(apiResp.Data, &payload); err != nil {
			return "", err
		}
		return payload.Output, nil
	}

	if lastErr == nil {
		lastErr = errors.New("extraction request failed")
	}
	return "", lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func encodeBinary(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}
