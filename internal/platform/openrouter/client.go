// Package openrouter is a minimal chat-completions client used to turn a
// frontal oral image into patient-facing care recommendations.
package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/smilelog/smilelog-backend/internal/platform/envutil"
	"github.com/smilelog/smilelog-backend/internal/platform/httpx"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

const systemPrompt = `You are a professional dentist analyzing a dental image. ` +
	`Based solely on the image provided, give concise and practical recommendations for oral care. ` +
	`Focus on practical advice like brushing techniques, spots that need attention, and general oral hygiene tips. ` +
	`Keep your response under 150 words and make it patient-friendly.`

type Client interface {
	RecommendFromImage(ctx context.Context, imageBytes []byte) (string, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	appURL     string
	maxRetries int
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENROUTER_API_KEY")
	}
	return &client{
		log:        log.With("client", "OpenRouter"),
		baseURL:    envutil.String("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions"),
		apiKey:     apiKey,
		model:      envutil.String("OPENROUTER_MODEL", "anthropic/claude-3-haiku"),
		appURL:     envutil.String("APP_URL", "https://smilelog.app"),
		maxRetries: envutil.Int("OPENROUTER_RETRIES", 2),
		httpClient: &http.Client{Timeout: envutil.Seconds("OPENROUTER_TIMEOUT_SECONDS", 60*time.Second)},
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openrouter returned %d: %s", e.status, e.body)
}

func (e *httpError) HTTPStatusCode() int { return e.status }

func (c *client) RecommendFromImage(ctx context.Context, imageBytes []byte) (string, error) {
	if len(imageBytes) == 0 {
		return "", fmt.Errorf("empty image payload")
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: "Please analyze this dental image and provide recommendations:"},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageBytes),
				}},
			}},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt > 0 {
			sleepFor := httpx.JitterSleep(backoff)
			c.log.Warn("OpenRouter request retrying",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"sleep", sleepFor.String(),
				"error", lastErr.Error(),
			)
			time.Sleep(sleepFor)
			backoff *= 2
		}

		text, err := c.doOnce(ctx, body)
		if err == nil {
			return text, nil
		}
		if !httpx.IsRetryableError(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("openrouter request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *client) doOnce(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.appURL)
	req.Header.Set("X-Title", "SmileLog")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &httpError{status: resp.StatusCode, body: string(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("openrouter decode error: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openrouter returned no recommendation text")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
