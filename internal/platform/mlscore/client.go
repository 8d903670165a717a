// Package mlscore wraps the external oral-image scoring endpoint.
//
// The endpoint takes one image as a multipart upload and answers with the
// annotated image as the response body; the numeric metrics and the generated
// commentary ride on response headers.
package mlscore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smilelog/smilelog-backend/internal/platform/envutil"
	"github.com/smilelog/smilelog-backend/internal/platform/httpx"
	"github.com/smilelog/smilelog-backend/internal/platform/logger"
)

const (
	headerHygieneScore         = "X-Oral-Hygiene-Score"
	headerPlaqueCoverage       = "X-Plaque-Coverage"
	headerGingivalInflammation = "X-Gingival-Inflammation"
	headerTartar               = "X-Tartar"
	headerComments             = "X-AI-Comments"
)

// Result is the outcome of scoring a single image.
type Result struct {
	AnnotatedImage []byte
	HygieneScore   float64
	PlaqueCoverage float64
	Inflammation   float64
	Tartar         float64
	Comments       string
}

// Scorer scores one image at a time. Each image is an independent unit of
// work: retries never cross image boundaries.
type Scorer interface {
	Score(ctx context.Context, imageBytes []byte, filename string) (*Result, error)
}

type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		URL:        envutil.String("ML_API_URL", "http://localhost:8000/predict"),
		Timeout:    envutil.Seconds("ML_API_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries: envutil.Int("ML_API_RETRIES", 3),
	}
}

type client struct {
	log        *logger.Logger
	url        string
	maxRetries int
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Scorer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("missing ML scoring endpoint URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &client{
		log:        log.With("client", "MLScore"),
		url:        cfg.URL,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *client) Score(ctx context.Context, imageBytes []byte, filename string) (*Result, error) {
	if len(imageBytes) == 0 {
		return nil, &terminalError{msg: "empty image payload"}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 0 {
			// Exponential backoff: 2^attempt seconds between attempts.
			sleepFor := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn("retrying image score",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"sleep", sleepFor.String(),
				"error", lastErr.Error(),
			)
			select {
			case <-time.After(sleepFor):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := c.scoreOnce(ctx, imageBytes, filename)
		if err == nil {
			return res, nil
		}
		if !httpx.IsRetryableError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("scoring failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *client) scoreOnce(ctx context.Context, imageBytes []byte, filename string) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(imageBytes); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, &httpError{status: resp.StatusCode, body: string(raw)}
		}
		return nil, &terminalError{msg: fmt.Sprintf("scoring endpoint returned %d: %s", resp.StatusCode, string(raw))}
	}

	annotated, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(annotated) == 0 {
		return nil, &terminalError{msg: "scoring endpoint returned empty annotated image"}
	}

	return &Result{
		AnnotatedImage: annotated,
		HygieneScore:   headerFloat(resp.Header, headerHygieneScore),
		PlaqueCoverage: headerFloat(resp.Header, headerPlaqueCoverage),
		Inflammation:   headerFloat(resp.Header, headerGingivalInflammation),
		Tartar:         headerFloat(resp.Header, headerTartar),
		Comments:       strings.TrimSpace(resp.Header.Get(headerComments)),
	}, nil
}

// headerFloat tolerates missing or malformed metric headers by reading 0.
func headerFloat(h http.Header, name string) float64 {
	v := strings.TrimSpace(h.Get(name))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
