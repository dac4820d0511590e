package vlm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/examsmart/examsmart-backend/internal/config"
	"github.com/rs/zerolog"
)

const (
	processPath      = "/teacher/process-exam/"
	healthTimeout    = 3 * time.Second
	maxResponseBytes = 4 << 20
)

// HTTPExtractor posts the first photo to an external VLM service.
type HTTPExtractor struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	log     zerolog.Logger
}

func NewHTTPExtractor(cfg config.VLMConfig, log zerolog.Logger) *HTTPExtractor {
	e := &HTTPExtractor{
		baseURL: cfg.APIURL,
		timeout: cfg.Timeout,
		http:    &http.Client{},
		log:     log.With().Str("component", "vlm_http").Logger(),
	}
	if e.timeout <= 0 {
		e.timeout = 120 * time.Second
	}
	return e
}

// Extract uploads the first image as multipart field "file".
func (e *HTTPExtractor) Extract(ctx context.Context, images []Image) (*ExamDraft, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images", ErrUnavailable)
	}
	if e.baseURL == "" {
		return nil, fmt.Errorf("%w: VLM_API_URL not configured", ErrUnavailable)
	}
	if len(images) > 1 {
		e.log.Debug().Int("images", len(images)).Msg("Service accepts a single file, sending the first")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", images[0].Filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(images[0].Data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+processPath, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.log.Warn().Int("status", resp.StatusCode).Msg("VLM service rejected request")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	return Normalize(body)
}

// Ping calls GET /health with a short timeout.
func (e *HTTPExtractor) Ping(ctx context.Context) error {
	if e.baseURL == "" {
		return fmt.Errorf("VLM_API_URL not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("vlm health returned %d", resp.StatusCode)
	}
	return nil
}
