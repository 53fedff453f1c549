// Package images renders illustration prompts into images. Rendering happens
// only after a reviewer accepts a visual prompt; it is never part of the
// automatic question pipeline.
package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"google.golang.org/genai"

	"github.com/medquiz-ai/medquiz-engine/pkg/retry"
)

// ImageData is a rendered image ready to be written to disk.
type ImageData struct {
	Bytes    []byte
	MIMEType string
	Size     Size
}

// Renderer turns an illustration prompt into image bytes.
type Renderer interface {
	Render(ctx context.Context, prompt string, size string) (*ImageData, error)
}

// Config holds renderer settings.
type Config struct {
	// Provider is "openai" or "gemini".
	Provider string
	Model    string
	// APIKey is the key for the selected provider.
	APIKey        string
	DefaultWidth  int
	DefaultHeight int
}

type renderer struct {
	provider     string
	model        string
	defaultSize  Size
	openaiClient *openai.Client
	geminiClient *genai.Client
	logger       *zap.Logger
}

// NewRenderer creates a renderer for the configured provider.
func NewRenderer(ctx context.Context, cfg *Config, logger *zap.Logger) (Renderer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("image provider %q has no API key configured", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("image model is required")
	}

	r := &renderer{
		provider: cfg.Provider,
		model:    cfg.Model,
		defaultSize: clampSize(Size{
			Width:  cfg.DefaultWidth,
			Height: cfg.DefaultHeight,
		}),
		logger: logger.Named("images"),
	}

	switch cfg.Provider {
	case "openai":
		client := openai.NewClient(cfg.APIKey)
		r.openaiClient = client
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		r.geminiClient = client
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.Provider)
	}

	return r, nil
}

// renderRetryConfig allows a single retry with a 2 second backoff. Only
// server-side failures are eligible; see renderError.IsRetryable.
func renderRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   1,
		InitialDelay: 2 * time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   1.0,
	}
}

// Render generates an image for the prompt at the requested "WxH" size.
// Empty size falls back to the configured default. The provider result is
// resized to the exact target dimensions.
func (r *renderer) Render(ctx context.Context, prompt string, size string) (*ImageData, error) {
	if prompt == "" {
		return nil, fmt.Errorf("render prompt is empty")
	}

	target, err := ParseSize(size, r.defaultSize)
	if err != nil {
		return nil, err
	}

	r.logger.Info("rendering image",
		zap.String("provider", r.provider),
		zap.String("model", r.model),
		zap.String("size", target.String()),
		zap.String("aspect", target.AspectRatio()))

	var raw []byte
	err = retry.DoIfRetryable(ctx, renderRetryConfig(), func() error {
		var callErr error
		switch r.provider {
		case "gemini":
			raw, callErr = r.renderGemini(ctx, prompt)
		default:
			raw, callErr = r.renderOpenAI(ctx, prompt, target)
		}
		if callErr != nil {
			return wrapRenderError(callErr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	resized, err := resizeTo(raw, target)
	if err != nil {
		return nil, fmt.Errorf("resize image: %w", err)
	}

	return &ImageData{Bytes: resized, MIMEType: "image/png", Size: target}, nil
}

func (r *renderer) renderOpenAI(ctx context.Context, prompt string, target Size) ([]byte, error) {
	resp, err := r.openaiClient.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          r.model,
		N:              1,
		Size:           openAISize(target),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai returned no image data")
	}

	return base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
}

func (r *renderer) renderGemini(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := r.geminiClient.Models.GenerateContent(ctx, r.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		})
	if err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini returned no image data")
}

// resizeTo decodes the image and scales it to the exact target size with
// CatmullRom interpolation, re-encoding as PNG. A decode failure or an image
// already at the target size passes the bytes through untouched only when
// they already decode to the target; otherwise the resize is mandatory.
func resizeTo(raw []byte, target Size) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode provider image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() == target.Width && bounds.Dy() == target.Height {
		return raw, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

// renderError carries the provider HTTP status so the retry helper can tell
// server faults from everything else. Only 500, 502, 503, and 504 are
// retryable; rate limiting (429) is not, the reviewer can try again later.
type renderError struct {
	status int
	cause  error
}

func (e *renderError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("provider error (status %d): %v", e.status, e.cause)
	}
	return e.cause.Error()
}

func (e *renderError) Unwrap() error { return e.cause }

func (e *renderError) IsRetryable() bool {
	switch e.status {
	case 500, 502, 503, 504:
		return true
	}
	return false
}

func wrapRenderError(err error) error {
	return &renderError{status: providerStatus(err), cause: err}
}

func providerStatus(err error) int {
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return openaiErr.HTTPStatusCode
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	return 0
}
