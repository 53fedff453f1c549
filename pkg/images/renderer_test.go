package images

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/medquiz-ai/medquiz-engine/pkg/retry"
)

func TestRenderErrorRetryability(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"internal server error", 500, true},
		{"bad gateway", 502, true},
		{"service unavailable", 503, true},
		{"gateway timeout", 504, true},
		{"rate limited never retried", 429, false},
		{"auth failure", 401, false},
		{"bad request", 400, false},
		{"no status", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &renderError{status: tt.status, cause: errors.New("boom")}
			assert.Equal(t, tt.retryable, err.IsRetryable())
			// The retry helper must honor the explicit declaration rather
			// than pattern-matching the message.
			assert.Equal(t, tt.retryable, retry.IsRetryable(err))
		})
	}
}

func TestProviderStatusExtraction(t *testing.T) {
	openaiErr := &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}
	assert.Equal(t, 503, providerStatus(openaiErr))

	geminiErr := genai.APIError{Code: 500, Message: "internal"}
	assert.Equal(t, 500, providerStatus(geminiErr))

	assert.Equal(t, 0, providerStatus(errors.New("plain")))
}

func TestWrapRenderErrorUnwraps(t *testing.T) {
	cause := &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}
	wrapped := wrapRenderError(cause)

	var apiErr *openai.APIError
	require.True(t, errors.As(wrapped, &apiErr))
	assert.Equal(t, 429, apiErr.HTTPStatusCode)
	assert.False(t, retry.IsRetryable(wrapped))
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResizeTo(t *testing.T) {
	t.Run("resizes to exact target", func(t *testing.T) {
		raw := encodePNG(t, 64, 64)
		out, err := resizeTo(raw, Size{Width: 32, Height: 48})
		require.NoError(t, err)

		decoded, _, err := image.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 32, decoded.Bounds().Dx())
		assert.Equal(t, 48, decoded.Bounds().Dy())
	})

	t.Run("passthrough when already at target", func(t *testing.T) {
		raw := encodePNG(t, 100, 50)
		out, err := resizeTo(raw, Size{Width: 100, Height: 50})
		require.NoError(t, err)
		assert.Equal(t, raw, out)
	})

	t.Run("garbage input fails", func(t *testing.T) {
		_, err := resizeTo([]byte("not an image"), Size{Width: 32, Height: 32})
		assert.Error(t, err)
	})
}

func TestNewRendererValidation(t *testing.T) {
	logger := zap.NewNop()

	_, err := NewRenderer(t.Context(), &Config{Provider: "openai", Model: "gpt-image-1"}, logger)
	assert.ErrorContains(t, err, "no API key")

	_, err = NewRenderer(t.Context(), &Config{Provider: "openai", APIKey: "k"}, logger)
	assert.ErrorContains(t, err, "model is required")

	_, err = NewRenderer(t.Context(), &Config{Provider: "dalle", APIKey: "k", Model: "m"}, logger)
	assert.ErrorContains(t, err, "unknown image provider")
}
