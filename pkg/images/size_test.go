package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	fallback := Size{Width: 1024, Height: 1024}

	tests := []struct {
		name    string
		input   string
		want    Size
		wantErr bool
	}{
		{
			name:  "plain WxH",
			input: "800x600",
			want:  Size{Width: 800, Height: 600},
		},
		{
			name:  "uppercase separator",
			input: "640X480",
			want:  Size{Width: 640, Height: 480},
		},
		{
			name:  "empty falls back to default",
			input: "",
			want:  fallback,
		},
		{
			name:  "whitespace falls back to default",
			input: "   ",
			want:  fallback,
		},
		{
			name:  "clamped below minimum",
			input: "8x16",
			want:  Size{Width: MinDimension, Height: MinDimension},
		},
		{
			name:  "clamped above maximum",
			input: "4096x3000",
			want:  Size{Width: MaxDimension, Height: MaxDimension},
		},
		{
			name:    "missing separator",
			input:   "1024",
			wantErr: true,
		},
		{
			name:    "non-numeric width",
			input:   "widex600",
			wantErr: true,
		},
		{
			name:    "zero dimension",
			input:   "0x600",
			wantErr: true,
		},
		{
			name:    "negative dimension",
			input:   "-100x600",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input, fallback)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		size Size
		want string
	}{
		{Size{1024, 768}, "4:3"},
		{Size{1024, 1024}, "1:1"},
		{Size{1536, 1024}, "3:2"},
		{Size{1920, 1080}, "16:9"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.size.AspectRatio(), "size %s", tt.size)
	}
}

func TestOpenAISizeMapping(t *testing.T) {
	assert.Equal(t, "1024x1024", openAISize(Size{512, 512}))
	assert.Equal(t, "1024x1536", openAISize(Size{600, 800}))
	assert.Equal(t, "1536x1024", openAISize(Size{800, 600}))
}
