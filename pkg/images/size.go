package images

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinDimension and MaxDimension bound requested image dimensions.
	MinDimension = 32
	MaxDimension = 2048
)

// Size is a target image dimension in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize parses a "WxH" string into a clamped Size. Empty input returns
// the provided fallback. Each dimension is clamped to [MinDimension, MaxDimension].
func ParseSize(raw string, fallback Size) (Size, error) {
	if strings.TrimSpace(raw) == "" {
		return clampSize(fallback), nil
	}

	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(raw)), "x", 2)
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("invalid size %q: expected WxH", raw)
	}

	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Size{}, fmt.Errorf("invalid width in %q: %w", raw, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Size{}, fmt.Errorf("invalid height in %q: %w", raw, err)
	}
	if width <= 0 || height <= 0 {
		return Size{}, fmt.Errorf("invalid size %q: dimensions must be positive", raw)
	}

	return clampSize(Size{Width: width, Height: height}), nil
}

func clampSize(s Size) Size {
	return Size{Width: clamp(s.Width), Height: clamp(s.Height)}
}

func clamp(v int) int {
	if v < MinDimension {
		return MinDimension
	}
	if v > MaxDimension {
		return MaxDimension
	}
	return v
}

// AspectRatio returns the reduced aspect ratio, e.g. "4:3" for 1024x768.
func (s Size) AspectRatio() string {
	d := gcd(s.Width, s.Height)
	if d == 0 {
		return "1:1"
	}
	return fmt.Sprintf("%d:%d", s.Width/d, s.Height/d)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// openAISize maps a target size onto the nearest size the OpenAI images API
// accepts. The exact target is reached by resizing the result.
func openAISize(s Size) string {
	switch {
	case s.Width == s.Height:
		return "1024x1024"
	case s.Height > s.Width:
		return "1024x1536"
	default:
		return "1536x1024"
	}
}
