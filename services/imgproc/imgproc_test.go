package imgproc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNormalizer_Normalize(t *testing.T) {
	n := &Normalizer{MaxDimension: 100, Quality: 75}

	t.Run("downscale", func(t *testing.T) {
		out, ct, err := n.Normalize(bytes.NewReader(pngImage(t, 400, 200)))
		require.NoError(t, err)
		assert.Equal(t, ContentTypeWebP, ct)

		cfg, err := webp.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Width)
		assert.Equal(t, 50, cfg.Height)
	})

	t.Run("keep small images", func(t *testing.T) {
		out, _, err := n.Normalize(bytes.NewReader(pngImage(t, 60, 40)))
		require.NoError(t, err)

		cfg, err := webp.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, 60, cfg.Width)
		assert.Equal(t, 40, cfg.Height)
	})

	t.Run("not an image", func(t *testing.T) {
		_, _, err := n.Normalize(strings.NewReader("definitely not pixels"))
		assert.Error(t, err)
	})
}
