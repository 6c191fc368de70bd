// Package imgproc normalizes uploaded answer sheet photos to size bounded WebP images.
package imgproc

import (
	"bytes"
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	DefaultMaxDimension = 2000
	DefaultQuality      = 80

	ContentTypeWebP = "image/webp"
)

// Normalizer decodes jpeg, png, gif, bmp, tiff & webp images, honors the EXIF orientation,
// fits them within MaxDimension and encodes them as WebP.
type Normalizer struct {
	MaxDimension int
	Quality      float32
}

func NewNormalizer() *Normalizer {
	return &Normalizer{MaxDimension: DefaultMaxDimension, Quality: DefaultQuality}
}

func (n *Normalizer) Normalize(r io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.Wrap(err, "reading image")
	}
	img, err := decode(data)
	if err != nil {
		return nil, "", err
	}

	if n.MaxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > n.MaxDimension || b.Dy() > n.MaxDimension {
			img = imaging.Fit(img, n.MaxDimension, n.MaxDimension, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: n.Quality}); err != nil {
		return nil, "", errors.Wrap(err, "encoding webp")
	}
	return buf.Bytes(), ContentTypeWebP, nil
}

func decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	// image.Decode does not know webp unless registered: try it directly
	if wimg, wErr := webp.Decode(bytes.NewReader(data)); wErr == nil {
		return wimg, nil
	}
	return nil, errors.Wrap(err, "decoding image")
}
