// Package imaging prepares captured screenshots for upload: EXIF
// orientation is applied, the image is downscaled to the configured
// dimension caps and re-encoded as JPEG under a byte budget. The whole
// pipeline is a pure function of (input bytes, constraints), which the
// response cache relies on for fingerprint stability.
package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

// ErrBudgetImpossible is returned when even the smallest rendition cannot
// fit the byte budget.
var ErrBudgetImpossible = errors.New("image cannot be reduced under the byte budget")

const (
	minQuality   = 30
	minDimension = 16
)

type Constraints struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // initial JPEG quality
	MaxBytes  int // 0 = no budget
}

func DefaultConstraints() Constraints {
	return Constraints{
		MaxWidth:  1920,
		MaxHeight: 1080,
		Quality:   85,
		MaxBytes:  4 << 20,
	}
}

// Image is the optimized upload payload. SHA256 is the hex content hash of
// Data, used as the cache fingerprint component for this image.
type Image struct {
	Data   []byte
	Width  int
	Height int
	MIME   string
	SHA256 string
}

// Optimize downsamples and recompresses raw image bytes so the result fits
// the constraints. The source slice is never modified. The output is
// deterministic for identical input and constraints.
func Optimize(raw []byte, c Constraints) (Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}

	if o := orientation(raw); o != 1 {
		img = reorient(img, o)
	}

	img = scaleToFit(img, c.MaxWidth, c.MaxHeight)

	quality := c.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	for {
		data, err := encodeJPEG(img, quality)
		if err != nil {
			return Image{}, err
		}
		if c.MaxBytes <= 0 || len(data) <= c.MaxBytes {
			b := img.Bounds()
			sum := sha256.Sum256(data)
			return Image{
				Data:   data,
				Width:  b.Dx(),
				Height: b.Dy(),
				MIME:   "image/jpeg",
				SHA256: hex.EncodeToString(sum[:]),
			}, nil
		}

		// Over budget: walk quality down first, then halve dimensions.
		if quality > minQuality {
			quality -= 10
			if quality < minQuality {
				quality = minQuality
			}
			continue
		}

		b := img.Bounds()
		if b.Dx() <= minDimension || b.Dy() <= minDimension {
			return Image{}, ErrBudgetImpossible
		}
		img = scaleToFit(img, b.Dx()/2, b.Dy()/2)
		quality = c.Quality
	}
}

// OptimizeFile reads and optimizes an image from disk.
func OptimizeFile(path string, c Constraints) (Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image %s: %w", path, err)
	}
	return Optimize(raw, c)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleToFit shrinks img to fit within maxW x maxH preserving aspect
// ratio. Images already within bounds are returned unchanged. CatmullRom
// is slower than the approximate kernels but fully deterministic.
func scaleToFit(img image.Image, maxW, maxH int) image.Image {
	if maxW <= 0 && maxH <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return img
	}

	scale := 1.0
	if maxW > 0 && float64(maxW)/float64(w) < scale {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(maxH)/float64(h) < scale {
		scale = float64(maxH) / float64(h)
	}

	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// orientation extracts the EXIF orientation tag, defaulting to 1.
func orientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// reorient bakes the EXIF orientation into the pixel data.
func reorient(img image.Image, o int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	set := func(dst *image.RGBA, fn func(x, y int) (int, int)) image.Image {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dx, dy := fn(x, y)
				dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	}

	switch o {
	case 2: // mirror horizontal
		return set(image.NewRGBA(image.Rect(0, 0, w, h)), func(x, y int) (int, int) { return w - 1 - x, y })
	case 3: // rotate 180
		return set(image.NewRGBA(image.Rect(0, 0, w, h)), func(x, y int) (int, int) { return w - 1 - x, h - 1 - y })
	case 4: // mirror vertical
		return set(image.NewRGBA(image.Rect(0, 0, w, h)), func(x, y int) (int, int) { return x, h - 1 - y })
	case 5: // transpose
		return set(image.NewRGBA(image.Rect(0, 0, h, w)), func(x, y int) (int, int) { return y, x })
	case 6: // rotate 90 cw
		return set(image.NewRGBA(image.Rect(0, 0, h, w)), func(x, y int) (int, int) { return h - 1 - y, x })
	case 7: // transverse
		return set(image.NewRGBA(image.Rect(0, 0, h, w)), func(x, y int) (int, int) { return h - 1 - y, w - 1 - x })
	case 8: // rotate 90 ccw
		return set(image.NewRGBA(image.Rect(0, 0, h, w)), func(x, y int) (int, int) { return y, w - 1 - x })
	default:
		return img
	}
}
