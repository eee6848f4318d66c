package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const maxImageDim = 2000

// preprocess prepares an image for local OCR: fit it inside
// maxImageDim, convert to grayscale, stretch the contrast range and
// apply a light sharpen. Returns PNG bytes.
func preprocess(data []byte) ([]byte, error) {
	return preprocessImage(data, false)
}

// preprocessHighContrast additionally binarizes the image, which helps
// tesseract on faint or low-contrast scans.
func preprocessHighContrast(data []byte) ([]byte, error) {
	return preprocessImage(data, true)
}

func preprocessImage(data []byte, binarize bool) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	gray := toGray(fitResize(src))
	normalize(gray)
	gray = sharpen(gray)
	if binarize {
		threshold(gray, 128)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// fitResize scales the image down to fit inside maxImageDim by
// maxImageDim, preserving aspect ratio. Smaller images pass through.
func fitResize(src image.Image) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxImageDim && h <= maxImageDim {
		return src
	}

	scale := float64(maxImageDim) / float64(w)
	if h > w {
		scale = float64(maxImageDim) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func toGray(src image.Image) *image.Gray {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)
	return gray
}

// normalize stretches pixel intensities to the full 0-255 range.
func normalize(img *image.Gray) {
	min, max := uint8(255), uint8(0)
	for _, p := range img.Pix {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	if max <= min {
		return
	}
	scale := 255.0 / float64(max-min)
	for i, p := range img.Pix {
		img.Pix[i] = uint8(float64(p-min) * scale)
	}
}

// sharpen applies a 3x3 sharpening kernel. Border pixels are copied.
func sharpen(img *image.Gray) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(bounds)
	copy(out.Pix, img.Pix)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := int(img.Pix[y*img.Stride+x])
			sum := 5*center -
				int(img.Pix[(y-1)*img.Stride+x]) -
				int(img.Pix[(y+1)*img.Stride+x]) -
				int(img.Pix[y*img.Stride+x-1]) -
				int(img.Pix[y*img.Stride+x+1])
			if sum < 0 {
				sum = 0
			}
			if sum > 255 {
				sum = 255
			}
			out.Pix[y*out.Stride+x] = uint8(sum)
		}
	}
	return out
}

func threshold(img *image.Gray, cutoff uint8) {
	for i, p := range img.Pix {
		if p >= cutoff {
			img.Pix[i] = 255
		} else {
			img.Pix[i] = 0
		}
	}
}
