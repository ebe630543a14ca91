// Package qr implements the QR-based shard/version recovery pipeline: crop
// the top-right corner of a screenshot, normalize contrast, decode an
// embedded QR code, and parse the shard/version tokens it carries.
package qr

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

const (
	cropSize      = 200
	sampleSize    = 50
	darkenDelta   = 40
)

// Recovery is the decoded shard/version pair.
type Recovery struct {
	Shard   string
	Version string
}

// Decode runs the full crop/grayscale/threshold/decode pipeline over img
// (already the full screenshot) and returns the recovered shard/version
// pair. ok is false when no QR code was found or the payload didn't carry
// at least 4 whitespace-separated tokens.
func Decode(img image.Image) (Recovery, bool, error) {
	region := cropTopRight(img, cropSize)
	gray := toGray(region)
	thresholded := thresholdAndDarken(gray, sampleSize, darkenDelta)

	bmp, err := gozxing.NewBinaryBitmapFromImage(thresholded)
	if err != nil {
		return Recovery{}, false, fmt.Errorf("build bitmap: %w", err)
	}
	reader := qrcode.NewQRCodeReader()
	result, err := reader.Decode(bmp, nil)
	if err != nil {
		return Recovery{}, false, fmt.Errorf("decode qr: %w", err)
	}

	tokens := strings.Fields(result.GetText())
	if len(tokens) < 4 {
		return Recovery{}, false, nil
	}
	return Recovery{Shard: tokens[1], Version: tokens[3]}, true, nil
}

// cropTopRight returns the top-right size x size region, or img itself if
// it is already exactly that size.
func cropTopRight(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	x0 := b.Max.X - size
	if x0 < b.Min.X {
		x0 = b.Min.X
	}
	rect := image.Rect(x0, b.Min.Y, b.Max.X, b.Min.Y+size)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

// thresholdAndDarken samples a centered sampleSize x sampleSize region to
// compute a mean-luminance threshold, then darkens every pixel below it by
// delta — improving QR edge contrast against a busy HUD background.
func thresholdAndDarken(gray *image.Gray, sampleSize, delta int) *image.Gray {
	b := gray.Bounds()
	cx, cy := b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2
	half := sampleSize / 2
	sx0, sy0 := cx-half, cy-half
	sx1, sy1 := cx+half, cy+half

	var sum, count int
	for y := sy0; y < sy1; y++ {
		for x := sx0; x < sx1; x++ {
			if !(image.Pt(x, y).In(b)) {
				continue
			}
			sum += int(gray.GrayAt(x, y).Y)
			count++
		}
	}
	threshold := uint8(128)
	if count > 0 {
		threshold = uint8(sum / count)
	}

	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := gray.GrayAt(x, y).Y
			if v < threshold {
				nv := int(v) - delta
				if nv < 0 {
					nv = 0
				}
				v = uint8(nv)
			}
			out.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return out
}
