package editsvc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"

	"github.com/retouch/retouch/pkg/catalog"
	"github.com/retouch/retouch/pkg/imgcodec"
)

var (
	// ErrEmptyCrop is returned when a crop rectangle is outside the image.
	ErrEmptyCrop = errors.New("crop area is outside the image")
	// ErrInvalidSize is returned when a resize target is negative.
	ErrInvalidSize = errors.New("invalid image size")
)

// Canvas is an image being transformed.
type Canvas struct {
	m image.Image
}

// Filter is a canvas transformation.
type Filter func(*Canvas) error

// NewCanvas decodes an image in any supported format.
func NewCanvas(b []byte) (*Canvas, error) {
	if _, err := imgcodec.Inspect(b); err != nil {
		return nil, err
	}

	m, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return &Canvas{m: m}, nil
}

// CanvasOf wraps an existing image.
func CanvasOf(m image.Image) *Canvas {
	return &Canvas{m: m}
}

// Image returns the wrapped image instance.
func (c *Canvas) Image() image.Image {
	return c.m
}

// Width returns the image width.
func (c *Canvas) Width() int {
	return c.m.Bounds().Dx()
}

// Height returns the image height.
func (c *Canvas) Height() int {
	return c.m.Bounds().Dy()
}

// Encode returns the PNG bytes of the image.
func (c *Canvas) Encode() ([]byte, error) {
	return imgcodec.EncodePNG(c.m)
}

// Pipeline apply all the given Filter functions to the image.
func (c *Canvas) Pipeline(filters ...Filter) error {
	for _, fn := range filters {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Grayscale transforms the image to a grayscale version.
func (c *Canvas) Grayscale() error {
	c.m = effect.Grayscale(c.m)
	return nil
}

// Rotate rotates the image clockwise by angle degrees. The canvas
// grows to hold the whole rotated image.
func (c *Canvas) Rotate(angle float64) error {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}

	// imaging turns counter-clockwise
	switch angle {
	case 0:
	case 90:
		c.m = imaging.Rotate270(c.m)
	case 180:
		c.m = imaging.Rotate180(c.m)
	case 270:
		c.m = imaging.Rotate90(c.m)
	default:
		c.m = transform.Rotate(c.m, angle, &transform.RotationOptions{ResizeBounds: true})
	}
	return nil
}

// Resize resizes the image. With keepRatio, the height is computed
// from the width or, when width is 0, the width from the height.
// Without it, a 0 dimension keeps its current value.
func (c *Canvas) Resize(w, h int, keepRatio bool) error {
	ow, oh := c.Width(), c.Height()
	switch {
	case w < 0 || h < 0:
		return ErrInvalidSize
	case w == 0 && h == 0:
		return nil
	case w > imgcodec.MaxPixels || h > imgcodec.MaxPixels:
		return imgcodec.ErrTooBig
	}

	switch {
	case keepRatio && w > 0:
		h = int(float64(w) / float64(ow) * float64(oh))
	case keepRatio:
		w = int(float64(h) / float64(oh) * float64(ow))
	case w == 0:
		w = ow
	case h == 0:
		h = oh
	}
	w, h = max(w, 1), max(h, 1)

	if w > imgcodec.MaxPixels/h {
		return imgcodec.ErrTooBig
	}
	c.m = transform.Resize(c.m, w, h, transform.Linear)
	return nil
}

// Crop keeps the part of the image inside the rectangle. The
// rectangle is relative to the image top left corner.
func (c *Canvas) Crop(x, y, w, h int) error {
	b := c.m.Bounds()
	if x >= b.Dx() || y >= b.Dy() || w <= 0 || h <= 0 {
		return ErrEmptyCrop
	}
	w, h = min(w, b.Dx()), min(h, b.Dy())

	r := image.Rect(x, y, x+w, y+h).Add(b.Min).Intersect(b)
	if r.Empty() {
		return ErrEmptyCrop
	}
	c.m = transform.Crop(c.m, r)
	return nil
}

// WhiteBalance corrects the color cast of the image, scaling red and
// blue to the green channel. The "gray" mode uses the channel means
// (gray world), the "white" mode uses the channel maxima (white patch).
func (c *Canvas) WhiteBalance(mode string) error {
	var sr, sg, sb float64
	var n float64
	b := c.m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := color.NRGBAModel.Convert(c.m.At(x, y)).(color.NRGBA)
			r, g, bl := float64(p.R), float64(p.G), float64(p.B)
			if mode == "white" {
				sr, sg, sb = math.Max(sr, r), math.Max(sg, g), math.Max(sb, bl)
			} else {
				sr, sg, sb = sr+r, sg+g, sb+bl
				n++
			}
		}
	}
	if mode != "white" && n > 0 {
		sr, sg, sb = sr/n, sg/n, sb/n
	}

	scaleR, scaleB := 1.0, 1.0
	if sr > 0 {
		scaleR = sg / sr
	}
	if sb > 0 {
		scaleB = sg / sb
	}

	c.m = adjust.Apply(c.m, func(p color.RGBA) color.RGBA {
		p.R = clamp8(float64(p.R)*scaleR, p.A)
		p.B = clamp8(float64(p.B)*scaleB, p.A)
		return p
	})
	return nil
}

// Blur applies a gaussian blur with the given radius.
func (c *Canvas) Blur(halfWidth int) error {
	if halfWidth <= 0 {
		return nil
	}
	c.m = blur.Gaussian(c.m, float64(halfWidth))
	return nil
}

// Contrast raises the contrast, amount is in percent.
func (c *Canvas) Contrast(amount float64) error {
	c.m = adjust.Contrast(c.m, amount/100)
	return nil
}

// Saturation changes the saturation, amount is in percent.
func (c *Canvas) Saturation(amount float64) error {
	c.m = adjust.Saturation(c.m, amount/100)
	return nil
}

// Tone changes the brightness, amount is in percent.
func (c *Canvas) Tone(amount float64) error {
	c.m = adjust.Brightness(c.m, amount/100)
	return nil
}

// Filter applies a named color filter.
func (c *Canvas) Filter(name string) error {
	switch name {
	case "sepia":
		c.m = effect.Sepia(c.m)
	case "grayscale":
		return c.Grayscale()
	case "ghost":
		// half opacity, colors are premultiplied
		c.m = adjust.Apply(c.m, func(p color.RGBA) color.RGBA {
			return color.RGBA{p.R / 2, p.G / 2, p.B / 2, p.A / 2}
		})
	default:
		return fmt.Errorf("unknown filter %s", name)
	}
	return nil
}

// FilterFor returns the transformation described by a command and
// its body.
func FilterFor(name catalog.Name, body catalog.Body) (Filter, error) {
	if name == catalog.Grayscale {
		return (*Canvas).Grayscale, nil
	}

	switch p := body.(type) {
	case *catalog.RotateParams:
		return func(c *Canvas) error { return c.Rotate(p.Angle) }, nil
	case *catalog.ResizeParams:
		return func(c *Canvas) error { return c.Resize(p.Width, p.Height, p.AspectRatio) }, nil
	case *catalog.CropParams:
		return func(c *Canvas) error { return c.Crop(p.X, p.Y, p.Width, p.Height) }, nil
	case *catalog.WhiteBalanceParams:
		return func(c *Canvas) error { return c.WhiteBalance(p.Mode) }, nil
	case *catalog.BlurParams:
		return func(c *Canvas) error { return c.Blur(p.HalfWidth) }, nil
	case *catalog.ContrastParams:
		return func(c *Canvas) error { return c.Contrast(p.Amount) }, nil
	case *catalog.SaturationParams:
		return func(c *Canvas) error { return c.Saturation(p.Amount) }, nil
	case *catalog.ToneParams:
		return func(c *Canvas) error { return c.Tone(p.Amount) }, nil
	case *catalog.FilterParams:
		return func(c *Canvas) error { return c.Filter(p.Filter) }, nil
	}
	return nil, fmt.Errorf("no filter for %T", body)
}

// clamp8 bounds a premultiplied channel value to its alpha.
func clamp8(v float64, a uint8) uint8 {
	if v < 0 {
		return 0
	}
	if v > float64(a) {
		return a
	}
	return uint8(v + 0.5)
}
