// Package imgcodec converts images between their binary form, the
// text form used on the wire and display handles.
package imgcodec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	"image/png"    // PNG decoder and encoder

	"github.com/disintegration/imaging"

	_ "github.com/biessek/golang-ico" // ICO decoder
	_ "golang.org/x/image/bmp"        // BMP decoder
	_ "golang.org/x/image/tiff"       // TIFF decoder
	_ "golang.org/x/image/webp"       // WEBP decoder
)

// MaxPixels is the biggest image (in pixels) we accept to decode.
const MaxPixels = 30000000

var (
	// ErrInvalidPayload is returned when a text payload is not valid base64.
	ErrInvalidPayload = errors.New("invalid image payload")

	// ErrNotPNG is returned when image bytes are not a PNG image.
	ErrNotPNG = errors.New("image is not a PNG")

	// ErrTooBig is returned when an image exceeds MaxPixels.
	ErrTooBig = errors.New("image is too big")
)

// Info describes an encoded image without decoding its pixels.
type Info struct {
	Format string
	Width  int
	Height int
}

// Encode returns the transport text of an image.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode returns the image bytes of a transport text. A data URL
// prefix ("data:image/png;base64,") is accepted and ignored.
func Decode(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", ErrInvalidPayload, err)
	}
	return b, nil
}

// Inspect reads the image header and returns its format and size.
func Inspect(b []byte) (Info, error) {
	c, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return Info{}, err
	}
	if c.Width*c.Height > MaxPixels {
		return Info{}, ErrTooBig
	}

	return Info{Format: format, Width: c.Width, Height: c.Height}, nil
}

// InspectPNG is like Inspect but fails when the image is not a PNG.
func InspectPNG(b []byte) (Info, error) {
	info, err := Inspect(b)
	if err != nil {
		return info, err
	}
	if info.Format != "png" {
		return info, fmt.Errorf("%w (%s)", ErrNotPNG, info.Format)
	}
	return info, nil
}

// DecodeImage decodes PNG bytes into an image.
func DecodeImage(b []byte) (image.Image, error) {
	if _, err := InspectPNG(b); err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(b))
}

// EncodePNG encodes an image to PNG bytes.
func EncodePNG(m image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	encoder := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToPNG reads an image in any supported format and returns its PNG
// bytes. PNG input is returned untouched, other formats are decoded
// (applying the EXIF orientation) and encoded again.
func ToPNG(r io.Reader) ([]byte, Info, error) {
	// We need to grab the format first, hence this two pass thing
	var buf bytes.Buffer
	tee := io.TeeReader(r, &buf)

	c, format, err := image.DecodeConfig(tee)
	if err != nil {
		return nil, Info{}, err
	}
	if c.Width*c.Height > MaxPixels {
		return nil, Info{}, ErrTooBig
	}

	if format == "png" {
		if _, err := io.Copy(&buf, r); err != nil {
			return nil, Info{}, err
		}
		return buf.Bytes(), Info{Format: format, Width: c.Width, Height: c.Height}, nil
	}

	m, err := imaging.Decode(
		io.MultiReader(&buf, r),
		imaging.AutoOrientation(true),
	)
	if err != nil {
		return nil, Info{}, err
	}

	b, err := EncodePNG(m)
	if err != nil {
		return nil, Info{}, err
	}

	bounds := m.Bounds()
	return b, Info{Format: "png", Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

// formats lists the decoders registered by this package.
var formats = []string{"png", "jpeg", "gif", "bmp", "tiff", "webp", "ico"}

// Formats returns the names of the image formats accepted by ToPNG.
func Formats() []string {
	return append([]string{}, formats...)
}
