package imgcodec

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

// Kitty graphics protocol escape sequences
const (
	escStart = "\x1b_G"
	escEnd   = "\x1b\\"

	kittyChunkSize = 4096

	// pixels per cell, roughly; only used to bound what we transmit.
	cellWidth  = 10
	cellHeight = 20
)

var nextImageID uint32

// KittyDisplayer shows images in a terminal supporting the Kitty
// graphics protocol. Each image is transmitted with its own ID and
// deleted from the terminal when its handle is released.
type KittyDisplayer struct {
	mu   sync.Mutex
	w    io.Writer
	cols int
	rows int
}

// NewKittyDisplayer returns a KittyDisplayer writing to w and placing
// images in a cols x rows cells area.
func NewKittyDisplayer(w io.Writer, cols, rows int) *KittyDisplayer {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return &KittyDisplayer{w: w, cols: cols, rows: rows}
}

// Display transmits and places the image.
func (d *KittyDisplayer) Display(b []byte, info Info) (Handle, error) {
	maxW, maxH := d.cols*cellWidth, d.rows*cellHeight
	if info.Width > maxW || info.Height > maxH {
		m, err := DecodeImage(b)
		if err != nil {
			return nil, err
		}
		if b, err = EncodePNG(imaging.Fit(m, maxW, maxH, imaging.Lanczos)); err != nil {
			return nil, err
		}
	}

	id := atomic.AddUint32(&nextImageID, 1)
	seq := kittyTransmit(b, id, d.cols, d.rows)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := io.WriteString(d.w, seq+"\n"); err != nil {
		return nil, err
	}

	return &kittyHandle{d: d, id: id}, nil
}

func (d *KittyDisplayer) write(s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := io.WriteString(d.w, s)
	return err
}

type kittyHandle struct {
	d    *KittyDisplayer
	id   uint32
	once sync.Once
	err  error
}

func (h *kittyHandle) ID() string {
	return "kitty:" + strconv.FormatUint(uint64(h.id), 10)
}

func (h *kittyHandle) Release() error {
	h.once.Do(func() {
		h.err = h.d.write(kittyDelete(h.id))
	})
	return h.err
}

// kittyTransmit returns the sequence that transmits PNG data and
// displays it at the cursor (a=T) in a cols x rows area.
func kittyTransmit(pngData []byte, id uint32, cols, rows int) string {
	encoded := Encode(pngData)

	var sb strings.Builder
	for i := 0; i < len(encoded); i += kittyChunkSize {
		end := min(i+kittyChunkSize, len(encoded))
		more := 0
		if end < len(encoded) {
			more = 1
		}

		sb.WriteString(escStart)
		if i == 0 {
			fmt.Fprintf(&sb, "a=T,f=100,i=%d,c=%d,r=%d,q=2,m=%d;", id, cols, rows, more)
		} else {
			fmt.Fprintf(&sb, "m=%d;", more)
		}
		sb.WriteString(encoded[i:end])
		sb.WriteString(escEnd)
	}

	return sb.String()
}

// kittyDelete returns the sequence deleting an image, its data and
// all its placements.
func kittyDelete(id uint32) string {
	return fmt.Sprintf("%sa=d,d=I,i=%d,q=2;%s", escStart, id, escEnd)
}
