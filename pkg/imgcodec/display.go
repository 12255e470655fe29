package imgcodec

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// Handle is a renderable resource derived from a decoded image.
// Release frees whatever the display layer holds for the image and
// must be safe to call more than once.
type Handle interface {
	ID() string
	Release() error
}

// Displayer turns image bytes into a display Handle. The bytes must
// not be retained past the call.
type Displayer interface {
	Display(b []byte, info Info) (Handle, error)
}

// DisplayOptions holds what a displayer might need to set itself up.
type DisplayOptions struct {
	Directory string    // file backend
	Output    io.Writer // kitty backend
	Cols      int       // kitty backend, in cells
	Rows      int       // kitty backend, in cells
}

var displayers = map[string]func(DisplayOptions) (Displayer, error){}

func init() {
	AddDisplayer("none", func(DisplayOptions) (Displayer, error) {
		return NullDisplayer{}, nil
	})
	AddDisplayer("file", func(o DisplayOptions) (Displayer, error) {
		return NewFileDisplayer(o.Directory)
	})
	AddDisplayer("kitty", func(o DisplayOptions) (Displayer, error) {
		w := o.Output
		if w == nil {
			w = os.Stdout
		}
		return NewKittyDisplayer(w, o.Cols, o.Rows), nil
	})
}

// AddDisplayer adds a new displayer to the available backends.
func AddDisplayer(name string, fn func(DisplayOptions) (Displayer, error)) {
	displayers[name] = fn
}

// NewDisplayer returns a displayer using the given backend.
func NewDisplayer(name string, o DisplayOptions) (Displayer, error) {
	fn, ok := displayers[name]
	if !ok {
		return nil, fmt.Errorf("display backend %s not found", name)
	}
	return fn(o)
}

// Displayers returns the registered backend names.
func Displayers() []string {
	res := make([]string, 0, len(displayers))
	for k := range displayers {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// ToDisplayHandle checks that b is a PNG image and hands it to the
// displayer.
func ToDisplayHandle(d Displayer, b []byte) (Handle, Info, error) {
	info, err := InspectPNG(b)
	if err != nil {
		return nil, info, err
	}

	h, err := d.Display(b, info)
	if err != nil {
		return nil, info, err
	}
	return h, info, nil
}

// NullDisplayer accepts every image and displays nothing.
type NullDisplayer struct{}

// Display returns a handle that holds nothing.
func (NullDisplayer) Display(_ []byte, info Info) (Handle, error) {
	return nullHandle(fmt.Sprintf("none:%dx%d", info.Width, info.Height)), nil
}

type nullHandle string

func (h nullHandle) ID() string     { return string(h) }
func (h nullHandle) Release() error { return nil }
