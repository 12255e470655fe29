// Package editsvc implements the image editing service: it holds the
// session image, its undo and redo history, and applies the editing
// commands on request.
package editsvc

import (
	"errors"
	"image"
)

// DefaultMaxHistory is the undo depth used when none is given.
const DefaultMaxHistory = 100

// History errors, their text is sent to clients.
var (
	ErrNoImage       = errors.New("No image stored in backend")
	ErrNothingToUndo = errors.New("Nothing to undo")
	ErrNothingToRedo = errors.New("Nothing to redo")
)

// States are the session counters sent with every response.
type States struct {
	Undo   int `json:"undo"`
	Redo   int `json:"redo"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// History is an image with its undo and redo stacks. It is not safe
// for concurrent use.
type History struct {
	current image.Image
	undo    []image.Image
	redo    []image.Image
	max     int
}

// NewHistory returns an empty history keeping at most max undo steps.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{max: max}
}

// Reset starts over with a new image and empty stacks.
func (h *History) Reset(m image.Image) {
	h.current = m
	h.undo = nil
	h.redo = nil
}

// Current returns the current image.
func (h *History) Current() (image.Image, error) {
	if h.current == nil {
		return nil, ErrNoImage
	}
	return h.current, nil
}

// Apply makes m the current image. The previous one goes on the undo
// stack and the redo stack is cleared.
func (h *History) Apply(m image.Image) error {
	if h.current == nil {
		return ErrNoImage
	}

	h.undo = append(h.undo, h.current)
	if len(h.undo) > h.max {
		h.undo[0] = nil
		h.undo = h.undo[1:]
	}
	h.redo = nil
	h.current = m
	return nil
}

// Undo goes back to the previous image.
func (h *History) Undo() error {
	if h.current == nil {
		return ErrNoImage
	}
	if len(h.undo) == 0 {
		return ErrNothingToUndo
	}

	h.redo = append(h.redo, h.current)
	h.current, h.undo = pop(h.undo)
	return nil
}

// Redo reapplies the last undone image.
func (h *History) Redo() error {
	if h.current == nil {
		return ErrNoImage
	}
	if len(h.redo) == 0 {
		return ErrNothingToRedo
	}

	h.undo = append(h.undo, h.current)
	h.current, h.redo = pop(h.redo)
	return nil
}

// States returns the history counters and the current image size.
func (h *History) States() States {
	s := States{Undo: len(h.undo), Redo: len(h.redo)}
	if h.current != nil {
		b := h.current.Bounds()
		s.Width, s.Height = b.Dx(), b.Dy()
	}
	return s
}

func pop(stack []image.Image) (image.Image, []image.Image) {
	n := len(stack) - 1
	m := stack[n]
	stack[n] = nil
	return m, stack[:n]
}
