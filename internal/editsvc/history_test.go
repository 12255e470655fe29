package editsvc

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func img(w, h int) image.Image {
	return image.NewNRGBA(image.Rect(0, 0, w, h))
}

func TestHistory(t *testing.T) {
	t.Run("no image", func(t *testing.T) {
		h := NewHistory(0)
		assert.Equal(t, DefaultMaxHistory, h.max)

		_, err := h.Current()
		assert.Equal(t, ErrNoImage, err)
		assert.Equal(t, ErrNoImage, h.Apply(img(1, 1)))
		assert.Equal(t, ErrNoImage, h.Undo())
		assert.Equal(t, ErrNoImage, h.Redo())
		assert.Equal(t, States{}, h.States())
	})

	t.Run("apply undo redo", func(t *testing.T) {
		h := NewHistory(10)
		h.Reset(img(800, 600))
		assert.Equal(t, States{0, 0, 800, 600}, h.States())

		assert.Equal(t, ErrNothingToUndo, h.Undo())
		assert.Equal(t, ErrNothingToRedo, h.Redo())

		assert.NoError(t, h.Apply(img(600, 800)))
		assert.NoError(t, h.Apply(img(300, 400)))
		assert.Equal(t, States{2, 0, 300, 400}, h.States())

		assert.NoError(t, h.Undo())
		assert.Equal(t, States{1, 1, 600, 800}, h.States())

		assert.NoError(t, h.Redo())
		assert.Equal(t, States{2, 0, 300, 400}, h.States())

		assert.NoError(t, h.Undo())
		assert.NoError(t, h.Undo())
		assert.Equal(t, States{0, 2, 800, 600}, h.States())

		// a new change drops the redo stack
		assert.NoError(t, h.Apply(img(10, 10)))
		assert.Equal(t, States{1, 0, 10, 10}, h.States())
		assert.Equal(t, ErrNothingToRedo, h.Redo())
	})

	t.Run("reset", func(t *testing.T) {
		h := NewHistory(10)
		h.Reset(img(1, 1))
		assert.NoError(t, h.Apply(img(2, 2)))
		h.Reset(img(3, 3))
		assert.Equal(t, States{0, 0, 3, 3}, h.States())
	})

	t.Run("max", func(t *testing.T) {
		h := NewHistory(3)
		h.Reset(img(1, 1))
		for i := 2; i <= 6; i++ {
			assert.NoError(t, h.Apply(img(i, i)))
		}
		assert.Equal(t, States{3, 0, 6, 6}, h.States())

		for i := 0; i < 3; i++ {
			assert.NoError(t, h.Undo())
		}
		// the oldest images are gone
		assert.Equal(t, States{0, 3, 3, 3}, h.States())
	})
}
