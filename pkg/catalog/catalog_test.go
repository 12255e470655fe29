package catalog

import (
	"encoding/json"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	t.Run("names", func(t *testing.T) {
		assert.Equal(t, []Name{
			Blur, Contrast, Crop, Filter, Grayscale, Redo,
			Resize, Rotate, Saturation, Tone, Undo, WhiteBalance,
		}, Names())
		assert.Len(t, All(), 12)
	})

	t.Run("lookup", func(t *testing.T) {
		c, ok := Lookup(Rotate)
		assert.True(t, ok)
		assert.Equal(t, "/rotate", c.Path)
		assert.Equal(t, "POST", c.Method)

		_, ok = Lookup("rotate")
		assert.False(t, ok)
		_, ok = Lookup("Sharpen")
		assert.False(t, ok)
	})

	t.Run("resolve", func(t *testing.T) {
		tests := []struct {
			input    string
			expected Name
		}{
			{"rotate", Rotate},
			{" Rotate ", Rotate},
			{"whitebalance", WhiteBalance},
			{"/whitebalance", WhiteBalance},
			{"UNDO", Undo},
		}
		for _, x := range tests {
			t.Run(x.input, func(t *testing.T) {
				c, ok := Resolve(x.input)
				require.True(t, ok)
				assert.Equal(t, x.expected, c.Name)
			})
		}

		_, ok := Resolve("sharpen")
		assert.False(t, ok)
	})

	t.Run("groups", func(t *testing.T) {
		g := Groups()
		assert.Len(t, g["history"], 2)
		assert.Len(t, g["adjust"], 4)
	})

	t.Run("history", func(t *testing.T) {
		assert.True(t, IsHistory(Undo))
		assert.True(t, IsHistory(Redo))
		assert.False(t, IsHistory(Rotate))
	})

	t.Run("params", func(t *testing.T) {
		c, _ := Lookup(Undo)
		assert.False(t, c.HasParams())

		c, _ = Lookup(Blur)
		p, ok := c.Param("half_width")
		assert.True(t, ok)
		assert.True(t, p.Ranged())
		assert.Equal(t, Slider, p.Affordance)
		assert.Equal(t, 15.0, p.Max)
	})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     Name
		params   Params
		expected string
	}{
		{Grayscale, nil, `{}`},
		{Undo, Params{"foo": 1}, `{}`},
		{Rotate, Params{"angle": 45}, `{"angle":45}`},
		{Rotate, Params{"angle": 12.5}, `{"angle":12.5}`},
		{Rotate, Params{}, `{"angle":90}`},
		{Resize, Params{"width": 400.0, "height": "300", "aspectRatio": false}, `{"width":400,"height":300,"aspectRatio":false}`},
		{Resize, Params{"width": 400}, `{"width":400,"height":0,"aspectRatio":true}`},
		{Crop, Params{"x": 1, "y": 2, "width": 3, "height": 4}, `{"x":1,"y":2,"width":3,"height":4}`},
		{WhiteBalance, Params{"mode": " White "}, `{"mode":"white"}`},
		{Blur, Params{"half_width": "3"}, `{"half_width":3}`},
		{Contrast, Params{"amount": 20}, `{"amount":20}`},
		{Saturation, Params{"amount": -30}, `{"amount":-30}`},
		{Tone, Params{"amount": 5}, `{"amount":5}`},
		{Filter, Params{"filter": "Sepia"}, `{"filter":"sepia"}`},
	}

	for _, x := range tests {
		t.Run(string(x.name), func(t *testing.T) {
			c, _ := Lookup(x.name)
			body, err := c.Decode(x.params)
			require.NoError(t, err)

			b, err := json.Marshal(body)
			require.NoError(t, err)
			assert.JSONEq(t, x.expected, string(b))
		})
	}

	t.Run("errors", func(t *testing.T) {
		c, _ := Lookup(Blur)
		_, err := c.Decode(Params{"half_width": 2.5})
		assert.EqualError(t, err, "half_width: invalid value")

		_, err = c.Decode(Params{"half_width": "abc"})
		assert.EqualError(t, err, "half_width: invalid value")

		_, err = c.Decode(Params{"half_width": []int{1}})
		assert.EqualError(t, err, "parameter half_width: unsupported type []int")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   Name
		params Params
		errors map[string]string
	}{
		{Rotate, Params{"angle": 360}, nil},
		{Rotate, Params{"angle": 400}, map[string]string{"angle": "must be no greater than 360"}},
		{Resize, Params{"width": 0, "height": 0}, map[string]string{"width": "width or height is required"}},
		{Resize, Params{"height": 10}, nil},
		{Resize, Params{"width": 4000000000, "height": 4000000000}, map[string]string{
			"width": "must be no greater than 100000", "height": "must be no greater than 100000",
		}},
		{Crop, Params{"x": 1 << 40, "y": 0, "width": 10, "height": 5}, map[string]string{"x": "must be no greater than 100000"}},
		{Crop, Params{"x": 0, "y": 0, "width": 0, "height": 5}, map[string]string{"width": "cannot be blank"}},
		{WhiteBalance, Params{"mode": "blue"}, map[string]string{"mode": "must be a valid value"}},
		{Blur, Params{"half_width": 16}, map[string]string{"half_width": "must be no greater than 15"}},
		{Contrast, Params{"amount": -1}, map[string]string{"amount": "must be no less than 0"}},
		{Saturation, Params{"amount": -100}, nil},
		{Tone, Params{"amount": 51}, map[string]string{"amount": "must be no greater than 50"}},
		{Filter, Params{"filter": "ghost"}, nil},
		{Filter, Params{"filter": "noir"}, map[string]string{"filter": "must be a valid value"}},
	}

	for _, x := range tests {
		t.Run(string(x.name), func(t *testing.T) {
			c, _ := Lookup(x.name)
			_, err := c.Validate(x.params)
			if x.errors == nil {
				assert.NoError(t, err)
				return
			}

			verr, ok := err.(validation.Errors)
			require.True(t, ok, "%v", err)
			res := map[string]string{}
			for k, v := range verr {
				res[k] = v.Error()
			}
			assert.Equal(t, x.errors, res)
		})
	}
}

func TestClamp(t *testing.T) {
	c, _ := Lookup(Saturation)
	assert.Equal(t, Params{"amount": -100.0}, c.Clamp(Params{"amount": -250, "other": 1}))
	assert.Equal(t, Params{"amount": 20.0}, c.Clamp(Params{"amount": "20"}))

	c, _ = Lookup(Filter)
	assert.Equal(t, Params{"filter": "sepia"}, c.Clamp(Params{"filter": "noir"}))
	assert.Equal(t, Params{"filter": "ghost"}, c.Clamp(Params{"filter": "Ghost"}))

	c, _ = Lookup(Resize)
	assert.Equal(t, Params{"width": 10}, c.Clamp(Params{"width": 10}))
}

func TestParseArgs(t *testing.T) {
	p, err := ParseArgs([]string{"angle=90", "mode=gray"})
	assert.NoError(t, err)
	assert.Equal(t, Params{"angle": "90", "mode": "gray"}, p)
	assert.Equal(t, []string{"angle", "mode"}, p.Keys())

	_, err = ParseArgs([]string{"angle"})
	assert.EqualError(t, err, `invalid parameter "angle", expected key=value`)
}
