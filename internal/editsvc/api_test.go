package editsvc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retouch/retouch/internal/editsvc"
	"github.com/retouch/retouch/internal/server"
	"github.com/retouch/retouch/pkg/catalog"
	"github.com/retouch/retouch/pkg/dispatch"
	"github.com/retouch/retouch/pkg/imgcodec"
	"github.com/retouch/retouch/pkg/session"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.NRGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	b, err := imgcodec.EncodePNG(m)
	require.NoError(t, err)
	return b
}

func newService() *server.Server {
	s := server.New("/api/py")
	s.AddRoute("/", editsvc.Routes(s, editsvc.Options{MaxUpload: 10 << 20}))
	return s
}

type apiResult struct {
	Status  int
	Message string          `json:"message"`
	Success *bool           `json:"success"`
	Image   string          `json:"image"`
	Session string          `json:"session"`
	States  editsvc.States  `json:"states"`
	Errors  json.RawMessage `json:"errors"`
}

func call(t *testing.T, s *server.Server, method, path string, body interface{}) apiResult {
	t.Helper()
	var rb *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rb = bytes.NewReader(b)
	} else {
		rb = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, "/api/py"+path, rb)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	res := apiResult{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	res.Status = w.Code
	return res
}

func TestAPI(t *testing.T) {
	s := newService()

	t.Run("empty session", func(t *testing.T) {
		res := call(t, s, "GET", "/states", nil)
		assert.Equal(t, 200, res.Status)
		assert.Equal(t, editsvc.States{}, res.States)

		res = call(t, s, "POST", "/rotate", map[string]int{"angle": 90})
		assert.Equal(t, 400, res.Status)
		assert.Equal(t, "No image stored in backend", res.Message)
		assert.False(t, *res.Success)

		res = call(t, s, "POST", "/undo", nil)
		assert.Equal(t, 400, res.Status)
		assert.Equal(t, "No image stored in backend", res.Message)
	})

	t.Run("upload", func(t *testing.T) {
		res := call(t, s, "POST", "/upload", map[string]string{"image": "abc"})
		assert.Equal(t, 400, res.Status)
		assert.True(t, strings.HasPrefix(res.Message, imgcodec.ErrInvalidPayload.Error()), res.Message)

		res = call(t, s, "POST", "/upload", map[string]string{
			"image": "data:image/png;base64," + imgcodec.Encode(testPNG(t, 80, 60)),
		})
		require.Equal(t, 200, res.Status)
		assert.Equal(t, editsvc.States{0, 0, 80, 60}, res.States)

		b, err := imgcodec.Decode(res.Image)
		require.NoError(t, err)
		info, err := imgcodec.InspectPNG(b)
		require.NoError(t, err)
		assert.Equal(t, imgcodec.Info{Format: "png", Width: 80, Height: 60}, info)

		res = call(t, s, "GET", "/states", nil)
		assert.NotEmpty(t, res.Session)
	})

	t.Run("commands", func(t *testing.T) {
		res := call(t, s, "POST", "/undo", nil)
		assert.Equal(t, 400, res.Status)
		assert.Equal(t, "Nothing to undo", res.Message)

		res = call(t, s, "POST", "/rotate", map[string]int{"angle": 90})
		require.Equal(t, 200, res.Status)
		assert.Equal(t, editsvc.States{1, 0, 60, 80}, res.States)

		// defaults apply on an empty body
		res = call(t, s, "POST", "/rotate", nil)
		require.Equal(t, 200, res.Status)
		assert.Equal(t, editsvc.States{2, 0, 80, 60}, res.States)

		res = call(t, s, "POST", "/resize", map[string]interface{}{"width": 40, "aspectRatio": true})
		require.Equal(t, 200, res.Status)
		assert.Equal(t, editsvc.States{3, 0, 40, 30}, res.States)

		res = call(t, s, "POST", "/whitebalance", map[string]string{"mode": " WHITE "})
		require.Equal(t, 200, res.Status)
		assert.Equal(t, 4, res.States.Undo)

		res = call(t, s, "POST", "/undo", nil)
		require.Equal(t, 200, res.Status)
		assert.Equal(t, editsvc.States{3, 1, 40, 30}, res.States)

		res = call(t, s, "POST", "/redo", nil)
		require.Equal(t, 200, res.Status)
		assert.Equal(t, editsvc.States{4, 0, 40, 30}, res.States)

		res = call(t, s, "POST", "/redo", nil)
		assert.Equal(t, 400, res.Status)
		assert.Equal(t, "Nothing to redo", res.Message)
	})

	t.Run("invalid params", func(t *testing.T) {
		res := call(t, s, "POST", "/blur", map[string]int{"half_width": 500})
		assert.Equal(t, 400, res.Status)
		assert.Equal(t, "Invalid input data", res.Message)
		assert.Contains(t, string(res.Errors), "half_width")

		res = call(t, s, "POST", "/crop", map[string]int{"x": 1000, "y": 1000, "width": 10, "height": 10})
		assert.Equal(t, 400, res.Status)
		assert.Equal(t, editsvc.ErrEmptyCrop.Error(), res.Message)

		res = call(t, s, "POST", "/filter", map[string]string{"filter": "noir"})
		assert.Equal(t, 400, res.Status)

		res = call(t, s, "POST", "/resize", map[string]interface{}{"width": 4000000000, "height": 4000000000})
		assert.Equal(t, 400, res.Status)
		assert.Equal(t, "Invalid input data", res.Message)
		assert.Contains(t, string(res.Errors), "width")

		// within bounds but too many pixels
		res = call(t, s, "POST", "/resize", map[string]interface{}{"width": 100000, "height": 100000})
		assert.Equal(t, 400, res.Status)
		assert.Equal(t, imgcodec.ErrTooBig.Error(), res.Message)
	})

	t.Run("not json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/py/grayscale", strings.NewReader("x"))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		s.Router.ServeHTTP(w, req)
		assert.Equal(t, 415, w.Code)
	})
}

func TestInfo(t *testing.T) {
	s := server.New("/api/py")
	s.AddRoute("/", editsvc.Routes(s, editsvc.Options{MaxUpload: 1 << 20}))

	req := httptest.NewRequest("GET", "/api/py/info", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var res struct {
		Session    string         `json:"session"`
		States     editsvc.States `json:"states"`
		MaxHistory int            `json:"max_history"`
		MaxUpload  int64          `json:"max_upload"`
		Commands   []string       `json:"commands"`
		System     server.SysInfo `json:"system"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Empty(t, res.Session)
	assert.Equal(t, editsvc.DefaultMaxHistory, res.MaxHistory)
	assert.Equal(t, int64(1<<20), res.MaxUpload)
	assert.Contains(t, res.Commands, "Rotate")
	assert.Len(t, res.Commands, len(catalog.All()))
	assert.NotEmpty(t, res.System.GoVersion)
	assert.Positive(t, res.System.Goroutines)

	up := call(t, s, "POST", "/upload", map[string]string{"image": imgcodec.Encode(testPNG(t, 8, 6))})
	require.Equal(t, 200, up.Status)

	w = httptest.NewRecorder()
	s.Router.ServeHTTP(w, httptest.NewRequest("GET", "/api/py/info", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Session)
	assert.Equal(t, editsvc.States{0, 0, 8, 6}, res.States)
}

func TestUploadLimit(t *testing.T) {
	s := server.New("/api/py")
	s.AddRoute("/", editsvc.Routes(s, editsvc.Options{MaxUpload: 100}))

	res := call(t, s, "POST", "/upload", map[string]string{"image": imgcodec.Encode(testPNG(t, 80, 60))})
	assert.Equal(t, 413, res.Status)
	assert.Equal(t, "Payload too large", res.Message)
}

// TestDispatcher runs the client dispatcher against a live service.
func TestDispatcher(t *testing.T) {
	ts := httptest.NewServer(newService().Router)
	defer ts.Close()

	store := session.NewStore()
	defer store.Close() //nolint:errcheck

	d := dispatch.New(store, dispatch.Options{
		BaseURL:   ts.URL + "/api/py",
		Client:    dispatch.NewClient(0),
		Displayer: imgcodec.NullDisplayer{},
	})
	ctx := context.Background()

	require.NoError(t, d.Load(ctx))
	assert.False(t, store.Current().HasImage())

	err := d.Dispatch(ctx, catalog.Grayscale, nil)
	assert.Equal(t, dispatch.ServerRejected, dispatch.KindOf(err))
	assert.ErrorContains(t, err, "No image stored in backend")

	require.NoError(t, d.Upload(ctx, testPNG(t, 800, 600)))
	st := store.Current()
	assert.Equal(t, []int{0, 0, 800, 600}, []int{st.Undo, st.Redo, st.Width, st.Height})
	assert.Equal(t, "none:800x600", st.Image.ID())

	require.NoError(t, d.Dispatch(ctx, catalog.Rotate, catalog.Params{"angle": 90}))
	st = store.Current()
	assert.Equal(t, []int{1, 0, 600, 800}, []int{st.Undo, st.Redo, st.Width, st.Height})

	require.NoError(t, d.Dispatch(ctx, catalog.Resize, catalog.Params{"width": "300"}))
	st = store.Current()
	assert.Equal(t, []int{2, 0, 300, 400}, []int{st.Undo, st.Redo, st.Width, st.Height})

	require.NoError(t, d.Dispatch(ctx, catalog.Undo, nil))
	require.NoError(t, d.Dispatch(ctx, catalog.Undo, nil))
	st = store.Current()
	assert.Equal(t, []int{0, 2, 800, 600}, []int{st.Undo, st.Redo, st.Width, st.Height})

	err = d.Dispatch(ctx, catalog.Undo, nil)
	assert.Equal(t, dispatch.NotAvailable, dispatch.KindOf(err))

	require.NoError(t, d.Dispatch(ctx, catalog.Redo, nil))
	st = store.Current()
	assert.Equal(t, []int{1, 1, 600, 800}, []int{st.Undo, st.Redo, st.Width, st.Height})

	err = d.Dispatch(ctx, catalog.Blur, catalog.Params{"half_width": "x"})
	assert.Equal(t, dispatch.InvalidParams, dispatch.KindOf(err))

	// a fresh client reads the counters back
	other := session.NewStore()
	defer other.Close() //nolint:errcheck
	require.NoError(t, dispatch.New(other, dispatch.Options{BaseURL: ts.URL + "/api/py"}).Load(ctx))
	assert.Equal(t, 1, other.Current().Undo)
	assert.Equal(t, 1, other.Current().Redo)
}
