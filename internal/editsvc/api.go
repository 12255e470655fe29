package editsvc

import (
	"net/http"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/lithammer/shortuuid/v3"
	log "github.com/sirupsen/logrus"

	"github.com/retouch/retouch/internal/server"
	"github.com/retouch/retouch/pkg/catalog"
	"github.com/retouch/retouch/pkg/imgcodec"
)

// Options configures the editing API.
type Options struct {
	MaxHistory int
	MaxUpload  int64 // bytes, request body limit
}

// editAPI is the editing service router. It holds the single
// session.
type editAPI struct {
	chi.Router
	srv *server.Server

	opts    Options
	mu      sync.Mutex
	history *History
	session string
}

type uploadPayload struct {
	Image string `json:"image"`
}

type imageResponse struct {
	Image  string `json:"image"`
	States States `json:"states"`
}

type statesResponse struct {
	Session string `json:"session,omitempty"`
	States  States `json:"states"`
}

type infoResponse struct {
	Session    string         `json:"session,omitempty"`
	States     States         `json:"states"`
	MaxHistory int            `json:"max_history"`
	MaxUpload  int64          `json:"max_upload"`
	Commands   []catalog.Name `json:"commands"`
	System     server.SysInfo `json:"system"`
}

// Routes returns the editing API routes.
func Routes(s *server.Server, o Options) http.Handler {
	return newEditAPI(s, o)
}

func newEditAPI(s *server.Server, o Options) *editAPI {
	r := chi.NewRouter()
	if o.MaxHistory <= 0 {
		o.MaxHistory = DefaultMaxHistory
	}
	api := &editAPI{
		Router:  r,
		srv:     s,
		opts:    o,
		history: NewHistory(o.MaxHistory),
	}

	s.MapErrors(http.StatusBadRequest,
		ErrNoImage, ErrNothingToUndo, ErrNothingToRedo,
		ErrEmptyCrop, ErrInvalidSize, imgcodec.ErrTooBig,
		imgcodec.ErrInvalidPayload, imgcodec.ErrNotPNG,
	)

	r.Use(server.MaxBodySize(o.MaxUpload), s.WithJSON)

	r.Post("/upload", api.upload)
	r.Get("/states", api.states)
	r.Get("/info", api.info)
	r.Post("/undo", api.undo)
	r.Post("/redo", api.redo)

	for _, c := range catalog.All() {
		if catalog.IsHistory(c.Name) {
			continue
		}
		r.Post(c.Path, api.command(c))
	}

	return api
}

// upload starts a new session with the given image.
func (api *editAPI) upload(w http.ResponseWriter, r *http.Request) {
	payload := uploadPayload{}
	if msg := api.srv.LoadJSON(r, &payload); msg != nil {
		api.srv.Message(w, r, msg)
		return
	}

	b, err := imgcodec.Decode(payload.Image)
	if err != nil {
		api.srv.Fail(w, r, err)
		return
	}

	c, err := NewCanvas(b)
	if err != nil {
		api.srv.TextMessage(w, r, http.StatusBadRequest, "Invalid image: "+err.Error())
		return
	}

	api.mu.Lock()
	defer api.mu.Unlock()

	api.history.Reset(c.Image())
	api.session = shortuuid.New()

	api.srv.Log(r).WithFields(log.Fields{
		"session": api.session,
		"size":    humanize.Bytes(uint64(len(b))),
		"width":   c.Width(),
		"height":  c.Height(),
	}).Info("new session")

	api.sendImage(w, r)
}

// states sends the session counters.
func (api *editAPI) states(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	api.srv.Render(w, r, http.StatusOK, statesResponse{
		Session: api.session,
		States:  api.history.States(),
	})
}

// info describes the session and the service limits.
func (api *editAPI) info(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	res := infoResponse{
		Session:    api.session,
		States:     api.history.States(),
		MaxHistory: api.opts.MaxHistory,
		MaxUpload:  api.opts.MaxUpload,
		Commands:   []catalog.Name{},
	}
	api.mu.Unlock()

	for _, c := range catalog.All() {
		res.Commands = append(res.Commands, c.Name)
	}
	res.System = api.srv.SysInfo()

	api.srv.Render(w, r, http.StatusOK, res)
}

func (api *editAPI) undo(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	if err := api.history.Undo(); err != nil {
		api.srv.Fail(w, r, err)
		return
	}
	api.sendImage(w, r)
}

func (api *editAPI) redo(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()

	if err := api.history.Redo(); err != nil {
		api.srv.Fail(w, r, err)
		return
	}
	api.sendImage(w, r)
}

// command returns the handler applying a transformation command.
func (api *editAPI) command(c *catalog.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// missing fields keep their default value
		body, err := c.Decode(nil)
		if err != nil {
			api.srv.Error(w, r, err)
			return
		}
		if r.ContentLength != 0 {
			if msg := api.srv.LoadJSON(r, body); msg != nil {
				api.srv.Message(w, r, msg)
				return
			}
		} else if msg := api.srv.Validate(body); msg != nil {
			api.srv.Message(w, r, msg)
			return
		}

		filter, err := FilterFor(c.Name, body)
		if err != nil {
			api.srv.Error(w, r, err)
			return
		}

		api.mu.Lock()
		defer api.mu.Unlock()

		m, err := api.history.Current()
		if err != nil {
			api.srv.Fail(w, r, err)
			return
		}

		canvas := CanvasOf(m)
		if err := canvas.Pipeline(filter); err != nil {
			api.srv.Fail(w, r, err)
			return
		}

		if err := api.history.Apply(canvas.Image()); err != nil {
			api.srv.Fail(w, r, err)
			return
		}

		api.srv.Log(r).WithFields(log.Fields{
			"command": c.Name,
			"session": api.session,
		}).Debug("command applied")

		api.sendImage(w, r)
	}
}

// sendImage renders the current image and counters. The caller holds
// the lock.
func (api *editAPI) sendImage(w http.ResponseWriter, r *http.Request) {
	m, err := api.history.Current()
	if err != nil {
		api.srv.Fail(w, r, err)
		return
	}

	b, err := imgcodec.EncodePNG(m)
	if err != nil {
		api.srv.Error(w, r, err)
		return
	}

	api.srv.Render(w, r, http.StatusOK, imageResponse{
		Image:  imgcodec.Encode(b),
		States: api.history.States(),
	})
}
