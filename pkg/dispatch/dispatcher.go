// Package dispatch sends editing commands to the image service and
// applies the confirmed results to the session store.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/retouch/retouch/pkg/catalog"
	"github.com/retouch/retouch/pkg/imgcodec"
	"github.com/retouch/retouch/pkg/session"
)

// DefaultBaseURL is the service location when none is configured.
const DefaultBaseURL = "http://127.0.0.1:8000/api/py"

// maxResponseSize bounds what we read from the service.
const maxResponseSize = 256 << 20

// Upload and Load are not catalog commands but are reported like
// them.
const (
	UploadCommand catalog.Name = "Upload"
	LoadCommand   catalog.Name = "Load"
)

// Phase is the dispatcher lifecycle phase.
type Phase int32

// Phases. Applied and Failed are outcomes, the dispatcher goes back
// to Idle right after them.
const (
	Idle Phase = iota
	Sending
)

func (p Phase) String() string {
	if p == Sending {
		return "sending"
	}
	return "idle"
}

// Outcome describes a finished dispatch.
type Outcome struct {
	Command  catalog.Name
	Params   catalog.Params
	Kind     Kind
	Status   int
	Undo     int
	Redo     int
	Width    int
	Height   int
	Started  time.Time
	Duration time.Duration
	TraceID  string
	Err      error
}

// Recorder receives every dispatch outcome.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// Options configures a Dispatcher.
type Options struct {
	BaseURL   string
	Client    *http.Client
	Displayer imgcodec.Displayer
	Recorder  Recorder
}

// Dispatcher turns commands into service requests. It sends at most
// one request at a time and is the only writer of its store.
type Dispatcher struct {
	baseURL   string
	client    *http.Client
	store     *session.Store
	displayer imgcodec.Displayer
	recorder  Recorder
	tracer    trace.Tracer

	sem   *semaphore.Weighted
	phase int32
}

// New returns a Dispatcher that updates the given store.
func New(store *session.Store, o Options) *Dispatcher {
	d := &Dispatcher{
		baseURL:   strings.TrimRight(o.BaseURL, "/"),
		client:    o.Client,
		store:     store,
		displayer: o.Displayer,
		recorder:  o.Recorder,
		tracer:    otel.Tracer("github.com/retouch/retouch/pkg/dispatch"),
		sem:       semaphore.NewWeighted(1),
	}
	if d.baseURL == "" {
		d.baseURL = DefaultBaseURL
	}
	if d.client == nil {
		d.client = NewClient(0)
	}
	if d.displayer == nil {
		d.displayer = imgcodec.NullDisplayer{}
	}
	return d
}

// Store returns the dispatcher's session store.
func (d *Dispatcher) Store() *session.Store {
	return d.store
}

// Phase returns the current lifecycle phase.
func (d *Dispatcher) Phase() Phase {
	return Phase(atomic.LoadInt32(&d.phase))
}

// Dispatch runs a catalog command. On success the store holds the
// state returned by the service. On failure the store is left as it
// was and the returned error is an *Error.
func (d *Dispatcher) Dispatch(ctx context.Context, name catalog.Name, params catalog.Params) error {
	o := &Outcome{Command: name, Params: params, Started: time.Now()}

	cmd, ok := catalog.Lookup(name)
	if !ok {
		return d.done(ctx, o, newError(UnknownCommand, name, fmt.Errorf(`"%s" is not a command`, name)))
	}

	body, err := cmd.Decode(params)
	if err != nil {
		return d.done(ctx, o, newError(InvalidParams, name, err))
	}

	cur := d.store.Current()
	if (name == catalog.Undo && !cur.CanUndo()) || (name == catalog.Redo && !cur.CanRedo()) {
		return d.done(ctx, o, newError(NotAvailable, name, errors.New("nothing to "+strings.ToLower(string(name)))))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return d.done(ctx, o, newError(InvalidParams, name, err))
	}

	if !d.sem.TryAcquire(1) {
		return d.done(ctx, o, newError(Busy, name, errors.New("a command is in progress")))
	}
	defer d.sem.Release(1)

	return d.send(ctx, o, cmd.Method, cmd.Path, payload, d.store.Generation())
}

// Upload starts a new session with the given PNG image. It waits for
// a running command to finish; that command's result is then
// discarded as Superseded. When the upload fails, the previous session
// stays current and the last result held back for it is applied.
func (d *Dispatcher) Upload(ctx context.Context, img []byte) error {
	o := &Outcome{
		Command: UploadCommand,
		Params:  catalog.Params{"size": len(img)},
		Started: time.Now(),
	}

	if _, err := imgcodec.InspectPNG(img); err != nil {
		return d.done(ctx, o, newError(InvalidParams, UploadCommand, err))
	}

	payload, err := json.Marshal(map[string]string{"image": imgcodec.Encode(img)})
	if err != nil {
		return d.done(ctx, o, newError(InvalidParams, UploadCommand, err))
	}

	gen := d.store.Invalidate()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.store.Restore(gen)
		return d.done(ctx, o, newError(NetworkFailure, UploadCommand, err))
	}
	defer d.sem.Release(1)

	err = d.send(ctx, o, http.MethodPost, "/upload", payload, gen)
	if err != nil && d.store.Restore(gen) {
		log.WithField("generation", gen).Debug("upload failed, session restored")
	}
	return err
}

// Load reads the session counters from the service. The current image,
// if any, is kept.
func (d *Dispatcher) Load(ctx context.Context) error {
	o := &Outcome{Command: LoadCommand, Started: time.Now()}

	if !d.sem.TryAcquire(1) {
		return d.done(ctx, o, newError(Busy, LoadCommand, errors.New("a command is in progress")))
	}
	defer d.sem.Release(1)

	d.setPhase(Sending)
	defer d.setPhase(Idle)

	ctx, span := d.startSpan(ctx, o)
	defer span.End()

	gen := d.store.Generation()
	st, ferr := d.fetchStates(ctx, o)
	if ferr != nil {
		return d.done(ctx, o, ferr)
	}
	st.Image = d.store.Current().Image

	if !d.store.ReplaceIf(gen, st) {
		return d.done(ctx, o, newError(Superseded, LoadCommand, errors.New("session changed")))
	}
	o.setState(st)
	return d.done(ctx, o, nil)
}

// send issues one request and applies its response. The caller holds
// the semaphore.
func (d *Dispatcher) send(ctx context.Context, o *Outcome, method, path string, payload []byte, gen uint64) error {
	d.setPhase(Sending)
	defer d.setPhase(Idle)

	ctx, span := d.startSpan(ctx, o)
	defer span.End()

	log.WithFields(log.Fields{
		"command": o.Command,
		"path":    path,
		"size":    humanize.Bytes(uint64(len(payload))),
	}).Debug("sending command")

	rb, derr := d.do(ctx, o, method, path, payload)
	if derr != nil {
		return d.done(ctx, o, derr)
	}

	var rsp response
	if err := json.Unmarshal(rb, &rsp); err != nil {
		return d.done(ctx, o, newError(DecodeFailure, o.Command, err))
	}
	if rsp.Image == nil {
		return d.done(ctx, o, newError(DecodeFailure, o.Command, errors.New("no image in response")))
	}

	img, err := imgcodec.Decode(*rsp.Image)
	if err != nil {
		return d.done(ctx, o, newError(DecodeFailure, o.Command, err))
	}

	var st session.State
	if rsp.States != nil {
		st, err = parseStates(rsp.States)
		if err != nil {
			return d.done(ctx, o, newError(DecodeFailure, o.Command, err))
		}
	} else {
		// Counters are not always embedded
		if st, derr = d.fetchStates(ctx, o); derr != nil {
			return d.done(ctx, o, derr)
		}
	}
	if st.Width < 0 || st.Height < 0 {
		return d.done(ctx, o, newError(DecodeFailure, o.Command,
			fmt.Errorf("invalid image size %dx%d", st.Width, st.Height)))
	}

	h, info, err := imgcodec.ToDisplayHandle(d.displayer, img)
	if err != nil {
		return d.done(ctx, o, newError(DecodeFailure, o.Command, err))
	}
	st.Image = h
	if st.Width == 0 || st.Height == 0 {
		st.Width, st.Height = info.Width, info.Height
	}

	// The store owns h from here on
	if !d.store.ReplaceIf(gen, st) {
		return d.done(ctx, o, newError(Superseded, o.Command, errors.New("a new session was started")))
	}

	o.setState(st)
	return d.done(ctx, o, nil)
}

// do performs the HTTP exchange and returns the response body.
func (d *Dispatcher) do(ctx context.Context, o *Outcome, method, path string, payload []byte) ([]byte, *Error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return nil, newError(NetworkFailure, o.Command, err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	rsp, err := d.client.Do(req)
	if err != nil {
		return nil, newError(NetworkFailure, o.Command, err)
	}
	defer rsp.Body.Close()

	o.Status = rsp.StatusCode
	rb, err := io.ReadAll(io.LimitReader(rsp.Body, maxResponseSize))
	if err != nil {
		return nil, newError(NetworkFailure, o.Command, err)
	}

	if rsp.StatusCode/100 != 2 {
		e := newError(ServerRejected, o.Command, nil)
		e.Status = rsp.StatusCode
		e.Message = errorMessage(rb)
		return nil, e
	}

	log.WithFields(log.Fields{
		"command": o.Command,
		"status":  rsp.StatusCode,
		"size":    humanize.Bytes(uint64(len(rb))),
	}).Debug("response received")

	return rb, nil
}

func (d *Dispatcher) fetchStates(ctx context.Context, o *Outcome) (session.State, *Error) {
	rb, derr := d.do(ctx, o, http.MethodGet, "/states", nil)
	if derr != nil {
		return session.State{}, derr
	}

	var rsp response
	if err := json.Unmarshal(rb, &rsp); err != nil {
		return session.State{}, newError(DecodeFailure, o.Command, err)
	}
	if rsp.States == nil {
		return session.State{}, newError(DecodeFailure, o.Command, errors.New("no states in response"))
	}

	st, err := parseStates(rsp.States)
	if err != nil {
		return session.State{}, newError(DecodeFailure, o.Command, err)
	}
	return st, nil
}

func (d *Dispatcher) setPhase(p Phase) {
	atomic.StoreInt32(&d.phase, int32(p))
}

func (d *Dispatcher) startSpan(ctx context.Context, o *Outcome) (context.Context, trace.Span) {
	ctx, span := d.tracer.Start(ctx, "dispatch "+string(o.Command),
		trace.WithAttributes(attribute.String("retouch.command", string(o.Command))),
	)
	if sc := span.SpanContext(); sc.IsValid() {
		o.TraceID = sc.TraceID().String()
	}
	return ctx, span
}

// done logs and records an outcome and returns err unchanged.
func (d *Dispatcher) done(ctx context.Context, o *Outcome, err *Error) error {
	o.Duration = time.Since(o.Started)

	fields := log.Fields{
		"command":  o.Command,
		"duration": o.Duration,
	}
	if o.Status != 0 {
		fields["status"] = o.Status
	}

	span := trace.SpanFromContext(ctx)
	if err != nil {
		o.Kind = err.Kind
		o.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Kind.String())
		log.WithFields(fields).WithError(err).Warn("command failed")
	} else {
		fields["undo"] = o.Undo
		fields["redo"] = o.Redo
		fields["size"] = fmt.Sprintf("%dx%d", o.Width, o.Height)
		log.WithFields(fields).Info("command applied")
	}

	if d.recorder != nil {
		if rerr := d.recorder.Record(context.WithoutCancel(ctx), *o); rerr != nil {
			log.WithError(rerr).Warn("cannot record outcome")
		}
	}

	if err == nil {
		return nil
	}
	return err
}

func (o *Outcome) setState(st session.State) {
	o.Undo, o.Redo = st.Undo, st.Redo
	o.Width, o.Height = st.Width, st.Height
}

type response struct {
	Image  *string                `json:"image"`
	States map[string]interface{} `json:"states"`
}

func parseStates(m map[string]interface{}) (st session.State, err error) {
	get := func(k string, required bool) (int, error) {
		v, ok := m[k]
		if !ok {
			if required {
				return 0, fmt.Errorf("missing %s counter", k)
			}
			return 0, nil
		}
		n, ok := toCounter(v)
		if !ok {
			return 0, fmt.Errorf("invalid %s counter: %v", k, v)
		}
		return n, nil
	}

	if st.Undo, err = get("undo", true); err != nil {
		return
	}
	if st.Redo, err = get("redo", true); err != nil {
		return
	}
	if st.Width, err = get("width", false); err != nil {
		return
	}
	if st.Height, err = get("height", false); err != nil {
		return
	}
	if st.Undo < 0 || st.Redo < 0 {
		return st, fmt.Errorf("negative counters (undo=%d, redo=%d)", st.Undo, st.Redo)
	}

	for k, v := range m {
		switch k {
		case "undo", "redo", "width", "height":
			continue
		}
		if n, ok := toCounter(v); ok {
			if st.Extra == nil {
				st.Extra = map[string]int{}
			}
			st.Extra[k] = n
		}
	}

	return st, nil
}

// errorMessage extracts a message from an error response. It knows
// {"message": "..."} and {"detail": "..."} or {"detail": {"message": "..."}}.
func errorMessage(b []byte) string {
	var m struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return strings.TrimSpace(string(b))
	}
	if m.Message != "" {
		return m.Message
	}

	var s string
	if json.Unmarshal(m.Detail, &s) == nil {
		return strings.TrimSpace(s)
	}
	var dm struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(m.Detail, &dm) == nil {
		return dm.Message
	}
	return ""
}

// toCounter converts a JSON number to an int. Fractions and values
// outside of the int32 range are rejected.
func toCounter(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
