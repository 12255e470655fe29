// Package session holds the client copy of the editing session: the
// current image handle and the history counters, as last confirmed
// by the service.
package session

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/retouch/retouch/pkg/imgcodec"
)

// State is a snapshot of the session.
type State struct {
	Image  imgcodec.Handle
	Undo   int
	Redo   int
	Width  int
	Height int

	// Extra carries any other counter the service reports.
	Extra map[string]int
}

// CanUndo returns true when the service has something to undo.
func (s State) CanUndo() bool {
	return s.Undo > 0
}

// CanRedo returns true when the service has something to redo.
func (s State) CanRedo() bool {
	return s.Redo > 0
}

// HasImage returns true when the state carries an image.
func (s State) HasImage() bool {
	return s.Image != nil
}

func (s State) clone() State {
	if s.Extra != nil {
		extra := make(map[string]int, len(s.Extra))
		for k, v := range s.Extra {
			extra[k] = v
		}
		s.Extra = extra
	}
	return s
}

// Listener receives every new state.
type Listener func(State)

// Store is the single session record. Every mutator swaps the whole
// record at once.
type Store struct {
	mu    sync.RWMutex
	state State

	// live generations, the current one last. Older entries belong to
	// sessions that a pending upload may still fall back to.
	gens    []uint64
	lastGen uint64

	// newest state refused for a live but not current generation
	held    *State
	heldGen uint64

	subMu  sync.Mutex
	subs   map[int]Listener
	nextID int

	// serializes notifications so listeners see states in order
	notifyMu sync.Mutex
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		gens: []uint64{0},
		subs: make(map[int]Listener),
	}
}

// Current returns a copy of the current state.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Generation returns the session generation. It changes every time
// a new session is started (see Invalidate).
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current()
}

func (s *Store) current() uint64 {
	return s.gens[len(s.gens)-1]
}

func (s *Store) live(gen uint64) bool {
	for _, g := range s.gens {
		if g == gen {
			return true
		}
	}
	return false
}

// Invalidate starts a new session generation and returns it. Until
// the new session is confirmed by ReplaceIf or abandoned with Restore,
// states built for the previous generations are held back.
func (s *Store) Invalidate() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastGen++
	s.gens = append(s.gens, s.lastGen)
	return s.lastGen
}

// Restore abandons gen, a generation returned by Invalidate whose
// session could not be started. The previous generation is current
// again and the state last held back for it, if any, is applied: it
// is what the service produced last. Restore returns false when gen
// is not pending.
func (s *Store) Restore(gen uint64) bool {
	s.mu.Lock()
	i := len(s.gens) - 1
	for i > 0 && s.gens[i] != gen {
		i--
	}
	if i == 0 {
		s.mu.Unlock()
		return false
	}
	s.gens = append(s.gens[:i], s.gens[i+1:]...)

	if s.held == nil || s.heldGen != s.current() {
		s.mu.Unlock()
		return true
	}
	st := *s.held
	s.held = nil
	old := s.swap(st)
	s.mu.Unlock()

	s.after(old, st)
	return true
}

// Replace sets a new state and makes the current generation the only
// live one. The previous image handle is released before listeners
// are notified.
func (s *Store) Replace(st State) {
	s.mu.Lock()
	old := s.swap(st)
	stale := s.confirm(old)
	s.mu.Unlock()

	release(stale)
	s.after(old, st)
}

// ReplaceIf sets a new state only if gen is the current generation.
// Otherwise it returns false and leaves the current state untouched;
// a state for a generation that is still live is held back for
// Restore. The store owns st.Image in every case.
func (s *Store) ReplaceIf(gen uint64, st State) bool {
	s.mu.Lock()
	if gen != s.current() {
		stale := s.hold(gen, st)
		s.mu.Unlock()

		release(stale)
		return false
	}
	old := s.swap(st)
	stale := s.confirm(old)
	s.mu.Unlock()

	release(stale)
	s.after(old, st)
	return true
}

func (s *Store) swap(st State) State {
	old := s.state
	s.state = st.clone()
	return old
}

// confirm drops the older generations and the held state. It returns
// the held image when neither the new nor the replaced state uses it.
func (s *Store) confirm(old State) imgcodec.Handle {
	s.gens = []uint64{s.current()}
	if s.held == nil {
		return nil
	}
	h := s.held.Image
	s.held = nil
	if h == s.state.Image || h == old.Image {
		return nil
	}
	return h
}

// hold keeps st when gen is live and returns the image that is not
// needed anymore, if any.
func (s *Store) hold(gen uint64, st State) imgcodec.Handle {
	if !s.live(gen) {
		if st.Image == s.state.Image {
			return nil
		}
		return st.Image
	}

	var stale imgcodec.Handle
	if s.held != nil && s.held.Image != st.Image && s.held.Image != s.state.Image {
		stale = s.held.Image
	}
	c := st.clone()
	s.held, s.heldGen = &c, gen
	return stale
}

func release(h imgcodec.Handle) {
	if h == nil {
		return
	}
	if err := h.Release(); err != nil {
		log.WithError(err).WithField("handle", h.ID()).Warn("cannot release image")
	}
}

func (s *Store) after(old, st State) {
	if old.Image != st.Image {
		release(old.Image)
	}
	s.notify(st.clone())
}

// Subscribe registers a listener called after each replacement. The
// returned function removes it.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(st State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

// Close releases the current and held image handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held != nil {
		if h := s.held.Image; h != nil && h != s.state.Image {
			release(h)
		}
		s.held = nil
	}

	if s.state.Image == nil {
		return nil
	}
	err := s.state.Image.Release()
	s.state.Image = nil
	return err
}
