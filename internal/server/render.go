package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Message is the body of a rejected request. Clients read Message
// and, for invalid bodies, the per field Errors.
type Message struct {
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Success bool         `json:"success"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation error on one field of a request body.
type FieldError struct {
	Location string `json:"location"`
	Error    string `json:"error"`
}

type mappedError struct {
	err    error
	status int
}

// MapErrors registers errors caused by clients. Fail sends them with
// the given status and their own text. It must be called before the
// server starts.
func (s *Server) MapErrors(status int, errs ...error) {
	for _, err := range errs {
		s.errMap = append(s.errMap, mappedError{err, status})
	}
}

// Render sends value as JSON. Responses describe the live session and
// must not be cached.
func (s *Server) Render(w http.ResponseWriter, r *http.Request, status int, value interface{}) {
	b := &bytes.Buffer{}
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		s.Log(r).WithError(err).Error("cannot encode response")
		http.Error(w, http.StatusText(500), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(b.Bytes()) //nolint:errcheck
}

// Message sends a message response. Rejections are part of a normal
// session (nothing to undo, no image yet) and only logged at debug
// level.
func (s *Server) Message(w http.ResponseWriter, r *http.Request, message *Message) {
	message.Success = message.Status < 400
	s.Render(w, r, message.Status, message)

	if message.Status >= 400 {
		s.Log(r).WithFields(log.Fields{
			"status": message.Status,
			"errors": len(message.Errors),
		}).Debug(message.Message)
	}
}

// TextMessage sends a message response with a status and a message.
func (s *Server) TextMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.Message(w, r, &Message{
		Status:  status,
		Message: msg,
	})
}

// Fail sends err as a message when it was registered with MapErrors,
// and as an internal error otherwise.
func (s *Server) Fail(w http.ResponseWriter, r *http.Request, err error) {
	for _, x := range s.errMap {
		if errors.Is(err, x.err) {
			s.TextMessage(w, r, x.status, err.Error())
			return
		}
	}
	s.Error(w, r, err)
}

// Error logs err and sends an HTTP 500. The error text stays in the
// logs.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	s.Log(r).WithError(err).Error("server error")
	s.TextMessage(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
