package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/leebenson/conform"
)

// LoadJSON loads the JSON payload from the request body to the
// destination variable.
// String fields are normalized with their "conform" tags. If the
// destination implements Validate(), it runs the validation as well.
func (s *Server) LoadJSON(r *http.Request, dst interface{}) *Message {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var mErr *http.MaxBytesError
		if errors.As(err, &mErr) {
			return &Message{
				Status:  http.StatusRequestEntityTooLarge,
				Message: "Payload too large",
			}
		}
		return &Message{
			Status:  400,
			Message: err.Error(),
		}
	}

	if err := conform.Strings(dst); err != nil {
		return &Message{
			Status:  400,
			Message: err.Error(),
		}
	}

	v, ok := dst.(validation.Validatable)
	if !ok {
		return nil
	}

	return s.Validate(v)
}

// Validate runs the validation on a given destination data and returns
// a formatted message with the encountered errors, if any.
func (s *Server) Validate(data interface{}) *Message {
	err := validation.Validate(data)
	if err == nil {
		return nil
	}

	verr, ok := err.(validation.Errors)
	if !ok {
		return &Message{
			Status:  400,
			Message: err.Error(),
		}
	}

	elist := []FieldError{}
	for k, v := range verr {
		elist = append(elist, FieldError{
			Location: k,
			Error:    v.Error(),
		})
	}
	sort.Slice(elist, func(i, j int) bool {
		return elist[i].Location < elist[j].Location
	})

	return &Message{
		Status:  400,
		Message: "Invalid input data",
		Errors:  elist,
	}
}
