package dispatch

import (
	"errors"
	"fmt"

	"github.com/retouch/retouch/pkg/catalog"
)

// Kind is a dispatch failure category.
type Kind int

// Failure kinds.
const (
	KindNone Kind = iota
	UnknownCommand
	NotAvailable
	Busy
	NetworkFailure
	ServerRejected
	DecodeFailure
	InvalidParams
	Superseded
)

var kindNames = map[Kind]string{
	KindNone:       "",
	UnknownCommand: "UnknownCommand",
	NotAvailable:   "NotAvailable",
	Busy:           "Busy",
	NetworkFailure: "NetworkFailure",
	ServerRejected: "ServerRejected",
	DecodeFailure:  "DecodeFailure",
	InvalidParams:  "InvalidParams",
	Superseded:     "Superseded",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Sentinel errors, one per kind. Use errors.Is(err, ErrBusy) to
// check the kind of a dispatch error.
var (
	ErrUnknownCommand = &Error{Kind: UnknownCommand}
	ErrNotAvailable   = &Error{Kind: NotAvailable}
	ErrBusy           = &Error{Kind: Busy}
	ErrNetworkFailure = &Error{Kind: NetworkFailure}
	ErrServerRejected = &Error{Kind: ServerRejected}
	ErrDecodeFailure  = &Error{Kind: DecodeFailure}
	ErrInvalidParams  = &Error{Kind: InvalidParams}
	ErrSuperseded     = &Error{Kind: Superseded}
)

// Error is a dispatch failure. A failed dispatch never changes the
// session store.
type Error struct {
	Kind    Kind
	Command catalog.Name
	Status  int    // HTTP status, for ServerRejected
	Message string // server message, for ServerRejected
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Command != "" {
		msg = fmt.Sprintf("%s %s", e.Command, msg)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Status)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any dispatch error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a dispatch error, KindNone when err is
// nil or not a dispatch error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

func newError(kind Kind, name catalog.Name, err error) *Error {
	return &Error{Kind: kind, Command: name, Err: err}
}
