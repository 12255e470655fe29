// Package journal keeps a local record of every dispatched command.
package journal

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lithammer/shortuuid/v3"
	log "github.com/sirupsen/logrus"

	"github.com/retouch/retouch/internal/db"
	"github.com/retouch/retouch/pkg/dispatch"
)

// TableName is the journal table.
const TableName = "journal"

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("not found")

// Params are the command parameters, stored as JSON.
type Params map[string]interface{}

// Scan loads a JSON value into Params.
func (p *Params) Scan(value interface{}) error {
	v, err := db.JSONBytes(value)
	if err != nil {
		return err
	}
	if len(v) == 0 {
		*p = Params{}
		return nil
	}
	return json.Unmarshal(v, p)
}

// Value encodes Params into a JSON value for storage.
func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	v, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// Entry is a journal record.
type Entry struct {
	ID       int       `db:"id" goqu:"skipinsert"`
	UID      string    `db:"uid"`
	Created  time.Time `db:"created"`
	Command  string    `db:"command"`
	Params   Params    `db:"params"`
	Kind     string    `db:"kind"`
	Status   int       `db:"status"`
	Undo     int       `db:"undo"`
	Redo     int       `db:"redo"`
	Width    int       `db:"width"`
	Height   int       `db:"height"`
	Duration int64     `db:"duration"` // milliseconds
	TraceID  string    `db:"trace_id"`
	Error    string    `db:"error"`
}

// Failed returns true when the command did not apply.
func (e *Entry) Failed() bool {
	return e.Kind != ""
}

// Elapsed returns the entry duration.
func (e *Entry) Elapsed() time.Duration {
	return time.Duration(e.Duration) * time.Millisecond
}

// Manager is a query helper for journal entries.
type Manager struct{}

// Entries is the default journal manager.
var Entries = Manager{}

// Query returns a prepared goqu SelectDataset that can be extended
// later.
func (m *Manager) Query() *goqu.SelectDataset {
	return db.Q().From(goqu.T(TableName).As("j")).Prepared(true)
}

// GetOne executes a query and returns the first result.
func (m *Manager) GetOne(expressions ...goqu.Expression) (*Entry, error) {
	var e Entry
	found, err := m.Query().Where(expressions...).ScanStruct(&e)

	switch {
	case err != nil:
		return nil, err
	case !found:
		return nil, ErrNotFound
	}

	return &e, nil
}

// Create inserts a new entry. It sets its UID and creation date when
// they are empty.
func (m *Manager) Create(e *Entry) error {
	if e.UID == "" {
		e.UID = shortuuid.New()
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	e.Created = e.Created.UTC()
	if e.Params == nil {
		e.Params = Params{}
	}

	id, err := db.InsertWithID(db.Q().Insert(goqu.T(TableName)).Rows(e).Prepared(true))
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// List returns the entries created at or after since, oldest first.
// A zero since returns everything. A limit > 0 keeps the most recent
// entries only. Filters, see ParseSearch, narrow the result.
func (m *Manager) List(since time.Time, limit int, filters ...goqu.Expression) ([]*Entry, error) {
	ds := m.Query().Order(goqu.C("id").Desc())
	if len(filters) > 0 {
		ds = ds.Where(filters...)
	}
	if !since.IsZero() {
		ds = ds.Where(goqu.C("created").Gte(since.UTC()))
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	res := []*Entry{}
	if err := ds.ScanStructs(&res); err != nil {
		return nil, err
	}

	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}

// Purge deletes the entries created before t and returns how many
// were removed.
func (m *Manager) Purge(t time.Time) (int64, error) {
	res, err := db.Q().Delete(goqu.T(TableName)).
		Where(goqu.C("created").Lt(t.UTC())).
		Prepared(true).
		Executor().Exec()
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Recorder stores dispatch outcomes in the journal.
type Recorder struct{}

// NewRecorder returns a Recorder. The database must be open.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record implements dispatch.Recorder.
func (r *Recorder) Record(_ context.Context, o dispatch.Outcome) error {
	e := FromOutcome(o)
	if err := Entries.Create(e); err != nil {
		log.WithError(err).WithField("command", o.Command).Error("cannot record command")
		return err
	}
	return nil
}

// FromOutcome converts a dispatch outcome to a journal entry.
func FromOutcome(o dispatch.Outcome) *Entry {
	e := &Entry{
		Created:  o.Started,
		Command:  string(o.Command),
		Params:   Params{},
		Status:   o.Status,
		Undo:     o.Undo,
		Redo:     o.Redo,
		Width:    o.Width,
		Height:   o.Height,
		Duration: o.Duration.Milliseconds(),
		TraceID:  o.TraceID,
	}
	for k, v := range o.Params {
		e.Params[k] = v
	}
	if o.Kind != dispatch.KindNone {
		e.Kind = o.Kind.String()
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}
