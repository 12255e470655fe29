package journal_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retouch/retouch/internal/db"
	"github.com/retouch/retouch/internal/journal"
	"github.com/retouch/retouch/pkg/catalog"
	"github.com/retouch/retouch/pkg/dispatch"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "retouch-journal")
	if err != nil {
		panic(err)
	}

	code := func() int {
		defer os.RemoveAll(dir) //nolint:errcheck
		if err := db.Open("sqlite3:" + filepath.Join(dir, "journal.sqlite3")); err != nil {
			panic(err)
		}
		defer db.Close() //nolint:errcheck
		if err := db.Init(); err != nil {
			panic(err)
		}
		return m.Run()
	}()
	os.Exit(code)
}

func resetJournal(t *testing.T) {
	t.Helper()
	_, err := db.Q().Delete(goqu.T(journal.TableName)).Executor().Exec()
	require.NoError(t, err)
}

func TestRecorder(t *testing.T) {
	resetJournal(t)
	r := journal.NewRecorder()
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, r.Record(context.Background(), dispatch.Outcome{
		Command:  catalog.Rotate,
		Params:   catalog.Params{"angle": 90},
		Status:   200,
		Undo:     1,
		Width:    600,
		Height:   800,
		Started:  started,
		Duration: 1500 * time.Millisecond,
		TraceID:  "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, r.Record(context.Background(), dispatch.Outcome{
		Command: catalog.Undo,
		Kind:    dispatch.NotAvailable,
		Started: started.Add(time.Minute),
		Err:     errors.New("nothing to undo"),
	}))

	entries, err := journal.Entries.List(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	e := entries[0]
	assert.NotEmpty(t, e.UID)
	assert.Equal(t, "Rotate", e.Command)
	assert.Equal(t, journal.Params{"angle": float64(90)}, e.Params)
	assert.Equal(t, []int{200, 1, 0, 600, 800}, []int{e.Status, e.Undo, e.Redo, e.Width, e.Height})
	assert.Equal(t, 1500*time.Millisecond, e.Elapsed())
	assert.True(t, started.Equal(e.Created))
	assert.False(t, e.Failed())

	e = entries[1]
	assert.True(t, e.Failed())
	assert.Equal(t, "NotAvailable", e.Kind)
	assert.Equal(t, "nothing to undo", e.Error)
	assert.Equal(t, journal.Params{}, e.Params)

	one, err := journal.Entries.GetOne(goqu.C("uid").Eq(e.UID))
	require.NoError(t, err)
	assert.Equal(t, e.ID, one.ID)

	_, err = journal.Entries.GetOne(goqu.C("uid").Eq("nope"))
	assert.Equal(t, journal.ErrNotFound, err)
}

func TestList(t *testing.T) {
	resetJournal(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, journal.Entries.Create(&journal.Entry{
			Command: string(catalog.Blur),
			Created: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	entries, err := journal.Entries.List(base.Add(2*time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = journal.Entries.List(time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Created.Before(entries[1].Created))
	assert.True(t, base.Add(4*time.Hour).Equal(entries[1].Created))

	n, err := journal.Entries.Purge(base.Add(3 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	entries, err = journal.Entries.List(time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		in       string
		expected time.Time
	}{
		{"", time.Time{}},
		{"2h", now.Add(-2 * time.Hour)},
		{"-30m", now.Add(-30 * time.Minute)},
		{"2024-02-01", time.Date(2024, 2, 1, 0, 0, 0, 0, time.Local)},
	}
	for _, x := range tests {
		res, err := journal.ParseSince(x.in, now)
		require.NoError(t, err, x.in)
		assert.True(t, x.expected.Equal(res), "%s: %s", x.in, res)
	}

	_, err := journal.ParseSince("yesterday-ish", now)
	assert.EqualError(t, err, `invalid date or duration "yesterday-ish"`)
}

func TestFormatter(t *testing.T) {
	entries := []*journal.Entry{
		{Command: "Rotate", Undo: 1, Width: 600, Height: 800, Duration: 20},
		{Command: "Undo", Kind: "NotAvailable", Error: "nothing to undo"},
	}

	f, err := journal.NewFormatter(`{{ .Command | lower }}{{ if .Failed }} {{ .Kind }}{{ else }} {{ .Width }}x{{ .Height }}{{ end }}`)
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	require.NoError(t, f.Write(buf, entries))
	assert.Equal(t, "rotate 600x800\nundo NotAvailable\n", buf.String())

	f, err = journal.NewFormatter("")
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, f.Write(buf, entries))
	assert.Contains(t, buf.String(), "undo=1 redo=0 600x800 (20ms)")
	assert.Contains(t, buf.String(), "NotAvailable: nothing to undo")

	_, err = journal.NewFormatter("{{ .Nope ")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	resetJournal(t)
	for _, e := range []*journal.Entry{
		{Command: "Rotate", Status: 200, TraceID: "4bf92f3577b34da6a3ce929d0e0e4736"},
		{Command: "Blur", Kind: "ServerRejected", Status: 400, Error: "Blur ServerRejected (400): Invalid input data"},
		{Command: "Blur", Status: 200},
		{Command: "Undo", Kind: "NotAvailable", Error: "Undo NotAvailable: nothing to undo"},
		{Command: "Upload", Kind: "Superseded", Error: "Upload Superseded: a new session was started"},
	} {
		require.NoError(t, journal.Entries.Create(e))
	}

	tests := []struct {
		query    string
		expected []string
	}{
		{"", []string{"Rotate", "Blur", "Blur", "Undo", "Upload"}},
		{"blur", []string{"Blur", "Blur"}},
		{"command:blur", []string{"Blur", "Blur"}},
		{"command:blur is:ok", []string{"Blur"}},
		{"is:failed", []string{"Blur", "Undo", "Upload"}},
		{"-is:failed", []string{"Rotate", "Blur"}},
		{"kind:notavailable", []string{"Undo"}},
		{"-kind:Superseded is:failed", []string{"Blur", "Undo"}},
		{`"nothing to"`, []string{"Undo"}},
		{`error:"invalid input"`, []string{"Blur"}},
		{"-blur -undo", []string{"Rotate", "Upload"}},
		{"status:400", []string{"Blur"}},
		{"-status:200", []string{"Blur", "Undo", "Upload"}},
		{"trace:4bf92f", []string{"Rotate"}},
		{"command:u%", []string{"Undo", "Upload"}},
	}

	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			filters, err := journal.ParseSearch(test.query)
			require.NoError(t, err)

			entries, err := journal.Entries.List(time.Time{}, 0, filters...)
			require.NoError(t, err)

			res := []string{}
			for _, e := range entries {
				res = append(res, e.Command)
			}
			assert.Equal(t, test.expected, res)
		})
	}

	for query, msg := range map[string]string{
		"status:abc":      `invalid status "abc"`,
		"is:maybe":        `invalid value "maybe" for "is", expected failed or ok`,
		"params:angle":    `unknown search field "params"`,
		"command:":        "field without a value",
		"command:kind:ok": "field followed by a field",
	} {
		_, err := journal.ParseSearch(query)
		assert.EqualError(t, err, msg, query)
	}
}
