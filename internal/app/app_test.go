package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	fcolor "github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retouch/retouch/internal/editsvc"
	"github.com/retouch/retouch/internal/server"
	"github.com/retouch/retouch/pkg/imgcodec"
)

type cliEnv struct {
	dir    string
	config string
	url    string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	fcolor.NoColor = true

	dir := t.TempDir()
	t.Setenv("RETOUCH_DATA_DIRECTORY", dir)
	t.Setenv("RETOUCH_JOURNAL", "true")
	t.Setenv("RETOUCH_JOURNAL_SOURCE", "sqlite3:"+filepath.Join(dir, "journal.sqlite3"))
	t.Setenv("RETOUCH_DISPLAY", "file")
	t.Setenv("RETOUCH_DISPLAY_DIRECTORY", filepath.Join(dir, "display"))

	s := server.New("/api/py")
	s.AddRoute("/", editsvc.Routes(s, editsvc.Options{}))
	ts := httptest.NewServer(s.Router)
	t.Cleanup(ts.Close)

	return &cliEnv{
		dir:    dir,
		config: filepath.Join(dir, "config", "config.toml"),
		url:    ts.URL + "/api/py",
	}
}

func (e *cliEnv) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	defer func() {
		outputPath, noClamp, catalogJSON = "", false, false
		journalSince, journalFormat, journalLimit, journalPurge, journalSearch = "", "", 0, "", ""
		require.NoError(t, cleanup())
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"-c", e.config, "-u", e.url}, args...))

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func (e *cliEnv) writePNG(t *testing.T, w, h int) string {
	t.Helper()
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(x, y, color.NRGBA{uint8(x), uint8(y), 50, 255})
		}
	}
	b, err := imgcodec.EncodePNG(m)
	require.NoError(t, err)

	name := filepath.Join(e.dir, "source.png")
	require.NoError(t, os.WriteFile(name, b, 0o600))
	return name
}

func TestCLI(t *testing.T) {
	e := newCLIEnv(t)

	out, err := e.execute(t, "", "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "Rotate")
	assert.Contains(t, out, "POST /rotate")
	assert.Contains(t, out, "angle=0..360 (90)")
	assert.Regexp(t, `Grayscale\s+POST /grayscale\s+no parameters`, out)
	assert.Contains(t, out, "display backends: file, kitty, none")

	_, err = os.Stat(e.config)
	assert.NoError(t, err, "configuration file is created")

	out, err = e.execute(t, "", "states")
	require.NoError(t, err)
	assert.Equal(t, "undo 0 redo 0\n", out)

	_, err = e.execute(t, "", "undo")
	assert.ErrorContains(t, err, "NotAvailable")

	result := filepath.Join(e.dir, "result.png")
	out, err = e.execute(t, "", "upload", e.writePNG(t, 80, 60), "-o", result)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "undo 0 redo 0 size 80x60 image "+filepath.Join(e.dir, "display")), out)

	b, err := os.ReadFile(result)
	require.NoError(t, err)
	info, err := imgcodec.InspectPNG(b)
	require.NoError(t, err)
	assert.Equal(t, []int{80, 60}, []int{info.Width, info.Height})

	out, err = e.execute(t, "", "run", "rotate", "angle=90")
	require.NoError(t, err)
	assert.Contains(t, out, "undo 1 redo 0 size 60x80 ")

	// out of range values are clamped
	out, err = e.execute(t, "", "run", "Blur", "half_width=500")
	require.NoError(t, err)
	assert.Contains(t, out, "undo 2 redo 0 size 60x80 ")

	_, err = e.execute(t, "", "run", "--no-clamp", "blur", "half_width=500")
	assert.ErrorContains(t, err, "ServerRejected (400): Invalid input data")

	out, err = e.execute(t, "", "undo")
	require.NoError(t, err)
	assert.Contains(t, out, "undo 1 redo 1 size 60x80 ")

	out, err = e.execute(t, "", "redo")
	require.NoError(t, err)
	assert.Contains(t, out, "undo 2 redo 0 size 60x80 ")

	_, err = e.execute(t, "", "run", "rotate", "angle")
	assert.EqualError(t, err, `invalid parameter "angle", expected key=value`)

	_, err = e.execute(t, "", "run", "rotate", "radius=3", "angle=90")
	assert.EqualError(t, err, `Rotate has no parameter "radius"`)

	_, err = e.execute(t, "", "run", "sharpen")
	assert.ErrorContains(t, err, "UnknownCommand")

	out, err = e.execute(t, "", "journal", "--format", "{{ .Command }} {{ .Kind }}")
	require.NoError(t, err)
	assert.Contains(t, out, "Upload \n")
	assert.Contains(t, out, "Rotate \n")
	assert.Contains(t, out, "Blur ServerRejected\n")
	assert.Contains(t, out, "sharpen UnknownCommand\n")

	out, err = e.execute(t, "", "journal", "-n", "1", "--format", "{{ .Command }}")
	require.NoError(t, err)
	assert.Equal(t, "sharpen\n", out)

	out, err = e.execute(t, "", "journal", "-q", "is:failed -command:load", "--format", "{{ .Command }}")
	require.NoError(t, err)
	assert.Equal(t, "Undo\nBlur\nsharpen\n", out)

	_, err = e.execute(t, "", "journal", "-q", "foo:bar")
	assert.EqualError(t, err, `invalid search: unknown search field "foo"`)

	_, err = e.execute(t, "", "journal", "--since", "not a date")
	assert.Error(t, err)
}

func TestShell(t *testing.T) {
	e := newCLIEnv(t)
	source := e.writePNG(t, 80, 60)

	script := strings.Join([]string{
		"# comment",
		"open " + source,
		"wait",
		"rotate angle=90",
		"wait",
		"states",
		"nope",
		"wait",
		"quit",
		"states",
	}, "\n")

	out, err := e.execute(t, script, "shell")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5, out)
	assert.Equal(t, "undo 0 redo 0", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "undo 0 redo 0 size 80x60 image "), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "undo 1 redo 0 size 60x80 image "), lines[2])
	assert.Equal(t, lines[2], lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "UnknownCommand "), lines[4])

	// the displayed image is released on exit
	files, err := os.ReadDir(filepath.Join(e.dir, "display"))
	require.NoError(t, err)
	assert.Empty(t, files)
}
