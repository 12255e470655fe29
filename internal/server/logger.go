package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

var methodColors = map[string]*color.Color{
	"GET":    color.New(color.Bold, color.FgHiBlue),
	"HEAD":   color.New(color.Bold, color.FgHiBlue),
	"POST":   color.New(color.Bold, color.FgHiGreen),
	"PUT":    color.New(color.Bold, color.FgYellow),
	"PATCH":  color.New(color.Bold, color.FgYellow),
	"DELETE": color.New(color.Bold, color.FgRed),
}

func statusColor(status int) *color.Color {
	switch {
	case status < 200:
		return color.New(color.FgBlue)
	case status < 300:
		return color.New(color.FgGreen)
	case status < 400:
		return color.New(color.FgCyan)
	case status < 500:
		return color.New(color.FgYellow)
	}
	return color.New(color.FgRed)
}

func elapsedColor(d time.Duration) *color.Color {
	switch {
	case d < 500*time.Millisecond:
		return color.New(color.FgGreen)
	case d < time.Second:
		return color.New(color.FgYellow)
	}
	return color.New(color.FgRed)
}

// httpLogFormatter prints one line per request:
// [HTTP id] METHOD /path status size in duration
type httpLogFormatter struct{}

func (f *httpLogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer
	w := color.New(color.FgWhite)

	w.Fprint(&b, "[HTTP")
	if reqID, ok := entry.Data["@id"]; ok {
		color.New(color.FgBlue).Fprintf(&b, " %s", reqID)
	}
	w.Fprint(&b, "] ")

	met, _ := entry.Data["http_method"].(string)
	mc, ok := methodColors[met]
	if !ok {
		mc = color.New(color.Bold, color.FgHiWhite)
	}
	mc.Fprint(&b, met)

	w.Fprintf(&b, " %s ", entry.Data["path"])

	status, _ := entry.Data["status"].(int)
	statusColor(status).Fprint(&b, status)

	length, _ := entry.Data["length"].(int)
	color.New(color.FgCyan).Fprintf(&b, " %s", humanize.Bytes(uint64(length)))
	w.Fprint(&b, " in ")

	ms, _ := entry.Data["elapsed_ms"].(float64)
	elapsed := time.Duration(ms * float64(time.Millisecond))
	elapsedColor(elapsed).Fprint(&b, elapsed)

	b.WriteString("\n")
	return b.Bytes(), nil
}

// Logger is a middleware that logs requests. In dev mode, it writes
// one colored line per request.
func Logger(devMode bool) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(newLogger(devMode))
}

func newLogger(devMode bool) *structuredLogger {
	l := &structuredLogger{}
	if devMode {
		color.NoColor = false
		l.logger = log.New()
		l.logger.Formatter = &httpLogFormatter{}
		l.logger.Level = log.StandardLogger().Level
	} else {
		l.logger = log.StandardLogger()
	}

	return l
}

type structuredLogger struct {
	logger *log.Logger
}

func (sl *structuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	le := sl.logger.WithField("@id", middleware.GetReqID(r.Context())).
		WithFields(log.Fields{
			"http_method": r.Method,
			"remote_addr": r.RemoteAddr,
			"path":        r.RequestURI,
			"ua":          r.UserAgent(),
		})

	return &structuredLoggerEntry{le}
}

type structuredLoggerEntry struct {
	e *log.Entry
}

func (l *structuredLoggerEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	l.e.WithFields(log.Fields{
		"status":     status,
		"length":     bytes,
		"elapsed_ms": float64(elapsed.Nanoseconds()) / 1000000.0,
	}).Info("http")
}

func (l *structuredLoggerEntry) Panic(v interface{}, _ []byte) {
	l.e.WithField("panic", v).Error("http")
}
