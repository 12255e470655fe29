package db

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect
	_ "github.com/mattn/go-sqlite3"                    // driver
)

func init() {
	drivers["sqlite3"] = &sqliteConnector{}
}

type sqliteConnector struct{}

func (c *sqliteConnector) Dialect() string {
	return "sqlite3"
}

// Open opens "sqlite3:path" or "sqlite3::memory:". The file's folder
// is created when needed.
func (c *sqliteConnector) Open(dsn *url.URL) (*sql.DB, error) {
	uri := *dsn
	uri.Scheme = ""

	name := uri.Opaque
	if name == "" {
		name = uri.Path
	}
	if name != "" && name != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(name), 0o750); err != nil {
			return nil, err
		}
	}

	q := uri.Query()
	q.Set("_journal", "WAL")
	q.Set("_busy_timeout", "5000")
	uri.RawQuery = q.Encode()

	conn, err := sql.Open("sqlite3", uri.String())
	if err != nil {
		return nil, err
	}

	// a single connection keeps in memory databases alive
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func (c *sqliteConnector) HasTable(name string) (bool, error) {
	var res string
	_, err := Q().Select(goqu.C("name")).
		From(goqu.T("sqlite_master")).
		Where(
			goqu.C("type").Eq("table"),
			goqu.C("name").Eq(name),
		).
		ScanVal(&res)
	if err != nil {
		return false, err
	}

	return res == name, nil
}
