// Package db opens the local database and keeps its schema up to
// date. It holds a single process wide connection.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	log "github.com/sirupsen/logrus"

	"github.com/retouch/retouch/internal/db/migrations"
)

// Connector is an interface for a database connector.
type Connector interface {
	// Dialect returns the connector's dialect
	Dialect() string

	// Open creates a new db connection.
	Open(*url.URL) (*sql.DB, error)

	// HasTable checks if a given table exists in the
	// database. It's used by the migration system.
	HasTable(string) (bool, error)
}

// ErrNotOpen is returned when no connection is open.
var ErrNotOpen = errors.New("database is not open")

var (
	mu      sync.RWMutex
	drivers = map[string]Connector{}
	driver  Connector
	db      *sql.DB
	qdb     *goqu.Database
)

type logger struct{}

func (l logger) Printf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}

// Driver returns the SQL driver in use.
func Driver() Connector {
	mu.RLock()
	defer mu.RUnlock()
	if driver == nil {
		panic("database driver not initialized")
	}
	return driver
}

// Open opens a database connection. The DSN scheme selects the
// connector, "sqlite3:/path/to/file.sqlite3" for example.
func Open(dsn string) error {
	mu.Lock()
	defer mu.Unlock()

	if driver != nil {
		return errors.New("a connection can only be opened once")
	}

	uri, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	c, ok := drivers[uri.Scheme]
	if !ok {
		return fmt.Errorf("database driver '%s' not found", uri.Scheme)
	}

	conn, err := c.Open(uri)
	if err != nil {
		return err
	}

	driver, db = c, conn
	qdb = goqu.New(c.Dialect(), conn)
	if log.IsLevelEnabled(log.DebugLevel) {
		qdb.Logger(logger{})
	}

	return nil
}

// Close closes the connection. Open can be called again afterwards.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if db == nil {
		return nil
	}
	err := db.Close()
	driver, db, qdb = nil, nil, nil
	return err
}

// IsOpen returns true when a connection is open.
func IsOpen() bool {
	mu.RLock()
	defer mu.RUnlock()
	return db != nil
}

// DB returns the current sql.DB instance.
func DB() *sql.DB {
	mu.RLock()
	defer mu.RUnlock()
	return db
}

// Q returns the current goqu.Database instance.
func Q() *goqu.Database {
	mu.RLock()
	defer mu.RUnlock()
	return qdb
}

// Init creates the database schema by running all the needed migrations.
func Init() error {
	if !IsOpen() {
		return ErrNotOpen
	}
	return applyMigrations()
}

// migration is a database migration entry
type migration struct {
	ID      int        `db:"id"`
	Name    string     `db:"name"`
	Applied *time.Time `db:"applied"`
}

// applyMigrations runs, in filename order, the files of
// migrations/{dialect} that are newer than the last applied one.
// Files are named "{id}-{name}.sql".
func applyMigrations() error {
	root := Driver().Dialect()
	files, err := migrations.Files.ReadDir(root)
	if err != nil {
		return err
	}

	last, err := getLastMigration()
	if err != nil {
		return err
	}

	log.WithField("last_id", last.ID).
		WithField("last_name", last.Name).
		Debug("schema migrations")

	for _, mf := range files {
		if mf.IsDir() {
			continue
		}

		var mid int
		var mname string
		if _, err := fmt.Sscanf(mf.Name(), "%d-%s", &mid, &mname); err != nil {
			return fmt.Errorf("invalid migration file name %s", mf.Name())
		}
		if mid <= last.ID {
			continue
		}

		stmt, err := migrations.Files.ReadFile(path.Join(root, mf.Name()))
		if err != nil {
			return err
		}
		if err := applyMigration(mid, mname, stmt); err != nil {
			return fmt.Errorf("migration %s: %w", mf.Name(), err)
		}
	}

	return nil
}

// applyMigration runs a migration file and records it, in the same
// transaction.
func applyMigration(id int, name string, stmt []byte) error {
	log.WithField("id", id).WithField("name", name).Info("applying migration")

	tx, err := Q().Begin()
	if err != nil {
		return err
	}
	return tx.Wrap(func() error {
		if _, err := tx.Exec(string(stmt)); err != nil {
			return err
		}

		_, err := tx.Insert(goqu.T("migration")).Rows(goqu.Record{
			"id":      id,
			"name":    name,
			"applied": time.Now().UTC(),
		}).Executor().Exec()
		return err
	})
}

func getLastMigration() (*migration, error) {
	m := &migration{}

	// No migration table means an empty database
	ok, err := Driver().HasTable("migration")
	if err != nil || !ok {
		return m, err
	}

	_, err = Q().
		Select(goqu.C("id"), goqu.C("name"), goqu.C("applied")).
		From(goqu.T("migration")).Prepared(true).
		Order(goqu.C("id").Desc()).
		Limit(1).
		ScanStruct(m)
	return m, err
}
