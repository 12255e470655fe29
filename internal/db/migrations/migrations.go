// Package migrations holds the SQL schema files, one folder per
// database dialect.
package migrations

import "embed"

// Files contains the migration files.
//
//go:embed sqlite3/*.sql
var Files embed.FS
