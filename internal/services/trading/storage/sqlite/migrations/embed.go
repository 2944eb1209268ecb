package migrations

import "embed"

// FS contains embedded SQLite migrations for trading storage.
//
//go:embed *.sql
var FS embed.FS
