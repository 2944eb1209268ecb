package migrations

import "embed"

// FS contains embedded SQLite migrations for credit wallets.
//
//go:embed *.sql
var FS embed.FS
