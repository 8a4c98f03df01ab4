package migrations

import "embed"

// FS contains embedded SQLite migrations for diplomacy storage.
//
//go:embed *.sql
var FS embed.FS
