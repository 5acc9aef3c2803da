// Package migrations embeds the SQL migration files so the migrator
// binary ships without external assets.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
