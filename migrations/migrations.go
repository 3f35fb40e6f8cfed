// Package migrations embeds the SQL migrations for the PostgreSQL entity
// store so the binary can migrate without a checkout on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
