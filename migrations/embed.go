// Package migrations embeds the SQL schema applied by database.RunMigrations.
package migrations

import "embed"

// Dir is the directory of the migration files inside FS.
const Dir = "."

//go:embed *.sql
var FS embed.FS
