// Package migrations contains the embedded goose SQL migrations for PostgreSQL.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
