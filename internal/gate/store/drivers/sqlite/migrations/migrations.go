// Package migrations embeds the sqlite schema migration files so the binary
// can bring any database up to date on startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
