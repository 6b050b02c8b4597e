// Package migrations embeds the server's SQL migration files for goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
