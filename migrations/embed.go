// Package migrations embeds the SQL schema for the optional PostgreSQL
// reference source.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
