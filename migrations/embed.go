// Package migrations holds the schema as ordered *.up.sql / *.down.sql pairs.
// The server applies the up files at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
