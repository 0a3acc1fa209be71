// Package migrations contains the SQL migrations of the user database.
// Files run in lexical order and must never be renamed or removed once released.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
