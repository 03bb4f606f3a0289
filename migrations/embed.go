// Package migrations embeds the SQL schema of the CTI proxy so the binary
// can migrate its database without files on disk.
package migrations

import "embed"

// FS holds every NNNN_description.{up,down}.sql file of this directory.
//
//go:embed *.sql
var FS embed.FS
