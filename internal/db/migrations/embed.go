// Package migrations embeds the schema of the tables the dashboard reads.
// Production tables are owned by the services that write them; these files
// recreate them for integration tests and local development.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
