package popgrid

import "embed"

// Migrations holds the embedded goose SQL migrations applied by the migrate
// subcommand.
//
//go:embed migrations/*.sql
var Migrations embed.FS
