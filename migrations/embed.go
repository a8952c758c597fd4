// Package migrations embeds the SQL schema so the binary carries its own
// migrations.
package migrations

import (
	"embed"

	"github.com/nerrad567/consultease-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
