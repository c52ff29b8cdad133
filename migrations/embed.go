// Package migrations carries the parse-history schema inside the binary.
// A blank import hands the SQL files to database.RegisterMigrations.
package migrations

import (
	"embed"

	"github.com/Terminal3D/DLMS-Parser/internal/infrastructure/database"
)

//go:embed *.up.sql *.down.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files, ".")
}
