package migrations

import (
	"database/sql"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Run применяет все миграции из папки migrationDir.
func Run(connString, migrationDir string) error {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.Up(db, migrationDir)
}

// Dir возвращает путь к миграциям из окружения или дефолт.
func Dir() string {
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return dir
	}
	return "./migrations"
}
