package database

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Direction selects which way migrations run.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies (or rolls back) every migration found in dir against dsn.
// It returns the schema version reached and whether anything changed.
func Migrate(dsn, dir string, direction Direction) (uint, bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, false, fmt.Errorf("resolve migrations path: %w", err)
	}
	m, err := migrate.New("file://"+filepath.ToSlash(abs), dsn)
	if err != nil {
		return 0, false, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return 0, false, fmt.Errorf("unknown migration direction %q", direction)
	}
	changed := true
	if errors.Is(err, migrate.ErrNoChange) {
		changed = false
		err = nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, changed, nil
	}
	if err != nil {
		return 0, changed, fmt.Errorf("read migration version: %w", err)
	}
	return version, changed, nil
}
