package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
)

// SQLiteBusyTimeoutMS is how long a writer waits for a competing lock
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with WAL, foreign keys
// and a busy timeout. A nil logger operates silently.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.OrNop(log)
	log.Debugw("Opening database", logger.FieldPath, path)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	pragmas := []struct {
		stmt string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "enable WAL mode"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
		{"PRAGMA busy_timeout = 5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to %s on %s", p.desc, path)
		}
	}

	log.Infow("Database opened",
		logger.FieldPath, path,
		"wal_mode", true,
		"foreign_keys", true,
	)

	return db, nil
}

// OpenWithMigrations opens the database and applies pending migrations
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to migrate %s", path)
	}

	return db, nil
}
