package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"codeberg.org/mutker/simtempd/internal/errors"
)

// Reader queries a status database without writing to it. Unlike
// NewRepository it never migrates, so a stale database is reported
// instead of being backed up and recreated.
type Reader struct {
	db    *sql.DB
	empty bool
}

func OpenReader(dbPath string) (*Reader, error) {
	errFactory := errors.New()

	if dbPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	switch version {
	case SchemaVersion:
		return &Reader{db: db}, nil
	case 0:
		return &Reader{db: db, empty: true}, nil
	default:
		db.Close()
		return nil, errFactory.WithMessage(ErrSchemaValidationFailed,
			fmt.Sprintf("%s has schema version %d, expected %d", dbPath, version, SchemaVersion))
	}
}

// Recent returns up to limit snapshots, newest first.
func (r *Reader) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	if r.empty {
		return nil, nil
	}

	return querySnapshots(ctx, r.db, limit)
}

func (r *Reader) Close() error {
	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}
