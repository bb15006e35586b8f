package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_busy_timeout=5000&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("History repository initialized")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *repository) Insert(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx, insertCaptureSQL,
		e.ID.String(),
		e.CapturedAt.UnixMilli(),
		e.Brightness,
		e.DurationMS,
		e.Temperature,
		e.Humidity,
		e.SensorError,
		boolToInt(e.Saved),
		e.Path,
	)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to insert capture")
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *repository) MarkSaved(ctx context.Context, id uuid.UUID, path string) (bool, error) {
	res, err := r.db.ExecContext(ctx, markSavedSQL, path, id.String())
	if err != nil {
		return false, errors.New().Wrap(ErrStorageAccess, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.New().Wrap(ErrStorageAccess, err)
	}

	return n > 0, nil
}

func (r *repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, recentCapturesSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			id         string
			capturedAt int64
			saved      int
		)
		if err := rows.Scan(
			&id, &capturedAt, &e.Brightness, &e.DurationMS,
			&e.Temperature, &e.Humidity, &e.SensorError,
			&saved, &e.Path,
		); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}

		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, errFactory.WithData(ErrStorageAccess, struct {
				Phase string
				ID    string
				Error string
			}{
				Phase: "parse_id",
				ID:    id,
				Error: err.Error(),
			})
		}
		e.CapturedAt = time.UnixMilli(capturedAt)
		e.Saved = saved == 1

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return entries, nil
}

func (r *repository) Close() error {
	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("History repository closed")

	return nil
}
