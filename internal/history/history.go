// Package history records capture runs in a local sqlite database.
package history

import (
	"context"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"github.com/google/uuid"
)

type service struct {
	repo Repository
	log  logger.Logger
}

type noopRecorder struct{}

// NewService returns a sqlite-backed Recorder, or a no-op one when history
// is disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()
	log = log.With("history")

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Capture history disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	return NewServiceWithRepository(repo, log), nil
}

// NewServiceWithRepository wraps an existing repository.
func NewServiceWithRepository(repo Repository, log logger.Logger) Recorder {
	return &service{repo: repo, log: log}
}

func (s *service) Record(ctx context.Context, entry *Entry) error {
	errFactory := errors.New()

	if entry == nil || entry.ID == uuid.Nil {
		return errFactory.New(ErrInvalidEntry)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	return s.repo.Insert(ctx, entry)
}

func (s *service) MarkSaved(ctx context.Context, id uuid.UUID, path string) error {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	found, err := s.repo.MarkSaved(ctx, id, path)
	if err != nil {
		return err
	}
	if !found {
		return errFactory.WithData(ErrNotFound, id.String())
	}

	return nil
}

// Recent returns the newest entries first. limit is clamped to
// [1, MaxRecentLimit]; zero or negative selects DefaultRecentLimit.
func (s *service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.repo.Recent(ctx, clampLimit(limit))
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*service) Enabled() bool {
	return true
}

func (*noopRecorder) Record(context.Context, *Entry) error {
	return nil
}

func (*noopRecorder) MarkSaved(context.Context, uuid.UUID, string) error {
	return nil
}

func (*noopRecorder) Recent(context.Context, int) ([]Entry, error) {
	return []Entry{}, nil
}

func (*noopRecorder) Close() error {
	return nil
}

func (*noopRecorder) Enabled() bool {
	return false
}
