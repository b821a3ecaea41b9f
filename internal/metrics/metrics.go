package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"github.com/google/uuid"
)

type service struct {
	repo  Repository
	cfg   Config
	runID string
}

// No-op implementation
type noopCollector struct {
	runID string
}

func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	runID := uuid.NewString()

	// If metrics is disabled, return a no-op collector
	if !cfg.Enabled {
		log.Debug().Msg("Status history disabled, using no-op collector")
		return &noopCollector{runID: runID}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create status repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Str("run_id", runID).
		Msg("Status history initialized")

	return &service{
		repo:  repo,
		cfg:   cfg,
		runID: runID,
	}, nil
}

func (s *service) Record(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidMetrics)
	}
	if snapshot.RunID == "" {
		snapshot.RunID = s.runID
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(snapshot); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

func (s *service) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.Recent(ctx, limit)
}

func (s *service) RunID() string {
	return s.runID
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopCollector) Record(context.Context, *Snapshot) error {
	return nil
}

func (*noopCollector) Recent(context.Context, int) ([]Snapshot, error) {
	return nil, nil
}

func (n *noopCollector) RunID() string {
	return n.runID
}

func (*noopCollector) Close() error {
	return nil
}

// Run snapshots src every interval until ctx is done. Recording errors
// are logged and do not stop the loop.
func Run(ctx context.Context, c Collector, src StatusSource, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := c.Record(ctx, NewSnapshot(now, src.Status())); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Warn().Err(err).Msg("Failed to record status snapshot")
			}
		}
	}
}
