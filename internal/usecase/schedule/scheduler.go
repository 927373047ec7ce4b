// Package schedule triggers index runs on a timer inside the server process.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/domain/module"
)

// Defaults for Options.
const (
	DefaultFullInterval        = 7 * 24 * time.Hour
	DefaultIncrementalInterval = 15 * time.Minute
)

// Indexer is the index builder as seen by the scheduler.
type Indexer interface {
	Rebuild(ctx context.Context, scope manifest.Scope, token string) (manifest.Manifest, error)
	Update(ctx context.Context, scope manifest.Scope, m module.Module, token string) (manifest.Manifest, error)
	Live(scope manifest.Scope) (manifest.Manifest, error)
}

// Options set the cadence.
type Options struct {
	Scope               manifest.Scope
	FullInterval        time.Duration
	IncrementalInterval time.Duration
	Modules             []module.Module
}

// Scheduler runs one full rebuild loop and one incremental loop per module.
type Scheduler struct {
	idx    Indexer
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a scheduler.
func New(idx Indexer, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Scope == "" {
		opts.Scope = manifest.Global
	}
	if opts.FullInterval <= 0 {
		opts.FullInterval = DefaultFullInterval
	}
	if opts.IncrementalInterval <= 0 {
		opts.IncrementalInterval = DefaultIncrementalInterval
	}
	if len(opts.Modules) == 0 {
		opts.Modules = module.Incremental
	}
	return &Scheduler{idx: idx, opts: opts, logger: logger, now: time.Now}
}

// Token names the run of kind for m in the slot containing at. Every replica computes the
// same token for the same slot, so a slot is indexed once.
func Token(kind manifest.Kind, m module.Module, at time.Time, interval time.Duration) string {
	target := string(m)
	if target == "" {
		target = "all"
	}
	slot := at.UTC().Truncate(interval).Unix()
	return fmt.Sprintf("%s:%s:%s", kind, target, strconv.FormatInt(slot, 10))
}

// Run blocks until ctx is done. A scope without a live generation is rebuilt right away.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Index scheduler started",
		zap.String("scope", string(s.opts.Scope)),
		zap.Duration("full_interval", s.opts.FullInterval),
		zap.Duration("incremental_interval", s.opts.IncrementalInterval),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.idx.Live(s.opts.Scope); errors.Is(err, domain.ErrIndexNotReady) {
			s.runFull(gctx, s.now())
		}
		s.every(gctx, s.opts.FullInterval, func(at time.Time) { s.runFull(gctx, at) })
		return nil
	})
	for _, m := range s.opts.Modules {
		g.Go(func() error {
			s.every(gctx, s.opts.IncrementalInterval, func(at time.Time) { s.runIncremental(gctx, m, at) })
			return nil
		})
	}
	err := g.Wait()
	s.logger.Info("Index scheduler stopped")
	return err
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, fn func(at time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(s.now())
		}
	}
}

func (s *Scheduler) runFull(ctx context.Context, at time.Time) {
	token := Token(manifest.KindFull, "", at, s.opts.FullInterval)
	m, err := s.idx.Rebuild(ctx, s.opts.Scope, token)
	s.report(err, token, "", m)
}

func (s *Scheduler) runIncremental(ctx context.Context, mod module.Module, at time.Time) {
	token := Token(manifest.KindIncremental, mod, at, s.opts.IncrementalInterval)
	m, err := s.idx.Update(ctx, s.opts.Scope, mod, token)
	s.report(err, token, mod, m)
}

func (s *Scheduler) report(err error, token string, mod module.Module, m manifest.Manifest) {
	fields := []zap.Field{zap.String("token", token), zap.String("scope", string(s.opts.Scope))}
	if mod != "" {
		fields = append(fields, zap.String("module", string(mod)))
	}
	switch {
	case err == nil:
		s.logger.Info("Scheduled index run finished", append(fields, zap.Uint64("generation", m.Generation))...)
	case errors.Is(err, domain.ErrRebuildInProgress):
		s.logger.Info("Scheduled index run skipped, another writer is active", fields...)
	case errors.Is(err, domain.ErrIndexNotReady):
		s.logger.Info("Scheduled update skipped, no live generation yet", fields...)
	case errors.Is(err, context.Canceled):
		s.logger.Debug("Scheduled index run canceled", fields...)
	default:
		s.logger.Warn("Scheduled index run failed", append(fields, zap.Error(err))...)
	}
}
