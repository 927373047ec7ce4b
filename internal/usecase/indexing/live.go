package indexing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/domain"
	"github.com/kailas-cloud/unisearch/internal/domain/manifest"
	"github.com/kailas-cloud/unisearch/internal/vectorindex"
)

// Load opens the artifact of every live manifest. Scopes whose artifact cannot be opened are
// logged and skipped; they come back with the next rebuild.
func (s *Service) Load(ctx context.Context) error {
	scopes, err := s.manifests.Scopes()
	if err != nil {
		return fmt.Errorf("list scopes: %w", err)
	}
	for _, scope := range scopes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m, err := s.manifests.Live(scope)
		if err != nil {
			s.logger.Warn("Live manifest unreadable", zap.String("scope", string(scope)), zap.Error(err))
			continue
		}
		ix, err := s.provider.LoadIndex(m.ArtifactPath)
		if err != nil {
			s.logger.Error("Live index artifact unreadable",
				zap.String("scope", string(scope)), zap.String("path", m.ArtifactPath), zap.Error(err))
			continue
		}
		s.publish(scope, ix)
		s.observeLive(&m)
		s.logger.Info("Live index loaded",
			zap.String("scope", string(scope)), zap.Uint64("generation", m.Generation), zap.Int("documents", ix.Len()))
	}
	return nil
}

// Live returns the live manifest of scope.
func (s *Service) Live(scope manifest.Scope) (manifest.Manifest, error) {
	m, err := s.manifests.Live(scope)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return manifest.Manifest{}, fmt.Errorf("%s: %w", scope, domain.ErrIndexNotReady)
		}
		return manifest.Manifest{}, err
	}
	return m, nil
}

// History returns the most recent manifests of scope, newest first.
func (s *Service) History(scope manifest.Scope, limit int) ([]manifest.Manifest, error) {
	return s.manifests.List(scope, limit)
}

// Status returns the in-memory state of every builder slot that has run in this process.
func (s *Service) Status() []RunStatus {
	return s.states.snapshot()
}

// HasLiveIndex reports whether any scope has a loaded index.
func (s *Service) HasLiveIndex() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live) > 0
}

// Similar searches the index serving tenantID: its own tenant generation when one is live,
// otherwise the global one.
func (s *Service) Similar(
	tenantID int64, vec []float32, k int, keep func(*domain.SearchDocument) bool,
) ([]vectorindex.Hit, error) {
	s.mu.RLock()
	ix, ok := s.live[manifest.TenantScope(tenantID)]
	if !ok {
		ix, ok = s.live[manifest.Global]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrIndexNotReady
	}
	return ix.Search(vec, k, keep), nil
}

// Close releases every live index.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for scope, ix := range s.live {
		if err := ix.Close(); err != nil {
			s.logger.Warn("Failed to close index", zap.String("scope", string(scope)), zap.Error(err))
		}
		delete(s.live, scope)
	}
}

func (s *Service) liveIndex(scope manifest.Scope) (*vectorindex.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.live[scope]
	return ix, ok
}

// publish makes ix the index readers see for scope and closes the one it replaces.
func (s *Service) publish(scope manifest.Scope, ix *vectorindex.Index) {
	s.mu.Lock()
	old := s.live[scope]
	s.live[scope] = ix
	s.mu.Unlock()

	if old != nil && old != ix {
		if err := old.Close(); err != nil {
			s.logger.Warn("Failed to close replaced index", zap.String("scope", string(scope)), zap.Error(err))
		}
	}
}

// prune deletes artifact files of scope beyond the newest KeepArtifacts live generations.
func (s *Service) prune(scope manifest.Scope) {
	history, err := s.manifests.List(scope, 0)
	if err != nil {
		s.logger.Warn("Artifact pruning skipped", zap.String("scope", string(scope)), zap.Error(err))
		return
	}
	keep := make(map[string]bool)
	for _, m := range history {
		if len(keep) == s.opts.KeepArtifacts {
			break
		}
		if m.IsLive() && m.ArtifactPath != "" {
			keep[filepath.Clean(m.ArtifactPath)] = true
		}
	}

	files, err := filepath.Glob(filepath.Join(s.opts.DataDir, artifactPrefix(scope)+"*.db"))
	if err != nil {
		s.logger.Warn("Artifact pruning skipped", zap.String("scope", string(scope)), zap.Error(err))
		return
	}
	for _, f := range files {
		if keep[filepath.Clean(f)] {
			continue
		}
		removeArtifact(f)
		s.logger.Debug("Old index artifact removed", zap.String("path", f))
	}
}

func removeArtifact(path string) {
	_ = os.Remove(path)
}
