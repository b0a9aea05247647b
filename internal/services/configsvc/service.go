package configsvc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/anvh2/market-intel/internal/storage/postgres"
	"go.uber.org/zap"
)

// Store is the durable side of the config service.
type Store interface {
	LoadActive(ctx context.Context) (*models.AnalyzerConfig, error)
	SaveActive(ctx context.Context, cfg *models.AnalyzerConfig) error
	LoadVersion(ctx context.Context, version string) (*models.AnalyzerConfig, error)
	History(ctx context.Context, limit int) ([]models.ConfigMeta, error)
}

var _ Store = (*postgres.ConfigsRepo)(nil)

// Service owns the active analyzer config. Reads take the read lock and
// return a deep copy; they are not lock-free. Saves go through optimistic
// locking plus three validation passes.
type Service struct {
	logger *logger.Logger
	store  Store

	mutex  sync.RWMutex
	active *models.AnalyzerConfig
}

func New(logger *logger.Logger, store Store) *Service {
	return &Service{
		logger: logger,
		store:  store,
		active: models.DefaultAnalyzerConfig(),
	}
}

// Load pulls the stored active config, seeding defaults on first boot.
func (s *Service) Load(ctx context.Context) error {
	stored, err := s.store.LoadActive(ctx)
	if err != nil {
		return err
	}
	if stored == nil {
		seed := models.DefaultAnalyzerConfig()
		seed.Meta.ModifiedAt = time.Now().UnixMilli()
		if err := s.store.SaveActive(ctx, seed); err != nil {
			return err
		}
		stored = seed
		s.logger.Info("[ConfigSvc] seeded factory defaults", zap.String("version", seed.Meta.Version))
	}

	s.mutex.Lock()
	s.active = stored
	s.mutex.Unlock()
	return nil
}

// Snapshot returns a deep copy the caller owns for the duration of a cycle.
func (s *Service) Snapshot() *models.AnalyzerConfig {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return deepCopy(s.active)
}

// CurrentVersion returns the active version string.
func (s *Service) CurrentVersion() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.active.Meta.Version
}

// Save validates and commits a proposed config. basedOnVersion must match
// the current version or the save is rejected with a VersionConflictError;
// callers never retry automatically.
func (s *Service) Save(ctx context.Context, proposed *models.AnalyzerConfig, basedOnVersion, author, notes string) (*models.AnalyzerConfig, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if basedOnVersion != s.active.Meta.Version {
		return nil, &models.VersionConflictError{Expected: basedOnVersion, Actual: s.active.Meta.Version}
	}

	if err := Validate(proposed); err != nil {
		return nil, err
	}
	if err := ValidateBounds(proposed); err != nil {
		return nil, err
	}
	if err := ValidateDelta(s.active, proposed); err != nil {
		return nil, err
	}

	next := deepCopy(proposed)
	next.Meta = models.ConfigMeta{
		Version:    bumpPatch(s.active.Meta.Version),
		ModifiedAt: time.Now().UnixMilli(),
		ModifiedBy: author,
		Notes:      notes,
	}

	if err := s.store.SaveActive(ctx, next); err != nil {
		return nil, err
	}

	s.active = next
	s.logger.Info("[ConfigSvc] config saved",
		zap.String("version", next.Meta.Version), zap.String("by", author))
	return deepCopy(next), nil
}

// Rollback creates a new version whose body equals a historical one.
// History stays append-only.
func (s *Service) Rollback(ctx context.Context, version, author string) (*models.AnalyzerConfig, error) {
	historical, err := s.store.LoadVersion(ctx, version)
	if err != nil {
		return nil, err
	}
	if historical == nil {
		return nil, &models.ConfigMissingError{Path: "history/" + version, Fallback: "none"}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	next := deepCopy(historical)
	next.Meta = models.ConfigMeta{
		Version:    bumpPatch(s.active.Meta.Version),
		ModifiedAt: time.Now().UnixMilli(),
		ModifiedBy: author,
		Notes:      fmt.Sprintf("rollback to %s", version),
	}

	if err := s.store.SaveActive(ctx, next); err != nil {
		return nil, err
	}

	s.active = next
	s.logger.Info("[ConfigSvc] rolled back",
		zap.String("to", version), zap.String("new_version", next.Meta.Version))
	return deepCopy(next), nil
}

// History lists stored versions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.ConfigMeta, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.History(ctx, limit)
}

func bumpPatch(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return version + ".1"
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return version + ".1"
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}
