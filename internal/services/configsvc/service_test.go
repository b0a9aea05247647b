package configsvc

import (
	"context"
	"testing"

	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/anvh2/market-intel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps configs in memory with append-only history.
type fakeStore struct {
	active  *models.AnalyzerConfig
	history []*models.AnalyzerConfig
}

func (f *fakeStore) LoadActive(ctx context.Context) (*models.AnalyzerConfig, error) {
	return f.active, nil
}

func (f *fakeStore) SaveActive(ctx context.Context, cfg *models.AnalyzerConfig) error {
	f.active = cfg
	f.history = append(f.history, cfg)
	return nil
}

func (f *fakeStore) LoadVersion(ctx context.Context, version string) (*models.AnalyzerConfig, error) {
	for i := len(f.history) - 1; i >= 0; i-- {
		if f.history[i].Meta.Version == version {
			return f.history[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) History(ctx context.Context, limit int) ([]models.ConfigMeta, error) {
	out := make([]models.ConfigMeta, 0, len(f.history))
	for i := len(f.history) - 1; i >= 0; i-- {
		out = append(out, f.history[i].Meta)
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	svc := New(logger.NewDev(), store)
	require.NoError(t, svc.Load(context.Background()))
	return svc, store
}

func TestLoadSeedsDefaults(t *testing.T) {
	svc, store := newTestService(t)

	assert.Equal(t, "1.0.0", svc.CurrentVersion())
	require.NotNil(t, store.active)
	assert.Len(t, store.history, 1)
}

func TestSaveRoundTripBumpsPatch(t *testing.T) {
	svc, _ := newTestService(t)

	proposed := svc.Snapshot()
	proposed.Penalties.StanceThreshold = 6.5

	saved, err := svc.Save(context.Background(), proposed, "1.0.0", "ops", "raise stance bar")
	require.NoError(t, err)

	assert.Equal(t, "1.0.1", saved.Meta.Version)
	assert.Equal(t, "1.0.1", svc.CurrentVersion())
	assert.Equal(t, 6.5, svc.Snapshot().Penalties.StanceThreshold)
	assert.Equal(t, "ops", saved.Meta.ModifiedBy)
}

func TestSaveVersionConflict(t *testing.T) {
	svc, _ := newTestService(t)

	proposed := svc.Snapshot()
	_, err := svc.Save(context.Background(), proposed, "0.9.9", "ops", "")

	var conflict *models.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "0.9.9", conflict.Expected)
	assert.Equal(t, "1.0.0", conflict.Actual)
}

func TestSaveRejectsBadWeightSum(t *testing.T) {
	svc, _ := newTestService(t)

	proposed := svc.Snapshot()
	proposed.Weights.Signals[models.SignalCVD] = 0.2 // sum now 1.15

	_, err := svc.Save(context.Background(), proposed, "1.0.0", "ops", "")

	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.NotEmpty(t, validation.Violations)
}

func TestSaveRejectsOversizedStep(t *testing.T) {
	svc, _ := newTestService(t)

	proposed := svc.Snapshot()
	// 0.25 -> 0.49 is a 96% step against the 50% cap, while staying
	// structurally valid (still below the strong threshold).
	th := proposed.Thresholds.Timeframes["30m"]
	th.PriceNoisePct = 0.49
	proposed.Thresholds.Timeframes["30m"] = th

	_, err := svc.Save(context.Background(), proposed, "1.0.0", "ops", "")

	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestSaveRejectsOutOfBounds(t *testing.T) {
	svc, _ := newTestService(t)

	proposed := svc.Snapshot()
	proposed.Penalties.ConflictBonusCap = 50 // bounds cap penalties at 10

	_, err := svc.Save(context.Background(), proposed, "1.0.0", "ops", "")

	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestSnapshotIsACopy(t *testing.T) {
	svc, _ := newTestService(t)

	snapshot := svc.Snapshot()
	snapshot.Weights.Signals[models.SignalCVD] = 0.9

	assert.Equal(t, 0.05, svc.Snapshot().Weights.Signals[models.SignalCVD],
		"mutating a snapshot must not touch the active config")
}

func TestRollbackCreatesNewVersion(t *testing.T) {
	svc, _ := newTestService(t)

	proposed := svc.Snapshot()
	proposed.Penalties.StanceThreshold = 6.5
	_, err := svc.Save(context.Background(), proposed, "1.0.0", "ops", "")
	require.NoError(t, err)

	rolled, err := svc.Rollback(context.Background(), "1.0.0", "ops")
	require.NoError(t, err)

	assert.Equal(t, "1.0.2", rolled.Meta.Version, "rollback is a new version, not a rewind")
	assert.Equal(t, 6.0, rolled.Penalties.StanceThreshold)
	assert.Equal(t, 6.0, svc.Snapshot().Penalties.StanceThreshold)
}

func TestValidateDeltaDirect(t *testing.T) {
	old := models.DefaultAnalyzerConfig()
	proposed := models.DefaultAnalyzerConfig()
	th := proposed.Thresholds.Timeframes["1h"]
	th.Funding = old.Thresholds.Timeframes["1h"].Funding * 1.4 // inside the 50% step
	proposed.Thresholds.Timeframes["1h"] = th

	assert.NoError(t, ValidateDelta(old, proposed))

	th.Funding = old.Thresholds.Timeframes["1h"].Funding * 1.6
	proposed.Thresholds.Timeframes["1h"] = th
	assert.Error(t, ValidateDelta(old, proposed))
}
