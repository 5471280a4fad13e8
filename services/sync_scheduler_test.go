package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleet_tracking/models"
	"fleet_tracking/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSyncer struct {
	mu    sync.Mutex
	calls []uint
	err   error
}

func (s *stubSyncer) SyncConfigByID(ctx context.Context, configID uint) (*SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, configID)
	if s.err != nil {
		return nil, s.err
	}
	return newSyncReport(configID), nil
}

func TestSyncScheduler_Reload(t *testing.T) {
	db := testutils.SetupTestDB(t)
	first := testutils.CreateTestTrackingConfig(t, db, "https://a.example.com", models.AuthModeBearer)
	second := testutils.CreateTestTrackingConfig(t, db, "https://b.example.com", models.AuthModeBearer)
	require.NoError(t, db.Model(second).Update("poll_interval_minutes", 10).Error)

	ss := NewSyncScheduler(db, &stubSyncer{}, time.Minute, nil)
	require.NoError(t, ss.Reload())

	assert.Equal(t, map[uint]time.Duration{
		first.ID:  5 * time.Minute,
		second.ID: 10 * time.Minute,
	}, ss.ScheduledIntervals())

	_, ok := ss.NextRun(first.ID)
	assert.True(t, ok)

	// Отключение убирает задачу, смена интервала пересоздает ее
	require.NoError(t, db.Model(first).Update("is_active", false).Error)
	require.NoError(t, db.Model(second).Update("poll_interval_minutes", 2).Error)
	third := testutils.CreateTestTrackingConfig(t, db, "https://c.example.com", models.AuthModeBearer)
	require.NoError(t, db.Model(third).Update("poll_interval_minutes", 0).Error)

	require.NoError(t, ss.Reload())
	assert.Equal(t, map[uint]time.Duration{
		second.ID: 2 * time.Minute,
		third.ID:  time.Duration(models.MinPollIntervalMinutes) * time.Minute,
	}, ss.ScheduledIntervals())

	_, ok = ss.NextRun(first.ID)
	assert.False(t, ok)
}

func TestSyncScheduler_RunToleratesErrors(t *testing.T) {
	db := testutils.SetupTestDB(t)
	syncer := &stubSyncer{err: ErrSyncInProgress}

	ss := NewSyncScheduler(db, syncer, time.Minute, nil)
	ss.run(7)
	syncer.err = ErrConfigInactive
	ss.run(7)

	assert.Equal(t, []uint{7, 7}, syncer.calls)
}

func TestSyncScheduler_StartStop(t *testing.T) {
	db := testutils.SetupTestDB(t)
	cfg := testutils.CreateTestTrackingConfig(t, db, "https://a.example.com", models.AuthModeBearer)

	ss := NewSyncScheduler(db, &stubSyncer{}, time.Minute, nil)
	require.NoError(t, ss.Start())

	next, ok := ss.NextRun(cfg.ID)
	assert.True(t, ok)
	assert.True(t, next.After(time.Now()))

	ss.Stop()
}
