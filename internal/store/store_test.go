package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"garden-push-backend/internal/model"
)

// newTestStore opens a private in-memory SQLite database and migrates the
// schema. Each test gets its own database.
func newTestStore(t *testing.T) Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.PushSubscription{}, &model.OccupancyRecord{}))
	return NewGormStore(db)
}

func sub(endpoint string) model.PushSubscription {
	return model.PushSubscription{
		Endpoint: endpoint,
		P256DH:   "test_p256dh",
		Auth:     "test_auth",
	}
}

func TestRegister_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Register(ctx, sub("https://push.example.com/a"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Register(ctx, sub("https://push.example.com/a"))
	require.NoError(t, err)
	assert.False(t, created, "duplicate registration must be a no-op success")

	subs, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestUnregister(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Register(ctx, sub("https://push.example.com/a"))
	require.NoError(t, err)

	require.NoError(t, s.Unregister(ctx, "https://push.example.com/a"))

	subs, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestUnregister_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.Unregister(context.Background(), "https://push.example.com/never-registered")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	subs, err := s.ListSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRemoveInvalid_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Register(ctx, sub("https://push.example.com/a"))
	require.NoError(t, err)

	require.NoError(t, s.RemoveInvalid(ctx, "https://push.example.com/a"))
	// A second removal of the same endpoint must not fail.
	require.NoError(t, s.RemoveInvalid(ctx, "https://push.example.com/a"))

	subs, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRecordTransition_DerivesDuration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	occupied, err := s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Rossi", State: model.StateOccupied, Timestamp: base,
	})
	require.NoError(t, err)
	assert.Nil(t, occupied.DurationMinutes)

	freed, err := s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Rossi", State: model.StateFree, Timestamp: base.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.NotNil(t, freed.DurationMinutes)
	assert.Equal(t, int64(10), *freed.DurationMinutes)
}

func TestRecordTransition_UsesLatestOccupied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	// occupato, libero, occupato again, then libero: the last libero must be
	// measured from the second occupato, not the first.
	events := []model.OccupancyEvent{
		{Family: "Rossi", State: model.StateOccupied, Timestamp: base},
		{Family: "Rossi", State: model.StateFree, Timestamp: base.Add(30 * time.Minute)},
		{Family: "Rossi", State: model.StateOccupied, Timestamp: base.Add(60 * time.Minute)},
	}
	for _, evt := range events {
		_, err := s.RecordTransition(ctx, evt)
		require.NoError(t, err)
	}

	freed, err := s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Rossi", State: model.StateFree, Timestamp: base.Add(75 * time.Minute),
	})
	require.NoError(t, err)
	require.NotNil(t, freed.DurationMinutes)
	assert.Equal(t, int64(15), *freed.DurationMinutes)
}

func TestRecordTransition_NoPriorOccupied(t *testing.T) {
	s := newTestStore(t)

	freed, err := s.RecordTransition(context.Background(), model.OccupancyEvent{
		Family: "Verdi", State: model.StateFree, Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Nil(t, freed.DurationMinutes)
}

func TestRecordTransition_OtherFamilyDoesNotClose(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	_, err := s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Rossi", State: model.StateOccupied, Timestamp: base,
	})
	require.NoError(t, err)

	freed, err := s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Verdi", State: model.StateFree, Timestamp: base.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	assert.Nil(t, freed.DurationMinutes, "another family's occupato must not be closed")
}

func TestRecordTransition_NegativeDurationLeftUnset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	_, err := s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Rossi", State: model.StateOccupied, Timestamp: base,
	})
	require.NoError(t, err)

	// Out-of-order sensor clock: libero timestamped before the occupato.
	freed, err := s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Rossi", State: model.StateFree, Timestamp: base.Add(-5 * time.Minute),
	})
	require.NoError(t, err)
	assert.Nil(t, freed.DurationMinutes)
}

func TestLatestRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 18, 0, 0, 0, time.UTC)

	rec, err := s.LatestRecord(ctx, "Rossi", model.StateOccupied)
	require.NoError(t, err)
	assert.Nil(t, rec)

	for _, offset := range []time.Duration{0, 30 * time.Minute, 60 * time.Minute} {
		_, err := s.RecordTransition(ctx, model.OccupancyEvent{
			Family: "Rossi", State: model.StateOccupied, Timestamp: base.Add(offset),
		})
		require.NoError(t, err)
	}

	rec, err = s.LatestRecord(ctx, "Rossi", model.StateOccupied)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Timestamp.Equal(base.Add(60*time.Minute)))
}

func TestQueryRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)

	// Five occupato/libero pairs for Rossi, one pair for Verdi.
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		_, err := s.RecordTransition(ctx, model.OccupancyEvent{
			Family: "Rossi", State: model.StateOccupied, Timestamp: start,
		})
		require.NoError(t, err)
		_, err = s.RecordTransition(ctx, model.OccupancyEvent{
			Family: "Rossi", State: model.StateFree, Timestamp: start.Add(20 * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Verdi", State: model.StateOccupied, Timestamp: base.Add(10 * time.Hour),
	})
	require.NoError(t, err)
	_, err = s.RecordTransition(ctx, model.OccupancyEvent{
		Family: "Verdi", State: model.StateFree, Timestamp: base.Add(10*time.Hour + 40*time.Minute),
	})
	require.NoError(t, err)

	t.Run("filter by family with pagination", func(t *testing.T) {
		page, err := s.QueryRecords(ctx, RecordQuery{Family: "Rossi", Page: 1, PageSize: 4, SortDesc: true})
		require.NoError(t, err)
		assert.Equal(t, int64(10), page.TotalCount)
		assert.Len(t, page.Records, 4)
		// Descending by timestamp: first record is the newest.
		assert.True(t, page.Records[0].Timestamp.After(page.Records[3].Timestamp))
		assert.Equal(t, int64(5), page.Aggregates.OccupiedCount)
		assert.Equal(t, int64(5), page.Aggregates.FreeCount)
		require.NotNil(t, page.Aggregates.AverageDurationMinutes)
		assert.InDelta(t, 20.0, *page.Aggregates.AverageDurationMinutes, 0.01)
	})

	t.Run("filter by state", func(t *testing.T) {
		page, err := s.QueryRecords(ctx, RecordQuery{State: model.StateFree, Page: 1, PageSize: 50})
		require.NoError(t, err)
		assert.Equal(t, int64(6), page.TotalCount)
		for _, rec := range page.Records {
			assert.Equal(t, model.StateFree, rec.State)
		}
	})

	t.Run("time range", func(t *testing.T) {
		from := base.Add(9 * time.Hour)
		page, err := s.QueryRecords(ctx, RecordQuery{From: &from, Page: 1, PageSize: 50})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.TotalCount)
		assert.Equal(t, int64(1), page.Aggregates.OccupiedCount)
		assert.Equal(t, int64(1), page.Aggregates.FreeCount)
	})

	t.Run("page size is capped", func(t *testing.T) {
		page, err := s.QueryRecords(ctx, RecordQuery{Page: 1, PageSize: 100000})
		require.NoError(t, err)
		assert.Equal(t, MaxPageSize, page.PageSize)
	})

	t.Run("ascending sort", func(t *testing.T) {
		page, err := s.QueryRecords(ctx, RecordQuery{Page: 1, PageSize: 50, SortDesc: false})
		require.NoError(t, err)
		require.NotEmpty(t, page.Records)
		assert.True(t, page.Records[0].Timestamp.Before(page.Records[len(page.Records)-1].Timestamp))
	})
}

func TestDailyStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 18, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)

	for _, evt := range []model.OccupancyEvent{
		{Family: "Rossi", State: model.StateOccupied, Timestamp: day1},
		{Family: "Rossi", State: model.StateFree, Timestamp: day1.Add(time.Hour)},
		{Family: "Verdi", State: model.StateOccupied, Timestamp: day1.Add(3 * time.Hour)},
		{Family: "Rossi", State: model.StateOccupied, Timestamp: day2},
	} {
		_, err := s.RecordTransition(ctx, evt)
		require.NoError(t, err)
	}

	stats, err := s.DailyStats(ctx, RecordQuery{}, 30)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Most recent day first.
	assert.Equal(t, "2026-08-19", stats[0].Day)
	assert.Equal(t, int64(1), stats[0].Total)
	assert.Equal(t, int64(1), stats[0].OccupiedCount)
	assert.Equal(t, int64(0), stats[0].FreeCount)

	assert.Equal(t, "2026-08-18", stats[1].Day)
	assert.Equal(t, int64(3), stats[1].Total)
	assert.Equal(t, int64(2), stats[1].OccupiedCount)
	assert.Equal(t, int64(1), stats[1].FreeCount)
}
