package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"garden-push-backend/internal/model"
)

// ErrSubscriptionNotFound is returned by Unregister when no row matched.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// Store defines the interface for all database operations: the push
// subscription registry and the append-only occupancy ledger.
type Store interface {
	// Subscription registry.
	Register(ctx context.Context, sub model.PushSubscription) (created bool, err error)
	Unregister(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	RemoveInvalid(ctx context.Context, endpoint string) error

	// Occupancy ledger.
	RecordTransition(ctx context.Context, evt model.OccupancyEvent) (*model.OccupancyRecord, error)
	LatestRecord(ctx context.Context, family string, state model.GardenState) (*model.OccupancyRecord, error)
	QueryRecords(ctx context.Context, q RecordQuery) (*RecordPage, error)
	DailyStats(ctx context.Context, q RecordQuery, limit int) ([]DailyStat, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
	// writeMu serializes ledger writes: the broker path and the administrative
	// force-state path may append concurrently, and the durata derivation is a
	// read-then-write.
	writeMu sync.Mutex
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Register inserts the subscription unless one with the same endpoint already
// exists. Duplicate input is a no-op success.
func (s *gormStore) Register(ctx context.Context, sub model.PushSubscription) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoNothing: true,
	}).Create(&sub)
	if res.Error != nil {
		return false, fmt.Errorf("failed to register subscription: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Unregister removes the subscription with the given endpoint.
func (s *gormStore) Unregister(ctx context.Context, endpoint string) error {
	res := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint})
	if res.Error != nil {
		return fmt.Errorf("failed to unregister subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptions returns a snapshot of all registered subscriptions.
func (s *gormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// RemoveInvalid unconditionally removes the endpoint. Used by the notification
// dispatcher when the push service reports the endpoint as permanently gone;
// a missing row is not an error.
func (s *gormStore) RemoveInvalid(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to remove invalid subscription: %w", err)
	}
	return nil
}

// RecordTransition appends a new occupancy record for the event, deriving the
// occupation duration when a "libero" event closes an interval. The duration
// uses the family's latest "occupato" record regardless of intervening
// "libero" records.
func (s *gormStore) RecordTransition(ctx context.Context, evt model.OccupancyEvent) (*model.OccupancyRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record := model.OccupancyRecord{
		Timestamp: evt.Timestamp,
		Family:    evt.Family,
		State:     evt.State,
	}

	if evt.State == model.StateFree {
		lastOccupied, err := s.LatestRecord(ctx, evt.Family, model.StateOccupied)
		if err != nil {
			return nil, err
		}
		if lastOccupied != nil {
			minutes := int64(evt.Timestamp.Sub(lastOccupied.Timestamp).Minutes())
			if minutes >= 0 {
				record.DurationMinutes = &minutes
			} else {
				// Out-of-order sensor timestamps; keep the record but do not
				// fabricate a negative duration.
				log.Printf("negative duration for family %q (libero at %s before occupato at %s); durata left unset",
					evt.Family, evt.Timestamp, lastOccupied.Timestamp)
			}
		}
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to persist occupancy record: %w", err)
	}
	return &record, nil
}

// LatestRecord returns the newest record for the (family, state) pair, or nil
// when none exists.
func (s *gormStore) LatestRecord(ctx context.Context, family string, state model.GardenState) (*model.OccupancyRecord, error) {
	var record model.OccupancyRecord
	err := s.db.WithContext(ctx).
		Where("famiglia = ? AND stato = ?", family, state).
		Order("timestamp DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up latest record: %w", err)
	}
	return &record, nil
}

// QueryRecords returns one page of the filtered history together with the
// total count and aggregates over the whole filtered set.
func (s *gormStore) QueryRecords(ctx context.Context, q RecordQuery) (*RecordPage, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 || q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}

	var total int64
	if err := s.filtered(ctx, q).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	order := "timestamp DESC"
	if !q.SortDesc {
		order = "timestamp ASC"
	}

	records := make([]model.OccupancyRecord, 0, q.PageSize)
	if err := s.filtered(ctx, q).
		Order(order).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	aggs, err := s.aggregates(ctx, q)
	if err != nil {
		return nil, err
	}

	return &RecordPage{
		Records:    records,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Aggregates: *aggs,
	}, nil
}

func (s *gormStore) aggregates(ctx context.Context, q RecordQuery) (*RecordAggregates, error) {
	type stateCount struct {
		Stato model.GardenState
		Count int64
	}
	var counts []stateCount
	if err := s.filtered(ctx, q).
		Select("stato, COUNT(*) as count").
		Group("stato").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate state counts: %w", err)
	}

	var aggs RecordAggregates
	for _, c := range counts {
		switch c.Stato {
		case model.StateOccupied:
			aggs.OccupiedCount = c.Count
		case model.StateFree:
			aggs.FreeCount = c.Count
		}
	}

	var avg sql.NullFloat64
	if err := s.filtered(ctx, q).
		Select("AVG(durata)").
		Where("durata IS NOT NULL").
		Scan(&avg).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate average duration: %w", err)
	}
	if avg.Valid {
		aggs.AverageDurationMinutes = &avg.Float64
	}

	return &aggs, nil
}

// DailyStats returns a per-day rollup over the filtered time range, most
// recent day first.
func (s *gormStore) DailyStats(ctx context.Context, q RecordQuery, limit int) ([]DailyStat, error) {
	if limit <= 0 {
		limit = 30
	}

	stats := make([]DailyStat, 0, limit)
	err := s.filtered(ctx, q).
		Select("DATE(timestamp) as day, COUNT(*) as total, "+
			"SUM(CASE WHEN stato = ? THEN 1 ELSE 0 END) as occupied_count, "+
			"SUM(CASE WHEN stato = ? THEN 1 ELSE 0 END) as free_count",
			model.StateOccupied, model.StateFree).
		Group("day").
		Order("day DESC").
		Limit(limit).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily stats: %w", err)
	}
	return stats, nil
}

// filtered builds the base query applying the RecordQuery filters.
func (s *gormStore) filtered(ctx context.Context, q RecordQuery) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&model.OccupancyRecord{})
	if q.Family != "" {
		tx = tx.Where("famiglia = ?", q.Family)
	}
	if q.State != "" {
		tx = tx.Where("stato = ?", q.State)
	}
	if q.From != nil {
		tx = tx.Where("timestamp >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("timestamp <= ?", *q.To)
	}
	return tx
}
