package store

import (
	"time"

	"garden-push-backend/internal/model"
)

// MaxPageSize bounds the page size of record queries.
const MaxPageSize = 100

// RecordQuery describes a filtered, paginated query over the occupancy history.
type RecordQuery struct {
	Family   string
	State    model.GardenState
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
	// SortDesc orders by timestamp descending when true (the default).
	SortDesc bool
}

// RecordAggregates summarizes the filtered record set.
type RecordAggregates struct {
	OccupiedCount int64 `json:"occupato"`
	FreeCount     int64 `json:"libero"`
	// AverageDurationMinutes is nil when no record in the set carries a durata.
	AverageDurationMinutes *float64 `json:"durataMedia"`
}

// RecordPage is one page of query results plus the totals over the whole
// filtered set.
type RecordPage struct {
	Records    []model.OccupancyRecord `json:"records"`
	TotalCount int64                   `json:"totalCount"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"pageSize"`
	Aggregates RecordAggregates        `json:"aggregates"`
}

// DailyStat is one day of the occupancy rollup.
type DailyStat struct {
	Day           string `json:"day"`
	Total         int64  `json:"total"`
	OccupiedCount int64  `json:"occupato"`
	FreeCount     int64  `json:"libero"`
}
