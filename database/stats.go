package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// TimelinePhotoCount is one row of the per-timeline aggregate.
type TimelinePhotoCount struct {
	TimelineID uint   `json:"timeline_id"`
	Title      string `json:"title"`
	PhotoCount int64  `json:"photo_count"`
	FirstTaken *int64 `json:"first_taken,omitempty"` // earliest effective capture date, Unix timestamp
	LastTaken  *int64 `json:"last_taken,omitempty"`  // latest effective capture date, Unix timestamp
}

// LibraryStats summarizes the photo library as recorded in the database.
type LibraryStats struct {
	TimelineCount int64                `json:"timeline_count"`
	PhotoCount    int64                `json:"photo_count"`
	Timelines     []TimelinePhotoCount `json:"timelines"`
}

// effectiveDateExpr mirrors the manual > EXIF > added priority chain in SQL.
const effectiveDateExpr = "COALESCE(photos.manual_at, photos.taken_at, photos.added_at)"

// GetLibraryStats runs the aggregate reporting queries against the raw
// connection. Soft-deleted rows are excluded to match what GORM reads.
func GetLibraryStats(db *sql.DB) (*LibraryStats, error) {
	stats := &LibraryStats{Timelines: []TimelinePhotoCount{}}

	countQuery := psql.Select("COUNT(*)").From("timelines").Where(sq.Eq{"deleted_at": nil})
	sqlStr, args, err := countQuery.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build timeline count query: %w", err)
	}
	if err := db.QueryRow(sqlStr, args...).Scan(&stats.TimelineCount); err != nil {
		return nil, fmt.Errorf("failed to count timelines: %w", err)
	}

	countQuery = psql.Select("COUNT(*)").From("photos").Where(sq.Eq{"deleted_at": nil})
	sqlStr, args, err = countQuery.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build photo count query: %w", err)
	}
	if err := db.QueryRow(sqlStr, args...).Scan(&stats.PhotoCount); err != nil {
		return nil, fmt.Errorf("failed to count photos: %w", err)
	}

	perTimeline := psql.Select(
		"timelines.id",
		"timelines.title",
		"COUNT(photos.id)",
		fmt.Sprintf("MIN(%s)", effectiveDateExpr),
		fmt.Sprintf("MAX(%s)", effectiveDateExpr),
	).
		From("timelines").
		LeftJoin("photos ON photos.timeline_id = timelines.id AND photos.deleted_at IS NULL").
		Where(sq.Eq{"timelines.deleted_at": nil}).
		GroupBy("timelines.id", "timelines.title").
		OrderBy("timelines.id ASC")

	sqlStr, args, err = perTimeline.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build per-timeline stats query: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query per-timeline stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row TimelinePhotoCount
		if err := rows.Scan(&row.TimelineID, &row.Title, &row.PhotoCount, &row.FirstTaken, &row.LastTaken); err != nil {
			return nil, fmt.Errorf("failed to scan per-timeline stats row: %w", err)
		}
		stats.Timelines = append(stats.Timelines, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating per-timeline stats: %w", err)
	}

	return stats, nil
}
