// api/store/analytics_store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"visitorintel/api/database"
	"visitorintel/api/logger"
	"visitorintel/api/models"
	"visitorintel/api/utils"
)

// AnalyticsStore mirrors visits into a ClickHouse fact table and answers the
// aggregate stats queries.
type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

type CountByTime struct {
	Time        time.Time `json:"time"`
	TrafficType *string   `json:"trafficType,omitempty"`
	Count       uint64    `json:"count"`
}

type BounceRate struct {
	Sessions uint64  `json:"sessions"`
	Bounced  uint64  `json:"bounced"`
	Rate     float64 `json:"rate"`
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB: chClient,
	}
}

const visitFactsDDL = `
	CREATE TABLE IF NOT EXISTS visit_facts (
		event_id UUID,
		visit_id Int64,
		timestamp DateTime64(3, 'UTC'),
		page String,
		referrer String,
		device String,
		session_id String,
		fingerprint_id String,
		visitor_alias String,
		session_label String,
		probable_alias Nullable(String),
		best_match_score Float64,
		country String,
		city String,
		utm_source String,
		utm_campaign String,
		visit_type LowCardinality(String),
		traffic_type LowCardinality(String),
		entry_page String,
		bounced LowCardinality(String),
		geo_region_type LowCardinality(String),
		landing_source LowCardinality(String)
	) ENGINE = MergeTree
	ORDER BY (timestamp, visit_id)
`

// EnsureSchema creates the fact table when missing.
func (s *AnalyticsStore) EnsureSchema(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, visitFactsDDL); err != nil {
		return fmt.Errorf("failed to create visit_facts table: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) Name() string { return "clickhouse" }

// PublishVisit appends one visit with its derived classification.
func (s *AnalyticsStore) PublishVisit(ctx context.Context, visit models.VisitLog, derived models.DerivedLog) error {
	return s.InsertVisitFacts(ctx, []models.VisitLog{visit}, []models.DerivedLog{derived})
}

// InsertVisitFacts batch-inserts visits; derived[i] must belong to visits[i].
// A row that cannot be appended aborts the whole batch.
func (s *AnalyticsStore) InsertVisitFacts(ctx context.Context, visits []models.VisitLog, derived []models.DerivedLog) error {
	if len(visits) == 0 {
		return nil
	}
	if len(visits) != len(derived) {
		return fmt.Errorf("visit/derived length mismatch: %d vs %d", len(visits), len(derived))
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO visit_facts (
			event_id, visit_id, timestamp, page, referrer, device, session_id, fingerprint_id,
			visitor_alias, session_label, probable_alias, best_match_score,
			country, city, utm_source, utm_campaign,
			visit_type, traffic_type, entry_page, bounced, geo_region_type, landing_source
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for i, v := range visits {
		d := derived[i]
		err := batch.Append(
			uuid.New(),
			v.ID,
			v.EffectiveTime(),
			v.Page,
			v.Referrer,
			v.Device,
			v.SessionID,
			v.FingerprintID,
			v.VisitorAlias,
			v.SessionLabel,
			v.ProbableAlias,
			v.BestMatchScore,
			v.Country,
			v.City,
			v.UTM.Source,
			v.UTM.Campaign,
			d.VisitType,
			d.TrafficType,
			d.EntryPage,
			d.Bounced,
			d.GeoRegionType,
			d.LandingSource,
		)
		if err != nil {
			if abortErr := batch.Abort(); abortErr != nil {
				logger.Warnf("Error aborting visit_facts batch: %v", abortErr)
			}
			return fmt.Errorf("failed to append visit %d: %w", v.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// GetVisitCountsOverTime buckets visits by interval, optionally split by traffic type.
func (s *AnalyticsStore) GetVisitCountsOverTime(ctx context.Context, interval string, start, end time.Time, trafficType string) ([]CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []any{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) AS time_bucket, count() AS total", interval)
	groupBy := "time_bucket"
	where := "WHERE timestamp >= ? AND timestamp <= ?"
	orderBy := "time_bucket ASC"
	filtered := trafficType != ""
	if filtered {
		selectCols += ", traffic_type"
		groupBy += ", traffic_type"
		where += " AND traffic_type = ?"
		args = append(args, trafficType)
		orderBy += ", traffic_type ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM visit_facts
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, where, groupBy, orderBy)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query visit counts over time: %w", err)
	}
	defer rows.Close()

	var results []CountByTime
	for rows.Next() {
		var (
			r      CountByTime
			bucket time.Time
			count  uint64
			tt     string
		)
		if filtered {
			if err := rows.Scan(&bucket, &count, &tt); err != nil {
				return nil, fmt.Errorf("failed to scan visit count row: %w", err)
			}
			r.TrafficType = &tt
		} else if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("failed to scan visit count row: %w", err)
		}
		r.Time = bucket
		r.Count = count
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during visit counts query: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetUniqueVisitorsOverTime(ctx context.Context, interval string, start, end time.Time) ([]CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(visitor_alias) AS unique_visitors
		FROM visit_facts
		WHERE timestamp >= ? AND timestamp <= ? AND visitor_alias != ''
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique visitors over time: %w", err)
	}
	defer rows.Close()

	var results []CountByTime
	for rows.Next() {
		var r CountByTime
		if err := rows.Scan(&r.Time, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan unique visitors row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique visitors: %w", err)
	}
	return results, nil
}

func (s *AnalyticsStore) GetTopPages(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopPageResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT page, count() AS view_count
		FROM visit_facts
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY page
		ORDER BY view_count DESC, page ASC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var results []models.TopPageResult
	for rows.Next() {
		var r models.TopPageResult
		if err := rows.Scan(&r.Page, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top pages row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top pages: %w", err)
	}
	return results, nil
}

// GetBounceRate uses the latest derived row per session, since a session's
// bounce flag is re-evaluated on every visit.
func (s *AnalyticsStore) GetBounceRate(ctx context.Context, start, end time.Time) (BounceRate, error) {
	query := `
		SELECT count() AS sessions, countIf(last_bounced = 'Yes') AS bounced
		FROM (
			SELECT session_id, argMax(bounced, visit_id) AS last_bounced
			FROM visit_facts
			WHERE timestamp >= ? AND timestamp <= ? AND session_id != ''
			GROUP BY session_id
		)
	`
	var out BounceRate
	err := s.DB.Conn.QueryRow(ctx, query, start, end).Scan(&out.Sessions, &out.Bounced)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BounceRate{}, nil
		}
		return BounceRate{}, fmt.Errorf("failed to query bounce rate: %w", err)
	}
	if out.Sessions > 0 {
		out.Rate = float64(out.Bounced) / float64(out.Sessions)
	}
	return out, nil
}
