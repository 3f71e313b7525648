// api/store/visitor_store.go
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"visitorintel/api/intel"
	"visitorintel/api/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = intel.ErrNotFound

// VisitorStore is the Postgres system of record for visits, events and
// derived session rows. It also serves the engine's read queries.
type VisitorStore struct {
	db *sql.DB
}

func NewVisitorStore(db *sql.DB) *VisitorStore {
	return &VisitorStore{db: db}
}

var signalColumns = intel.FieldNames()

// kindColumns maps a label kind to its (identifier, label) columns.
func kindColumns(kind intel.Kind) (string, string, error) {
	switch kind {
	case intel.KindVisitor:
		return "fingerprint_id", "visitor_alias", nil
	case intel.KindSession:
		return "session_id", "session_label", nil
	default:
		return "", "", fmt.Errorf("unknown label kind %d", int(kind))
	}
}

func (s *VisitorStore) EarliestAssigned(ctx context.Context, kind intel.Kind, identifier string) (string, error) {
	idCol, labelCol, err := kindColumns(kind)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf(`
		SELECT %[2]s FROM visitor_logs
		WHERE %[1]s = $1 AND %[2]s IS NOT NULL
		ORDER BY id ASC
		LIMIT 1
	`, idCol, labelCol)

	var label string
	if err := s.db.QueryRowContext(ctx, query, pgText(identifier)).Scan(&label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to query earliest %s: %w", labelCol, err)
	}
	return label, nil
}

func (s *VisitorStore) CountAssigned(ctx context.Context, kind intel.Kind) (int, error) {
	_, labelCol, err := kindColumns(kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT %[1]s) FROM visitor_logs WHERE %[1]s IS NOT NULL`, labelCol)

	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count distinct %s: %w", labelCol, err)
	}
	return n, nil
}

func coalescedSignalColumns() string {
	cols := make([]string, len(signalColumns))
	for i, c := range signalColumns {
		cols[i] = fmt.Sprintf("COALESCE(%s, '')", c)
	}
	return strings.Join(cols, ", ")
}

func (s *VisitorStore) ListCandidates(ctx context.Context, excludeFingerprint string) ([]intel.Candidate, error) {
	query := fmt.Sprintf(`
		SELECT id, COALESCE(fingerprint_id, ''), visitor_alias, %s
		FROM visitor_logs
		WHERE entropy_data IS NOT NULL
		  AND visitor_alias IS NOT NULL
		  AND ($1 = '' OR fingerprint_id IS DISTINCT FROM $1)
		ORDER BY id ASC
	`, coalescedSignalColumns())

	rows, err := s.db.QueryContext(ctx, query, pgText(excludeFingerprint))
	if err != nil {
		return nil, fmt.Errorf("failed to query match candidates: %w", err)
	}
	defer rows.Close()

	var candidates []intel.Candidate
	for rows.Next() {
		var (
			c      intel.Candidate
			values = make([]string, len(signalColumns))
		)
		dest := []any{&c.VisitID, &c.FingerprintID, &c.VisitorAlias}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan match candidate: %w", err)
		}
		for i, f := range intel.Fields() {
			c.Signals.Set(f, values[i])
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during candidate query: %w", err)
	}
	return candidates, nil
}

func (s *VisitorStore) SessionEntryPage(ctx context.Context, sessionID string) (string, error) {
	query := `
		SELECT page FROM visitor_logs
		WHERE session_id = $1
		ORDER BY COALESCE(client_timestamp, timestamp) ASC, id ASC
		LIMIT 1
	`
	var page string
	if err := s.db.QueryRowContext(ctx, query, pgText(sessionID)).Scan(&page); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to query session entry page: %w", err)
	}
	return page, nil
}

func (s *VisitorStore) CountSessionVisits(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visitor_logs WHERE session_id = $1`, pgText(sessionID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count session visits: %w", err)
	}
	return n, nil
}

// pgText drops NUL characters, which Postgres rejects in text and jsonb.
func pgText(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func nullable(s string) sql.NullString {
	s = pgText(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// stripNUL applies pgText to every key and string value of decoded JSON.
func stripNUL(v any) any {
	switch t := v.(type) {
	case string:
		return pgText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[pgText(k)] = stripNUL(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripNUL(val)
		}
		return out
	default:
		return v
	}
}

func entropyJSON(raw map[string]any) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(stripNUL(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to encode entropy data: %w", err)
	}
	return string(b), nil
}

func eventJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode event data: %w", err)
	}
	b, err := json.Marshal(stripNUL(v))
	if err != nil {
		return nil, fmt.Errorf("failed to encode event data: %w", err)
	}
	return string(b), nil
}

func signalArgs(sig intel.Signals) []any {
	args := make([]any, 0, len(signalColumns))
	for _, f := range intel.Fields() {
		args = append(args, nullable(sig.Get(f)))
	}
	return args
}

func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ph, ", ")
}

// InsertVisit appends a visit and fills in its id and receipt time.
func (s *VisitorStore) InsertVisit(ctx context.Context, v *models.VisitLog) error {
	entropy, err := entropyJSON(v.EntropyData)
	if err != nil {
		return err
	}

	args := []any{
		v.ClientTimestamp, pgText(v.Page), pgText(v.Referrer), pgText(v.Device), nullable(v.SessionID), nullable(v.FingerprintID),
		nullable(v.IPAddress), nullable(v.City), nullable(v.Region), nullable(v.Country), nullable(v.Organization),
		nullable(v.UTM.Source), nullable(v.UTM.Medium), nullable(v.UTM.Campaign), nullable(v.UTM.Term), nullable(v.UTM.Content),
		entropy,
		nullable(v.VisitorAlias), nullable(v.SessionLabel),
		v.ProbableAlias, v.ProbableScore, v.BestMatchAlias, v.BestMatchScore,
	}
	base := len(args)
	args = append(args, signalArgs(v.Signals)...)

	query := fmt.Sprintf(`
		INSERT INTO visitor_logs (
			client_timestamp, page, referrer, device, session_id, fingerprint_id,
			ip_address, city, region, country, organization,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			entropy_data,
			visitor_alias, session_label,
			probable_alias, probable_score, best_match_alias, best_match_score,
			%s
		) VALUES (%s, %s)
		RETURNING id, timestamp
	`, strings.Join(signalColumns, ", "), placeholders(1, base), placeholders(base+1, len(signalColumns)))

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&v.ID, &v.Timestamp); err != nil {
		return fmt.Errorf("failed to insert visit: %w", err)
	}
	return nil
}

func (s *VisitorStore) InsertEvent(ctx context.Context, e *models.EventLog) error {
	entropy, err := entropyJSON(e.EntropyData)
	if err != nil {
		return err
	}
	eventData, err := eventJSON(e.EventData)
	if err != nil {
		return err
	}

	args := []any{
		e.ClientTimestamp, nullable(e.SessionID), nullable(e.FingerprintID), pgText(e.EventType), eventData, nullable(e.Page),
		nullable(e.IPAddress), nullable(e.City), nullable(e.Region), nullable(e.Country), nullable(e.Organization),
		entropy,
	}
	base := len(args)
	args = append(args, signalArgs(e.Signals)...)

	query := fmt.Sprintf(`
		INSERT INTO visitor_event_logs (
			client_timestamp, session_id, fingerprint_id, event_type, event_data, page,
			ip_address, city, region, country, organization,
			entropy_data,
			%s
		) VALUES (%s, %s)
		RETURNING id, timestamp
	`, strings.Join(signalColumns, ", "), placeholders(1, base), placeholders(base+1, len(signalColumns)))

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&e.ID, &e.Timestamp); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *VisitorStore) InsertDerived(ctx context.Context, d *models.DerivedLog) error {
	query := `
		INSERT INTO visitor_derived_logs (
			visit_id, session_id, fingerprint_id,
			visit_type, traffic_type, entry_page, bounced, geo_region_type, landing_source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, timestamp
	`
	err := s.db.QueryRowContext(ctx, query,
		d.VisitID, nullable(d.SessionID), nullable(d.FingerprintID),
		d.VisitType, d.TrafficType, d.EntryPage, d.Bounced, d.GeoRegionType, d.LandingSource,
	).Scan(&d.ID, &d.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert derived session row: %w", err)
	}
	return nil
}

// RecordExit closes the most recent open visit of the session on page. A
// visit's exit is set at most once.
func (s *VisitorStore) RecordExit(ctx context.Context, sessionID, page string, exitAt time.Time) (models.ExitResult, error) {
	query := `
		UPDATE visitor_logs
		SET exit_time = $3::timestamptz,
		    time_on_page = GREATEST(EXTRACT(EPOCH FROM ($3::timestamptz - COALESCE(client_timestamp, timestamp))), 0)
		WHERE id = (
			SELECT id FROM visitor_logs
			WHERE session_id = $1 AND page = $2 AND exit_time IS NULL
			ORDER BY id DESC
			LIMIT 1
		) AND exit_time IS NULL
		RETURNING id, exit_time, time_on_page
	`
	var res models.ExitResult
	err := s.db.QueryRowContext(ctx, query, pgText(sessionID), pgText(page), exitAt).Scan(&res.VisitID, &res.ExitTime, &res.TimeOnPage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ExitResult{}, ErrNotFound
		}
		return models.ExitResult{}, fmt.Errorf("failed to record exit: %w", err)
	}
	return res, nil
}

func (s *VisitorStore) ListVisits(ctx context.Context, limit int) ([]models.VisitLog, error) {
	query := fmt.Sprintf(`
		SELECT id, timestamp, client_timestamp, page, COALESCE(referrer, ''), COALESCE(device, ''),
			COALESCE(session_id, ''), COALESCE(fingerprint_id, ''),
			COALESCE(ip_address, ''), COALESCE(city, ''), COALESCE(region, ''), COALESCE(country, ''), COALESCE(organization, ''),
			COALESCE(utm_source, ''), COALESCE(utm_medium, ''), COALESCE(utm_campaign, ''), COALESCE(utm_term, ''), COALESCE(utm_content, ''),
			entropy_data,
			COALESCE(visitor_alias, ''), COALESCE(session_label, ''),
			probable_alias, probable_score, best_match_alias, COALESCE(best_match_score, 0),
			exit_time, time_on_page,
			%s
		FROM visitor_logs
		ORDER BY id DESC
		LIMIT $1
	`, coalescedSignalColumns())

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	defer rows.Close()

	var visits []models.VisitLog
	for rows.Next() {
		var (
			v       models.VisitLog
			entropy []byte
			values  = make([]string, len(signalColumns))
		)
		dest := []any{
			&v.ID, &v.Timestamp, &v.ClientTimestamp, &v.Page, &v.Referrer, &v.Device,
			&v.SessionID, &v.FingerprintID,
			&v.IPAddress, &v.City, &v.Region, &v.Country, &v.Organization,
			&v.UTM.Source, &v.UTM.Medium, &v.UTM.Campaign, &v.UTM.Term, &v.UTM.Content,
			&entropy,
			&v.VisitorAlias, &v.SessionLabel,
			&v.ProbableAlias, &v.ProbableScore, &v.BestMatchAlias, &v.BestMatchScore,
			&v.ExitTime, &v.TimeOnPage,
		}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan visit row: %w", err)
		}
		if len(entropy) > 0 {
			if err := json.Unmarshal(entropy, &v.EntropyData); err != nil {
				return nil, fmt.Errorf("failed to decode entropy data of visit %d: %w", v.ID, err)
			}
		}
		for i, f := range intel.Fields() {
			v.Signals.Set(f, values[i])
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during visits query: %w", err)
	}
	return visits, nil
}

func (s *VisitorStore) ListEvents(ctx context.Context, limit int) ([]models.EventLog, error) {
	query := fmt.Sprintf(`
		SELECT id, timestamp, client_timestamp, COALESCE(session_id, ''), COALESCE(fingerprint_id, ''),
			event_type, event_data, COALESCE(page, ''),
			COALESCE(ip_address, ''), COALESCE(city, ''), COALESCE(region, ''), COALESCE(country, ''), COALESCE(organization, ''),
			entropy_data,
			%s
		FROM visitor_event_logs
		ORDER BY id DESC
		LIMIT $1
	`, coalescedSignalColumns())

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.EventLog
	for rows.Next() {
		var (
			e         models.EventLog
			eventData []byte
			entropy   []byte
			values    = make([]string, len(signalColumns))
		)
		dest := []any{
			&e.ID, &e.Timestamp, &e.ClientTimestamp, &e.SessionID, &e.FingerprintID,
			&e.EventType, &eventData, &e.Page,
			&e.IPAddress, &e.City, &e.Region, &e.Country, &e.Organization,
			&entropy,
		}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if len(eventData) > 0 {
			e.EventData = json.RawMessage(eventData)
		}
		if len(entropy) > 0 {
			if err := json.Unmarshal(entropy, &e.EntropyData); err != nil {
				return nil, fmt.Errorf("failed to decode entropy data of event %d: %w", e.ID, err)
			}
		}
		for i, f := range intel.Fields() {
			e.Signals.Set(f, values[i])
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during events query: %w", err)
	}
	return events, nil
}

func (s *VisitorStore) ListDerived(ctx context.Context, limit int) ([]models.DerivedLog, error) {
	query := `
		SELECT id, visit_id, timestamp, COALESCE(session_id, ''), COALESCE(fingerprint_id, ''),
			visit_type, traffic_type, entry_page, bounced, geo_region_type, landing_source
		FROM visitor_derived_logs
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query derived rows: %w", err)
	}
	defer rows.Close()

	var out []models.DerivedLog
	for rows.Next() {
		var d models.DerivedLog
		if err := rows.Scan(
			&d.ID, &d.VisitID, &d.Timestamp, &d.SessionID, &d.FingerprintID,
			&d.VisitType, &d.TrafficType, &d.EntryPage, &d.Bounced, &d.GeoRegionType, &d.LandingSource,
		); err != nil {
			return nil, fmt.Errorf("failed to scan derived row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during derived query: %w", err)
	}
	return out, nil
}
