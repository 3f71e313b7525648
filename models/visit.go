// api/models/visit.go
package models

import (
	"encoding/json"
	"time"

	"visitorintel/api/intel"
)

// VisitRequest is the body of POST /api/log-visit.
type VisitRequest struct {
	Page            string         `json:"page" binding:"required"`
	Referrer        string         `json:"referrer"`
	Device          string         `json:"device"`
	SessionID       string         `json:"session_id"`
	UTMSource       string         `json:"utm_source"`
	UTMMedium       string         `json:"utm_medium"`
	UTMCampaign     string         `json:"utm_campaign"`
	UTMTerm         string         `json:"utm_term"`
	UTMContent      string         `json:"utm_content"`
	FingerprintID   string         `json:"fingerprint_id"`
	EntropyData     map[string]any `json:"entropy_data"`
	ClientTimestamp string         `json:"client_timestamp"`
}

// EventRequest is the body of POST /api/log-event.
type EventRequest struct {
	EventType       string          `json:"event_type" binding:"required"`
	EventData       json.RawMessage `json:"event_data"`
	Page            string          `json:"page"`
	SessionID       string          `json:"session_id"`
	FingerprintID   string          `json:"fingerprint_id"`
	EntropyData     map[string]any  `json:"entropy_data"`
	ClientTimestamp string          `json:"client_timestamp"`
}

// ExitRequest is the body of POST /api/log-exit.
type ExitRequest struct {
	SessionID     string `json:"session_id" binding:"required"`
	Page          string `json:"page" binding:"required"`
	ExitTimestamp string `json:"exit_timestamp"`
}

// Geo is the IP enrichment attached to visits and events.
type Geo struct {
	IPAddress    string `json:"ip_address,omitempty"`
	City         string `json:"city,omitempty"`
	Region       string `json:"region,omitempty"`
	Country      string `json:"country,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// UTM holds the campaign parameters of a landing URL.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Content  string `json:"utm_content,omitempty"`
}

// VisitLog is one row of visitor_logs.
type VisitLog struct {
	ID              int64      `json:"id"`
	Timestamp       time.Time  `json:"timestamp"`
	ClientTimestamp *time.Time `json:"client_timestamp,omitempty"`
	Page            string     `json:"page"`
	Referrer        string     `json:"referrer"`
	Device          string     `json:"device"`
	SessionID       string     `json:"session_id,omitempty"`
	FingerprintID   string     `json:"fingerprint_id,omitempty"`
	Geo
	UTM
	EntropyData    map[string]any `json:"entropy_data,omitempty"`
	Signals        intel.Signals  `json:"signals"`
	VisitorAlias   string         `json:"visitor_alias,omitempty"`
	SessionLabel   string         `json:"session_label,omitempty"`
	ProbableAlias  *string        `json:"probable_alias"`
	ProbableScore  *float64       `json:"probable_score"`
	BestMatchAlias *string        `json:"best_match_alias"`
	BestMatchScore float64        `json:"best_match_score"`
	ExitTime       *time.Time     `json:"exit_time,omitempty"`
	TimeOnPage     *float64       `json:"time_on_page,omitempty"`
}

// EffectiveTime is the client time when reported, else the receipt time.
func (v VisitLog) EffectiveTime() time.Time {
	if v.ClientTimestamp != nil {
		return *v.ClientTimestamp
	}
	return v.Timestamp
}

// EventLog is one row of visitor_event_logs.
type EventLog struct {
	ID              int64           `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	ClientTimestamp *time.Time      `json:"client_timestamp,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	FingerprintID   string          `json:"fingerprint_id,omitempty"`
	EventType       string          `json:"event_type"`
	EventData       json.RawMessage `json:"event_data,omitempty"`
	Page            string          `json:"page,omitempty"`
	Geo
	EntropyData map[string]any `json:"entropy_data,omitempty"`
	Signals     intel.Signals  `json:"signals"`
}

// DerivedLog is one row of visitor_derived_logs.
type DerivedLog struct {
	ID            int64     `json:"id"`
	VisitID       int64     `json:"visit_id"`
	Timestamp     time.Time `json:"timestamp"`
	SessionID     string    `json:"session_id,omitempty"`
	FingerprintID string    `json:"fingerprint_id,omitempty"`
	intel.Derivation
}

// ExitResult reports the visit an exit event closed.
type ExitResult struct {
	VisitID    int64     `json:"visit_id"`
	ExitTime   time.Time `json:"exit_time"`
	TimeOnPage float64   `json:"time_on_page"`
}

// VisitOutcome is returned to the tracking script after a visit is logged.
type VisitOutcome struct {
	VisitID        int64            `json:"visit_id"`
	VisitorAlias   string           `json:"visitor_alias,omitempty"`
	SessionLabel   string           `json:"session_label,omitempty"`
	ProbableAlias  *string          `json:"probable_alias"`
	ProbableScore  *float64         `json:"probable_score"`
	BestMatchAlias *string          `json:"best_match_alias"`
	BestMatchScore float64          `json:"best_match_score"`
	Derived        intel.Derivation `json:"derived"`
}

// TopPageResult is one row of the top-pages report.
type TopPageResult struct {
	Page  string `json:"page"`
	Count uint64 `json:"count"`
}
