package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"visitorintel/api/models"
)

// Airtable appends one record per visit to an Airtable table.
type Airtable struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewAirtable(baseURL, token, baseID, table string) *Airtable {
	return &Airtable{
		endpoint: fmt.Sprintf("%s/%s/%s", strings.TrimRight(baseURL, "/"), url.PathEscape(baseID), url.PathEscape(table)),
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *Airtable) Name() string { return "airtable" }

type airtableRecord struct {
	Fields map[string]any `json:"fields"`
}

// airtableFields maps a visit onto the column names of the Visitors Log table.
// Empty values are left out so that Airtable keeps cells blank.
func airtableFields(v models.VisitLog, d models.DerivedLog) map[string]any {
	fields := map[string]any{
		"Timestamp":        v.EffectiveTime().UTC().Format(time.RFC3339),
		"Page":             v.Page,
		"Best Match Score": v.BestMatchScore,
		"Visit Type":       d.VisitType,
		"Traffic Type":     d.TrafficType,
		"Entry Page":       d.EntryPage,
		"Bounced":          d.Bounced,
		"Geo Region Type":  d.GeoRegionType,
		"Landing Source":   d.LandingSource,
	}
	optional := map[string]string{
		"Referrer":       v.Referrer,
		"Device":         v.Device,
		"Session ID":     v.SessionID,
		"Fingerprint ID": v.FingerprintID,
		"Visitor Alias":  v.VisitorAlias,
		"Session Label":  v.SessionLabel,
		"IP Address":     v.IPAddress,
		"City":           v.City,
		"Region":         v.Region,
		"Country":        v.Country,
		"Organization":   v.Organization,
		"UTM Source":     v.UTM.Source,
		"UTM Medium":     v.UTM.Medium,
		"UTM Campaign":   v.UTM.Campaign,
	}
	for k, val := range optional {
		if val != "" {
			fields[k] = val
		}
	}
	if v.ProbableAlias != nil {
		fields["Probable Alias"] = *v.ProbableAlias
	}
	if v.BestMatchAlias != nil {
		fields["Best Match Alias"] = *v.BestMatchAlias
	}
	return fields
}

func (a *Airtable) PublishVisit(ctx context.Context, visit models.VisitLog, derived models.DerivedLog) error {
	body, err := json.Marshal(airtableRecord{Fields: airtableFields(visit, derived)})
	if err != nil {
		return fmt.Errorf("failed to encode airtable record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build airtable request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("airtable request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("airtable returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
