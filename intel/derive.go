package intel

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	VisitNew       = "New"
	VisitReturning = "Returning"

	TrafficDirect   = "Direct"
	TrafficPaid     = "Paid"
	TrafficReferral = "Referral"

	BouncedYes = "Yes"
	BouncedNo  = "No"

	GeoDomestic      = "Domestic"
	GeoInternational = "International"

	LandingDirect   = "direct"
	LandingUTM      = "utm"
	LandingReferrer = "referrer"
)

// directReferrer is what the tracking script sends when document.referrer is empty.
const directReferrer = "Direct"

// VisitFacts are the fields of the current visit derivation looks at.
type VisitFacts struct {
	Page      string
	Referrer  string
	SessionID string
	UTMSource string
	Country   string
}

// Derivation holds the session classification of one visit.
type Derivation struct {
	VisitType     string `json:"visit_type"`
	TrafficType   string `json:"traffic_type"`
	EntryPage     string `json:"entry_page"`
	Bounced       string `json:"bounced"`
	GeoRegionType string `json:"geo_region_type"`
	LandingSource string `json:"landing_source"`
}

// Deriver classifies visits against the stored session history.
type Deriver struct {
	store       Store
	homeCountry string
}

func NewDeriver(store Store, homeCountry string) *Deriver {
	return &Deriver{store: store, homeCountry: strings.TrimSpace(homeCountry)}
}

// Derive must run after the current visit has been stored, so that the
// session count and entry page include it. Nothing is cached; a session's
// bounce flag flips to No once a second visit is stored.
func (d *Deriver) Derive(ctx context.Context, v VisitFacts, returning bool) (Derivation, error) {
	out := Derivation{
		VisitType:     VisitNew,
		TrafficType:   TrafficType(v.UTMSource, v.Referrer),
		EntryPage:     v.Page,
		Bounced:       BouncedYes,
		GeoRegionType: d.GeoRegionType(v.Country),
		LandingSource: LandingSource(v.UTMSource, v.Referrer),
	}
	if returning {
		out.VisitType = VisitReturning
	}
	if v.SessionID == "" {
		return out, nil
	}

	entry, err := d.store.SessionEntryPage(ctx, v.SessionID)
	switch {
	case err == nil:
		out.EntryPage = entry
	case !errors.Is(err, ErrNotFound):
		return Derivation{}, fmt.Errorf("failed to find session entry page: %w", err)
	}

	count, err := d.store.CountSessionVisits(ctx, v.SessionID)
	if err != nil {
		return Derivation{}, fmt.Errorf("failed to count session visits: %w", err)
	}
	if count > 1 {
		out.Bounced = BouncedNo
	}
	return out, nil
}

func (d *Deriver) GeoRegionType(country string) string {
	if d.homeCountry != "" && strings.EqualFold(strings.TrimSpace(country), d.homeCountry) {
		return GeoDomestic
	}
	return GeoInternational
}

func hasReferrer(referrer string) bool {
	referrer = strings.TrimSpace(referrer)
	return referrer != "" && referrer != directReferrer
}

func TrafficType(utmSource, referrer string) string {
	switch {
	case strings.TrimSpace(utmSource) != "":
		return TrafficPaid
	case hasReferrer(referrer):
		return TrafficReferral
	default:
		return TrafficDirect
	}
}

func LandingSource(utmSource, referrer string) string {
	switch {
	case strings.TrimSpace(utmSource) != "":
		return LandingUTM
	case hasReferrer(referrer):
		return LandingReferrer
	default:
		return LandingDirect
	}
}
