// Package tracking runs the visit, event and exit pipelines on top of the
// identity engine.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"visitorintel/api/intel"
	"visitorintel/api/logger"
	"visitorintel/api/metrics"
	"visitorintel/api/models"
	"visitorintel/api/publish"
	"visitorintel/api/utils"
)

// ErrInvalidTimestamp is returned for an exit timestamp that cannot be parsed.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Repository is the visitor record store.
type Repository interface {
	intel.Store
	InsertVisit(ctx context.Context, visit *models.VisitLog) error
	InsertEvent(ctx context.Context, event *models.EventLog) error
	InsertDerived(ctx context.Context, derived *models.DerivedLog) error
	RecordExit(ctx context.Context, sessionID, page string, exitAt time.Time) (models.ExitResult, error)
}

type GeoLookup interface {
	Lookup(ctx context.Context, ip string) models.Geo
}

type Service struct {
	repo      Repository
	resolver  *intel.Resolver
	deriver   *intel.Deriver
	geo       GeoLookup
	publisher publish.Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService wires the pipelines. geo and publisher may be nil.
func NewService(repo Repository, resolver *intel.Resolver, deriver *intel.Deriver, geo GeoLookup, publisher publish.Publisher) *Service {
	return &Service{
		repo:      repo,
		resolver:  resolver,
		deriver:   deriver,
		geo:       geo,
		publisher: publisher,
		tracer:    otel.Tracer("visitorintel/tracking"),
		now:       time.Now,
	}
}

func (s *Service) lookupGeo(ctx context.Context, ip string) models.Geo {
	if s.geo == nil {
		return models.Geo{IPAddress: ip}
	}
	ctx, span := s.tracer.Start(ctx, "geo.lookup")
	defer span.End()
	return s.geo.Lookup(ctx, ip)
}

// clientTime treats an unparseable client timestamp as absent.
func clientTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := utils.ParseClientTimestamp(raw)
	if err != nil {
		logger.Warnf("Ignoring client timestamp: %v", err)
		return nil
	}
	return &t
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// LogVisit stores a page view together with its identity resolution and
// session classification. Store failures abort the visit; publisher failures
// are only logged.
func (s *Service) LogVisit(ctx context.Context, req models.VisitRequest, ip string) (models.VisitOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "tracking.LogVisit")
	defer span.End()

	visit := models.VisitLog{
		ClientTimestamp: clientTime(req.ClientTimestamp),
		Page:            req.Page,
		Referrer:        req.Referrer,
		Device:          req.Device,
		SessionID:       req.SessionID,
		FingerprintID:   req.FingerprintID,
		UTM: models.UTM{
			Source:   req.UTMSource,
			Medium:   req.UTMMedium,
			Campaign: req.UTMCampaign,
			Term:     req.UTMTerm,
			Content:  req.UTMContent,
		},
		EntropyData: req.EntropyData,
		Signals:     intel.ExtractSignals(req.EntropyData),
	}
	visit.Geo = s.lookupGeo(ctx, ip)

	start := time.Now()
	rctx, rspan := s.tracer.Start(ctx, "intel.Resolve")
	res, err := s.resolver.Resolve(rctx, intel.Identity{
		FingerprintID: visit.FingerprintID,
		SessionID:     visit.SessionID,
		Signals:       visit.Signals,
	})
	rspan.End()
	metrics.ResolveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return models.VisitOutcome{}, fail(span, fmt.Errorf("failed to resolve visitor identity: %w", err))
	}

	visit.VisitorAlias = res.VisitorAlias
	visit.SessionLabel = res.SessionLabel
	visit.ProbableAlias = res.ProbableAlias
	visit.ProbableScore = res.ProbableScore
	visit.BestMatchAlias = res.BestMatchAlias
	visit.BestMatchScore = res.BestMatchScore

	if err := s.repo.InsertVisit(ctx, &visit); err != nil {
		return models.VisitOutcome{}, fail(span, fmt.Errorf("failed to store visit: %w", err))
	}
	span.SetAttributes(
		attribute.Int64("visit.id", visit.ID),
		attribute.String("visit.alias", visit.VisitorAlias),
	)

	derivation, err := s.deriver.Derive(ctx, intel.VisitFacts{
		Page:      visit.Page,
		Referrer:  visit.Referrer,
		SessionID: visit.SessionID,
		UTMSource: visit.UTM.Source,
		Country:   visit.Country,
	}, res.Returning)
	if err != nil {
		return models.VisitOutcome{}, fail(span, fmt.Errorf("failed to derive session facts: %w", err))
	}

	derived := models.DerivedLog{
		VisitID:       visit.ID,
		SessionID:     visit.SessionID,
		FingerprintID: visit.FingerprintID,
		Derivation:    derivation,
	}
	if err := s.repo.InsertDerived(ctx, &derived); err != nil {
		return models.VisitOutcome{}, fail(span, fmt.Errorf("failed to store derived record: %w", err))
	}

	if s.publisher != nil {
		if err := s.publisher.PublishVisit(ctx, visit, derived); err != nil {
			metrics.PublishFailures.Inc()
			logger.Warnf("Visit %d stored but not fully published: %v", visit.ID, err)
		}
	}

	metrics.VisitsLogged.WithLabelValues(derivation.VisitType).Inc()
	if res.MintedVisitor {
		metrics.LabelsMinted.WithLabelValues(intel.KindVisitor.String()).Inc()
	}
	if res.MintedSession {
		metrics.LabelsMinted.WithLabelValues(intel.KindSession.String()).Inc()
	}
	if res.ProbableAlias != nil {
		metrics.ProbableMatches.Inc()
	}

	return models.VisitOutcome{
		VisitID:        visit.ID,
		VisitorAlias:   visit.VisitorAlias,
		SessionLabel:   visit.SessionLabel,
		ProbableAlias:  visit.ProbableAlias,
		ProbableScore:  visit.ProbableScore,
		BestMatchAlias: visit.BestMatchAlias,
		BestMatchScore: visit.BestMatchScore,
		Derived:        derivation,
	}, nil
}

// LogEvent appends an in-page interaction. Events carry no identity labels.
func (s *Service) LogEvent(ctx context.Context, req models.EventRequest, ip string) (models.EventLog, error) {
	ctx, span := s.tracer.Start(ctx, "tracking.LogEvent")
	defer span.End()

	event := models.EventLog{
		ClientTimestamp: clientTime(req.ClientTimestamp),
		SessionID:       req.SessionID,
		FingerprintID:   req.FingerprintID,
		EventType:       req.EventType,
		EventData:       req.EventData,
		Page:            req.Page,
		EntropyData:     req.EntropyData,
		Signals:         intel.ExtractSignals(req.EntropyData),
	}
	event.Geo = s.lookupGeo(ctx, ip)

	if err := s.repo.InsertEvent(ctx, &event); err != nil {
		return models.EventLog{}, fail(span, fmt.Errorf("failed to store event: %w", err))
	}
	metrics.EventsLogged.Inc()
	return event, nil
}

// LogExit closes the latest open visit for the session and page. A missing
// exit timestamp means now.
func (s *Service) LogExit(ctx context.Context, req models.ExitRequest) (models.ExitResult, error) {
	ctx, span := s.tracer.Start(ctx, "tracking.LogExit")
	defer span.End()

	exitAt := s.now().UTC()
	if req.ExitTimestamp != "" {
		t, err := utils.ParseClientTimestamp(req.ExitTimestamp)
		if err != nil {
			return models.ExitResult{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
		}
		exitAt = t
	}

	result, err := s.repo.RecordExit(ctx, req.SessionID, req.Page, exitAt)
	if err != nil {
		if errors.Is(err, intel.ErrNotFound) {
			return models.ExitResult{}, err
		}
		return models.ExitResult{}, fail(span, fmt.Errorf("failed to record exit: %w", err))
	}
	return result, nil
}
