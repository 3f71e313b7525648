// Package publish pushes logged visits to downstream systems. Publishing is
// best effort: the system of record is Postgres.
package publish

import (
	"context"
	"errors"
	"fmt"

	"visitorintel/api/logger"
	"visitorintel/api/models"
)

type Publisher interface {
	PublishVisit(ctx context.Context, visit models.VisitLog, derived models.DerivedLog) error
	Name() string
}

// Fanout sends every visit to all of its publishers.
type Fanout struct {
	publishers []Publisher
}

func NewFanout(publishers ...Publisher) *Fanout {
	out := &Fanout{}
	for _, p := range publishers {
		if p != nil {
			out.publishers = append(out.publishers, p)
		}
	}
	return out
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Len() int { return len(f.publishers) }

// PublishVisit tries every publisher even when some fail, and returns the
// joined failures.
func (f *Fanout) PublishVisit(ctx context.Context, visit models.VisitLog, derived models.DerivedLog) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishVisit(ctx, visit, derived); err != nil {
			logger.Warnf("Publishing visit %d to %s failed: %v", visit.ID, p.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
