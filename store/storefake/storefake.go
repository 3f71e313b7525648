// Package storefake is an in-memory stand-in for the Postgres visitor store,
// used by tests across the module.
package storefake

import (
	"context"
	"sort"
	"sync"
	"time"

	"visitorintel/api/intel"
	"visitorintel/api/models"
	"visitorintel/api/store"
)

// New returns an empty fake store.
func New() *Fake {
	return &Fake{
		now: time.Now,
	}
}

// Fake replicates the queries of store.VisitorStore and store.UserStore.
type Fake struct {
	mu sync.Mutex

	visits  []models.VisitLog
	events  []models.EventLog
	derived []models.DerivedLog
	users   []models.User

	err error
	now func() time.Time
}

// SetError makes every subsequent call fail with err; nil restores normal behavior.
func (f *Fake) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetClock overrides the receipt time assigned to inserted rows.
func (f *Fake) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *Fake) Visits() []models.VisitLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.VisitLog, len(f.visits))
	copy(out, f.visits)
	return out
}

func (f *Fake) Derived() []models.DerivedLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.DerivedLog, len(f.derived))
	copy(out, f.derived)
	return out
}

func labelOf(v models.VisitLog, kind intel.Kind) (key, label string) {
	if kind == intel.KindSession {
		return v.SessionID, v.SessionLabel
	}
	return v.FingerprintID, v.VisitorAlias
}

func (f *Fake) EarliestAssigned(_ context.Context, kind intel.Kind, identifier string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	for _, v := range f.visits {
		key, label := labelOf(v, kind)
		if key == identifier && label != "" {
			return label, nil
		}
	}
	return "", store.ErrNotFound
}

func (f *Fake) CountAssigned(_ context.Context, kind intel.Kind) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	seen := make(map[string]struct{})
	for _, v := range f.visits {
		if _, label := labelOf(v, kind); label != "" {
			seen[label] = struct{}{}
		}
	}
	return len(seen), nil
}

func (f *Fake) ListCandidates(_ context.Context, excludeFingerprint string) ([]intel.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []intel.Candidate
	for _, v := range f.visits {
		if v.VisitorAlias == "" || len(v.EntropyData) == 0 {
			continue
		}
		if excludeFingerprint != "" && v.FingerprintID == excludeFingerprint {
			continue
		}
		out = append(out, intel.Candidate{
			VisitID:       v.ID,
			FingerprintID: v.FingerprintID,
			VisitorAlias:  v.VisitorAlias,
			Signals:       v.Signals,
		})
	}
	return out, nil
}

func (f *Fake) SessionEntryPage(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	var session []models.VisitLog
	for _, v := range f.visits {
		if v.SessionID == sessionID {
			session = append(session, v)
		}
	}
	if len(session) == 0 {
		return "", store.ErrNotFound
	}
	sort.SliceStable(session, func(i, j int) bool {
		ti, tj := session[i].EffectiveTime(), session[j].EffectiveTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return session[i].ID < session[j].ID
	})
	return session[0].Page, nil
}

func (f *Fake) CountSessionVisits(_ context.Context, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, v := range f.visits {
		if v.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (f *Fake) InsertVisit(_ context.Context, visit *models.VisitLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	visit.ID = int64(len(f.visits) + 1)
	if visit.Timestamp.IsZero() {
		visit.Timestamp = f.now().UTC()
	}
	f.visits = append(f.visits, *visit)
	return nil
}

func (f *Fake) InsertEvent(_ context.Context, event *models.EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	event.ID = int64(len(f.events) + 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = f.now().UTC()
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *Fake) InsertDerived(_ context.Context, derived *models.DerivedLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	derived.ID = int64(len(f.derived) + 1)
	if derived.Timestamp.IsZero() {
		derived.Timestamp = f.now().UTC()
	}
	f.derived = append(f.derived, *derived)
	return nil
}

func (f *Fake) RecordExit(_ context.Context, sessionID, page string, exitAt time.Time) (models.ExitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.ExitResult{}, f.err
	}
	for i := len(f.visits) - 1; i >= 0; i-- {
		v := &f.visits[i]
		if v.SessionID != sessionID || v.Page != page || v.ExitTime != nil {
			continue
		}
		seconds := exitAt.Sub(v.EffectiveTime()).Seconds()
		if seconds < 0 {
			seconds = 0
		}
		exit := exitAt
		v.ExitTime = &exit
		v.TimeOnPage = &seconds
		return models.ExitResult{VisitID: v.ID, ExitTime: exitAt, TimeOnPage: seconds}, nil
	}
	return models.ExitResult{}, store.ErrNotFound
}

func (f *Fake) ListVisits(_ context.Context, limit int) ([]models.VisitLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.VisitLog, 0, limit)
	for i := len(f.visits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.visits[i])
	}
	return out, nil
}

func (f *Fake) ListEvents(_ context.Context, limit int) ([]models.EventLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.EventLog, 0, limit)
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.events[i])
	}
	return out, nil
}

func (f *Fake) ListDerived(_ context.Context, limit int) ([]models.DerivedLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.DerivedLog, 0, limit)
	for i := len(f.derived) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.derived[i])
	}
	return out, nil
}

func (f *Fake) CreateUser(_ context.Context, email string, hashedPassword []byte) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Email == email {
			return nil, store.ErrUserExists
		}
	}
	now := f.now().UTC()
	user := models.User{
		ID:             len(f.users) + 1,
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.users = append(f.users, user)
	return &user, nil
}

func (f *Fake) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, store.ErrUserNotFound
}
