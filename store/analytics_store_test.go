package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorintel/api/database"
	"visitorintel/api/intel"
	"visitorintel/api/models"
	"visitorintel/api/store"
)

// fakeBatch implements only the batch calls the analytics store makes.
type fakeBatch struct {
	driver.Batch
	appendErr error
	rows      [][]any
	sent      bool
	aborted   bool
}

func (b *fakeBatch) Append(v ...any) error {
	if b.appendErr != nil {
		return b.appendErr
	}
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type fakeConn struct {
	driver.Conn
	batch *fakeBatch
}

func (c *fakeConn) PrepareBatch(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	return c.batch, nil
}

func newAnalyticsStore(batch *fakeBatch) *store.AnalyticsStore {
	return store.NewAnalyticsStore(&database.ClickHouseClient{Conn: &fakeConn{batch: batch}})
}

func TestAnalyticsStore_PublishVisit(t *testing.T) {
	t.Parallel()

	batch := &fakeBatch{}
	s := newAnalyticsStore(batch)

	visit := models.VisitLog{ID: 7, Page: "/pricing", SessionID: "S1", VisitorAlias: "Visitor_001"}
	derived := models.DerivedLog{VisitID: 7, Derivation: intel.Derivation{VisitType: intel.VisitNew, Bounced: intel.BouncedYes}}
	require.NoError(t, s.PublishVisit(context.Background(), visit, derived))

	assert.True(t, batch.sent)
	require.Len(t, batch.rows, 1)
	assert.Equal(t, int64(7), batch.rows[0][1])
	assert.Equal(t, "/pricing", batch.rows[0][3])
}

func TestAnalyticsStore_AppendFailureIsReturned(t *testing.T) {
	t.Parallel()

	appendErr := errors.New("converting String to Int64 is unsupported")
	batch := &fakeBatch{appendErr: appendErr}
	s := newAnalyticsStore(batch)

	err := s.PublishVisit(context.Background(), models.VisitLog{ID: 9, Page: "/"}, models.DerivedLog{VisitID: 9})
	require.Error(t, err)
	assert.ErrorIs(t, err, appendErr)
	assert.Contains(t, err.Error(), "visit 9")
	assert.True(t, batch.aborted)
	assert.False(t, batch.sent)
}

func TestAnalyticsStore_InsertVisitFactsLengthMismatch(t *testing.T) {
	t.Parallel()

	s := newAnalyticsStore(&fakeBatch{})
	err := s.InsertVisitFacts(context.Background(), []models.VisitLog{{ID: 1}}, nil)
	assert.Error(t, err)
}
