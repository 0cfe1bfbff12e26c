package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

// countingStore counts history reads reaching the wrapped store.
type countingStore struct {
	Store
	reads int
}

func (c *countingStore) FetchUserHistory(ctx context.Context, userID int64) ([]domain.HistoryEntry, error) {
	c.reads++
	return c.Store.FetchUserHistory(ctx, userID)
}

func newCached(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	inner := &countingStore{Store: NewMemory()}
	return NewCachedStore(inner, client, time.Minute, zap.NewNop()), inner, mr
}

func TestCachedStore_ServesRepeatReadsFromRedis(t *testing.T) {
	s, inner, mr := newCached(t)
	ctx := context.Background()
	userID, patientID := seed(t, s)

	_, err := s.RecordAnalysis(ctx, domain.Analysis{
		UserID: userID, PatientID: patientID, FileName: "a.png",
		Verdict: domain.VerdictNegative, Probability: 66.1, Confidence: domain.ConfidenceMedium,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	first, err := s.FetchUserHistory(ctx, userID)
	require.NoError(t, err)
	require.True(t, mr.Exists(historyKey(userID)))

	second, err := s.FetchUserHistory(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 1, inner.reads)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
	require.Equal(t, first[0].Patient, second[0].Patient)
	require.True(t, first[0].Timestamp.Equal(second[0].Timestamp))
}

func TestCachedStore_RecordInvalidates(t *testing.T) {
	s, inner, mr := newCached(t)
	ctx := context.Background()
	userID, patientID := seed(t, s)

	_, err := s.FetchUserHistory(ctx, userID)
	require.NoError(t, err)
	require.True(t, mr.Exists(historyKey(userID)))

	_, err = s.RecordAnalysis(ctx, domain.Analysis{UserID: userID, PatientID: patientID, Timestamp: time.Now()})
	require.NoError(t, err)
	require.False(t, mr.Exists(historyKey(userID)))

	entries, err := s.FetchUserHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 2, inner.reads)
}

func TestCachedStore_FallsThroughWhenRedisDown(t *testing.T) {
	s, inner, mr := newCached(t)
	ctx := context.Background()
	userID, _ := seed(t, s)

	mr.Close()

	entries, err := s.FetchUserHistory(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, 1, inner.reads)
}

func TestCachedStore_RecordSubmissionInvalidates(t *testing.T) {
	s, _, mr := newCached(t)
	ctx := context.Background()
	userID, _ := seed(t, s)

	_, err := s.FetchUserHistory(ctx, userID)
	require.NoError(t, err)
	require.True(t, mr.Exists(historyKey(userID)))

	_, _, err = s.RecordSubmission(ctx, domain.Patient{LastName: "Roux"}, domain.Analysis{UserID: userID, Timestamp: time.Now()})
	require.NoError(t, err)
	require.False(t, mr.Exists(historyKey(userID)))

	entries, err := s.FetchUserHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Roux", entries[0].Patient.LastName)
}
