package prescription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	inner Source
	calls int
	err   error
}

func (c *countingSource) Check(ctx context.Context, names []string) ([]string, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Check(ctx, names)
}

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

func TestScreenerKnownPair(t *testing.T) {
	s := NewScreener(NewStaticSource())

	warnings, err := s.Check(context.Background(), []string{"Warfarin", "Aspirin"})
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "Warfarin")
	assert.Contains(t, warnings[0], "Aspirin")
}

func TestScreenerSingleDrugSkipsSource(t *testing.T) {
	src := &countingSource{inner: NewStaticSource()}
	s := NewScreener(src)

	warnings, err := s.Check(context.Background(), []string{"Paracetamol"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Zero(t, src.calls, "source must not be consulted for fewer than two drugs")
}

func TestScreenerTrimsEmptyEntries(t *testing.T) {
	src := &countingSource{inner: NewStaticSource()}
	s := NewScreener(src)

	// Only one real name survives trimming.
	warnings, err := s.Check(context.Background(), []string{"  ", "Warfarin", ""})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Zero(t, src.calls)
}

func TestScreenerSourceFailure(t *testing.T) {
	src := &countingSource{err: errors.New("provider timeout")}
	s := NewScreener(src)

	_, err := s.Check(context.Background(), []string{"Warfarin", "Aspirin"})
	require.ErrorIs(t, err, ErrScreeningUnavailable)
}

func TestStaticSourceCaseAndOrderInsensitive(t *testing.T) {
	src := NewStaticSource()

	w1, err := src.Check(context.Background(), []string{"ASPIRIN", "warfarin"})
	require.NoError(t, err)
	assert.Len(t, w1, 1)

	w2, err := src.Check(context.Background(), []string{"Amoxicillin", "Paracetamol"})
	require.NoError(t, err)
	assert.Empty(t, w2)
}

func TestCachedSourceServesRepeatFromCache(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	src := &countingSource{inner: NewStaticSource()}
	cached := NewCachedSource(client, src, time.Minute)

	first, err := cached.Check(context.Background(), []string{"Warfarin", "Aspirin"})
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Equal(t, 1, src.calls)

	second, err := cached.Check(context.Background(), []string{"aspirin", "WARFARIN"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls, "repeat query for the same set must hit the cache")
}

func TestCachedSourceNeverCachesFailure(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	src := &countingSource{inner: NewStaticSource(), err: errors.New("provider down")}
	cached := NewCachedSource(client, src, time.Minute)

	_, err := cached.Check(context.Background(), []string{"Warfarin", "Aspirin"})
	require.Error(t, err)

	// Source recovers; the failure must not have been served from cache.
	src.err = nil
	warnings, err := cached.Check(context.Background(), []string{"Warfarin", "Aspirin"})
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
	assert.Equal(t, 2, src.calls)
}

func TestCachedSourceCachesEmptyCleanResult(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	src := &countingSource{inner: NewStaticSource()}
	cached := NewCachedSource(client, src, time.Minute)

	w, err := cached.Check(context.Background(), []string{"Amoxicillin", "Paracetamol"})
	require.NoError(t, err)
	assert.Empty(t, w)

	w, err = cached.Check(context.Background(), []string{"Paracetamol", "Amoxicillin"})
	require.NoError(t, err)
	assert.Empty(t, w)
	assert.Equal(t, 1, src.calls)
}
