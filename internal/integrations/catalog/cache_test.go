package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"sales-copilot/internal/domain"
)

type countingLister struct {
	items []domain.CatalogItem
	err   error
	calls int
}

func (l *countingLister) ListItems(context.Context) ([]domain.CatalogItem, error) {
	l.calls++
	return l.items, l.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setupCache(t *testing.T, lister ItemLister) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c, err := NewCache(lister, rdb, time.Minute, WithLogger(quiet()))
	require.NoError(t, err)
	return c, mr
}

func sampleItems() []domain.CatalogItem {
	price := 500.0
	return []domain.CatalogItem{
		{ContentType: domain.ContentProduct, ContentID: "7", Title: "Coaching", OfferRole: domain.RoleCoreOffer, RoleRetailPrice: &price},
	}
}

func TestCache_ReadThrough(t *testing.T) {
	lister := &countingLister{items: sampleItems()}
	c, mr := setupCache(t, lister)
	ctx := context.Background()

	first, err := c.ListItems(ctx)
	require.NoError(t, err)
	second, err := c.ListItems(ctx)
	require.NoError(t, err)

	require.Equal(t, 1, lister.calls)
	require.Equal(t, first, second)
	require.True(t, mr.Exists(defaultCacheKey))
	require.Equal(t, time.Minute, mr.TTL(defaultCacheKey))
}

func TestCache_ExpiryRefetches(t *testing.T) {
	lister := &countingLister{items: sampleItems()}
	c, mr := setupCache(t, lister)
	ctx := context.Background()

	_, err := c.ListItems(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = c.ListItems(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, lister.calls)
}

func TestCache_Invalidate(t *testing.T) {
	lister := &countingLister{items: sampleItems()}
	c, mr := setupCache(t, lister)
	ctx := context.Background()

	_, err := c.ListItems(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	require.False(t, mr.Exists(defaultCacheKey))
	_, err = c.ListItems(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, lister.calls)
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	lister := &countingLister{items: sampleItems()}
	c, mr := setupCache(t, lister)
	mr.Close()

	items, err := c.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, lister.calls)
}

func TestCache_CorruptEntryRefetches(t *testing.T) {
	lister := &countingLister{items: sampleItems()}
	c, mr := setupCache(t, lister)
	require.NoError(t, mr.Set(defaultCacheKey, "not json"))

	items, err := c.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, lister.calls)
}

func TestCache_ListerErrorPropagates(t *testing.T) {
	lister := &countingLister{err: errors.New("catalog down")}
	c, mr := setupCache(t, lister)

	_, err := c.ListItems(context.Background())
	require.ErrorContains(t, err, "catalog down")
	require.False(t, mr.Exists(defaultCacheKey))
}

func TestNewCache_Validation(t *testing.T) {
	_, err := NewCache(nil, redis.NewClient(&redis.Options{}), time.Minute)
	require.Error(t, err)
	_, err = NewCache(&countingLister{}, nil, time.Minute)
	require.Error(t, err)
}
