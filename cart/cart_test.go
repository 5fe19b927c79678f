package cart

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/itsneelabh/gomind-grocery/catalog"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(session.WithClock(func() time.Time { return fixedNow }))
	return NewService(catalog.Default(), store, WithClock(func() time.Time { return fixedNow })), store
}

func TestAdd_NewLine(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	lines, err := svc.Add(ctx, "u1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []session.CartLine{{ItemID: 1, Name: "Banana", Quantity: 2}}, lines)

	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", sess.LastSeen)
}

func TestAdd_AccumulatesQuantity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 1, 2)
	require.NoError(t, err)
	lines, err := svc.Add(ctx, "u1", 1, 3)
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, 5.0, lines[0].Quantity)
}

func TestAdd_FractionalQuantitiesDoNotDrift(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 5, 0.1)
	require.NoError(t, err)
	lines, err := svc.Add(ctx, "u1", 5, 0.2)
	require.NoError(t, err)

	assert.Equal(t, 0.3, lines[0].Quantity)
}

func TestAdd_UnknownItemLeavesCartUnchanged(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 2, 1)
	require.NoError(t, err)

	_, err = svc.Add(ctx, "u1", 99, 1)
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)

	lines, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []session.CartLine{{ItemID: 2, Name: "Apple", Quantity: 1}}, lines)
}

func TestAdd_InvalidQuantity(t *testing.T) {
	svc, store := newService(t)

	for _, q := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := svc.Add(context.Background(), "u1", 1, q)
		assert.ErrorIs(t, err, ErrInvalidQuantity, "quantity %v", q)
	}

	sess, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, sess.Cart)
}

func TestAdd_OverflowingLineIsRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 5, math.MaxFloat64)
	require.NoError(t, err)

	_, err = svc.Add(ctx, "u1", 5, math.MaxFloat64)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	lines, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, math.MaxFloat64, lines[0].Quantity)
}

func TestAdd_EmptyUserID(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Add(context.Background(), "", 1, 1)
	assert.ErrorIs(t, err, session.ErrEmptyUserID)
}

func TestRemove(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 1, 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "u1", 3, 1)
	require.NoError(t, err)

	lines, err := svc.Remove(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, []session.CartLine{{ItemID: 3, Name: "Carrot", Quantity: 1}}, lines)

	_, err = svc.Remove(ctx, "u1", 1)
	assert.ErrorIs(t, err, ErrNotInCart)
}

func TestRemove_LastLineLeavesEmptyArray(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", 4, 1)
	require.NoError(t, err)
	lines, err := svc.Remove(ctx, "u1", 4)
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestView_IsIdempotent(t *testing.T) {
	clock := fixedNow
	store := session.NewMemoryStore(session.WithClock(func() time.Time { return clock }))
	svc := NewService(catalog.Default(), store, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	empty, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.Add(ctx, "u1", 6, 1)
	require.NoError(t, err)

	clock = clock.Add(24 * time.Hour)
	first, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	second, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", sess.LastSeen, "viewing must not refresh last_seen")
}

func TestAdd_ConcurrentSameItem(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        core.RedisDBSessions,
		Namespace: core.DefaultSessionNamespace,
	})
	require.NoError(t, err)
	defer client.Close()

	svc := NewService(catalog.Default(), session.NewRedisStore(client, core.SessionConfig{}, nil))
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := svc.Add(ctx, "u1", 1, 1)
			return err
		})
	}
	require.NoError(t, g.Wait())

	lines, err := svc.View(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2.0, lines[0].Quantity)
}
