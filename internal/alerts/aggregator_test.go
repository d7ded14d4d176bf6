package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/database/dbtest"
	"github.com/bannerdesk/banner-service/internal/metrics"
)

func setDeadline(t *testing.T, f *dbtest.Fixture, productID int64, deadline *time.Time) {
	t.Helper()
	require.NoError(t, f.Store.UpdateProduct(context.Background(), productID, database.ProductUpdate{Deadline: deadline}))
}

func newTestAggregator(f *dbtest.Fixture, th Thresholds) *Aggregator {
	return NewAggregator(f.Store, th, time.UTC, metrics.NewRecorder(), WithClock(f.Clock.Now))
}

func productIDs(items []Item) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.Product.ID
	}
	return ids
}

func TestListInclusionAndOrder(t *testing.T) {
	f := dbtest.New(t)
	ctx := context.Background()
	agg := newTestAggregator(f, DefaultThresholds())

	// The fixture clock reads 2025-06-10.
	setDeadline(t, f, f.ProductA1.ID, date(2025, 12, 31))
	setDeadline(t, f, f.ProductA2.ID, date(2025, 1, 1))
	setDeadline(t, f, f.ProductB1.ID, date(2025, 7, 1))

	items, err := agg.List(ctx, f.Admin, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.ProductA2.ID}, productIDs(items))

	img := f.AddImage(t, f.ProductA1, "a1")
	_, err = f.Store.AddComment(ctx, database.Comment{ImageID: img.ID, CommenterType: database.CommenterMunicipality, CommenterID: f.MunicipalityAUser.ID, Body: "x"})
	require.NoError(t, err)

	items, err = agg.List(ctx, f.Admin, ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []int64{f.ProductA2.ID, f.ProductA1.ID}, productIDs(items))
	assert.Equal(t, ReasonDeadlineBreach, items[0].Reason)
	assert.Equal(t, ReasonNewComment, items[1].Reason)
	assert.Equal(t, "オホーツク水産", items[1].BusinessName)
	assert.Equal(t, "北見市", items[1].MunicipalityName)
	require.Len(t, items[1].Images, 1)
	assert.Equal(t, database.StatusPendingReview, items[1].Images[0].Status)

	all, err := agg.List(ctx, f.Admin, ListOptions{All: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.ProductA2.ID, f.ProductB1.ID, f.ProductA1.ID}, productIDs(all))
}

func TestListDeadlineBreach(t *testing.T) {
	f := dbtest.New(t)
	agg := newTestAggregator(f, DefaultThresholds())

	yesterday := f.Clock.Now().AddDate(0, 0, -1)
	setDeadline(t, f, f.ProductB1.ID, &yesterday)

	items, err := agg.List(context.Background(), f.Admin, ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ReasonDeadlineBreach, items[0].Reason)
	assert.Equal(t, "最優先", items[0].TierLabel)
	assert.Equal(t, -1, items[0].DaysUntilDeadline)
}

func TestListUnreadCommentsFarDeadline(t *testing.T) {
	f := dbtest.New(t)
	ctx := context.Background()
	agg := newTestAggregator(f, Thresholds{WarningDays: 2, AttentionDays: 5})

	due := f.Clock.Now().AddDate(0, 0, 10)
	setDeadline(t, f, f.ProductA1.ID, &due)
	img := f.AddImage(t, f.ProductA1, "a1")
	for i := 0; i < 3; i++ {
		_, err := f.Store.AddComment(ctx, database.Comment{ImageID: img.ID, CommenterType: database.CommenterMunicipality, CommenterID: f.MunicipalityAUser.ID, Body: "x"})
		require.NoError(t, err)
	}

	items, err := agg.List(ctx, f.Admin, ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, TierNormal, items[0].Tier)
	assert.Equal(t, "通常", items[0].TierLabel)
	assert.Equal(t, ReasonNewComment, items[0].Reason)
	assert.Equal(t, 3, items[0].Product.UnreadCommentsCount)
}

func TestListScope(t *testing.T) {
	f := dbtest.New(t)
	ctx := context.Background()
	agg := newTestAggregator(f, DefaultThresholds())

	past := f.Clock.Now().AddDate(0, 0, -3)
	for _, id := range []int64{f.ProductA1.ID, f.ProductA2.ID, f.ProductB1.ID} {
		setDeadline(t, f, id, &past)
	}

	items, err := agg.List(ctx, f.MunicipalityAUser, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.ProductA1.ID, f.ProductA2.ID}, productIDs(items))

	items, err = agg.List(ctx, f.BusinessB1User, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.ProductB1.ID}, productIDs(items))

	_, err = agg.List(ctx, nil, ListOptions{})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestListDoesNotMutate(t *testing.T) {
	f := dbtest.New(t)
	ctx := context.Background()
	agg := newTestAggregator(f, DefaultThresholds())

	before, err := f.Store.ListProducts(ctx, database.ProductFilter{})
	require.NoError(t, err)
	_, err = agg.List(ctx, f.Admin, ListOptions{All: true})
	require.NoError(t, err)
	after, err := f.Store.ListProducts(ctx, database.ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
