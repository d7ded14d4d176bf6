package alerts

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bannerdesk/banner-service/internal/apperr"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
	"github.com/bannerdesk/banner-service/internal/metrics"
)

// ImageSummary is the current state of one image of an alerted product.
type ImageSummary struct {
	ID            int64                `json:"id"`
	Title         string               `json:"title"`
	Status        database.ImageStatus `json:"status"`
	VersionNumber int                  `json:"versionNumber"`
}

// Item is one entry of the needs-attention list.
type Item struct {
	Product          database.Product `json:"product"`
	BusinessName     string           `json:"businessName"`
	MunicipalityID   int64            `json:"municipalityId"`
	MunicipalityName string           `json:"municipalityName"`
	Evaluation
	Images []ImageSummary `json:"images"`
}

// Aggregator builds alert lists from the store.
type Aggregator struct {
	store      database.Store
	thresholds Thresholds
	loc        *time.Location
	now        func() time.Time
	metrics    *metrics.Recorder
}

type Option func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(store database.Store, th Thresholds, loc *time.Location, rec *metrics.Recorder, opts ...Option) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	a := &Aggregator{store: store, thresholds: th, loc: loc, now: time.Now, metrics: rec}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Thresholds returns the configured thresholds.
func (a *Aggregator) Thresholds() Thresholds {
	return a.thresholds
}

// ListOptions narrows List.
type ListOptions struct {
	// All includes products that are not alerted.
	All bool
}

// List returns the products visible to actor that need attention, ordered
// by days until deadline. Products without a deadline come last.
func (a *Aggregator) List(ctx context.Context, actor *identity.User, opts ListOptions) ([]Item, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("login required")
	}

	municipalities, err := a.store.ListMunicipalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list municipalities: %w", err)
	}
	muniNames := make(map[int64]string, len(municipalities))
	for _, m := range municipalities {
		muniNames[m.ID] = m.Name
	}

	businesses, err := a.store.ListBusinesses(ctx, database.BusinessFilter{})
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	byID := make(map[int64]database.Business, len(businesses))
	for _, b := range businesses {
		byID[b.ID] = b
	}

	products, err := a.store.ListProducts(ctx, database.ProductFilter{})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	now := a.now()
	items := []Item{}
	for _, p := range products {
		b, ok := byID[p.BusinessID]
		if !ok || !actor.InScope(b.MunicipalityID, b.ID) {
			continue
		}
		e := Evaluate(&p, now, a.thresholds, a.loc)
		if !e.Alerted && !opts.All {
			continue
		}
		images, err := a.imageSummaries(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{
			Product:          p,
			BusinessName:     b.Name,
			MunicipalityID:   b.MunicipalityID,
			MunicipalityName: muniNames[b.MunicipalityID],
			Evaluation:       e,
			Images:           images,
		})
	}

	slices.SortStableFunc(items, func(x, y Item) int {
		return x.DaysUntilDeadline - y.DaysUntilDeadline
	})

	if !opts.All {
		byTier := map[string]int{}
		for _, it := range items {
			byTier[string(it.Tier)]++
		}
		a.metrics.AlertsComputed(byTier)
	}
	return items, nil
}

func (a *Aggregator) imageSummaries(ctx context.Context, productID int64) ([]ImageSummary, error) {
	images, err := a.store.ListImages(ctx, database.ImageFilter{ProductID: &productID})
	if err != nil {
		return nil, fmt.Errorf("list images of product %d: %w", productID, err)
	}
	out := make([]ImageSummary, 0, len(images))
	for _, img := range images {
		s := ImageSummary{ID: img.ID, Title: img.Title}
		if cur := img.Current(); cur != nil {
			s.Status = cur.Status
			s.VersionNumber = cur.VersionNumber
		}
		out = append(out, s)
	}
	return out, nil
}
