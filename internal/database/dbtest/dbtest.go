// Package dbtest seeds an in-memory store with a small catalog for tests.
package dbtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/identity"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Fixture is a seeded store. Municipality A owns businesses A1 and A2,
// municipality B owns business B1. Each business has one product.
type Fixture struct {
	Store *database.MemoryStore
	Clock *Clock

	MunicipalityA, MunicipalityB *database.Municipality
	BusinessA1, BusinessA2       *database.Business
	BusinessB1                   *database.Business
	ProductA1, ProductA2         *database.Product
	ProductB1                    *database.Product

	Admin, Creator                 *identity.User
	MunicipalityAUser              *identity.User
	BusinessA1User, BusinessB1User *identity.User
}

// Start is the fixture clock's initial time.
var Start = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

// New builds the fixture on a fresh MemoryStore.
func New(t testing.TB, opts ...database.MemoryOption) *Fixture {
	t.Helper()
	ctx := context.Background()

	clock := NewClock(Start)
	store, err := database.NewMemoryStore(ctx, append([]database.MemoryOption{database.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)

	f := &Fixture{Store: store, Clock: clock}

	f.MunicipalityA, err = store.AddMunicipality(ctx, database.Municipality{Name: "北見市", Code: "01208"})
	require.NoError(t, err)
	f.MunicipalityB, err = store.AddMunicipality(ctx, database.Municipality{Name: "都城市", Code: "45202"})
	require.NoError(t, err)

	f.BusinessA1 = f.addBusiness(t, f.MunicipalityA.ID, "オホーツク水産", "B-A1", []string{"furusato-choice", "rakuten"})
	f.BusinessA2 = f.addBusiness(t, f.MunicipalityA.ID, "北見ハッカ堂", "B-A2", nil)
	f.BusinessB1 = f.addBusiness(t, f.MunicipalityB.ID, "霧島ミート", "B-B1", []string{"satofull"})

	f.ProductA1 = f.addProduct(t, f.BusinessA1, "ホタテ 1kg")
	f.ProductA2 = f.addProduct(t, f.BusinessA2, "ハッカ油セット")
	f.ProductB1 = f.addProduct(t, f.BusinessB1, "黒毛和牛切り落とし")

	f.Admin = f.addUser(t, "admin@example.com", "管理者", identity.RoleSuperAdmin, nil, nil)
	f.Creator = f.addUser(t, "creator@example.com", "制作担当", identity.RoleCreator, nil, nil)
	f.MunicipalityAUser = f.addUser(t, "kitami@example.com", "北見市担当", identity.RoleMunicipalityUser, &f.MunicipalityA.ID, nil)
	f.BusinessA1User = f.addUser(t, "a1@example.com", "水産担当", identity.RoleBusinessUser, nil, &f.BusinessA1.ID)
	f.BusinessB1User = f.addUser(t, "b1@example.com", "ミート担当", identity.RoleBusinessUser, nil, &f.BusinessB1.ID)
	return f
}

func (f *Fixture) addBusiness(t testing.TB, municipalityID int64, name, code string, portals []string) *database.Business {
	t.Helper()
	b, err := f.Store.AddBusiness(context.Background(), database.Business{
		MunicipalityID: municipalityID,
		Name:           name,
		Code:           code,
		Portals:        portals,
	})
	require.NoError(t, err)
	return b
}

func (f *Fixture) addProduct(t testing.TB, b *database.Business, name string) *database.Product {
	t.Helper()
	p, err := f.Store.AddProduct(context.Background(), database.Product{
		BusinessID: b.ID,
		Name:       name,
		Portals:    b.Portals,
	})
	require.NoError(t, err)
	return p
}

func (f *Fixture) addUser(t testing.TB, email, name string, role identity.Role, municipalityID, businessID *int64) *identity.User {
	t.Helper()
	u, err := f.Store.AddUser(context.Background(), database.User{
		Email:          email,
		Name:           name,
		Role:           role,
		MunicipalityID: municipalityID,
		BusinessID:     businessID,
	})
	require.NoError(t, err)
	return u.Identity()
}

// AddImage creates an image on product with one pending version.
func (f *Fixture) AddImage(t testing.TB, product *database.Product, title string) *database.ImageEntity {
	t.Helper()
	img, err := f.Store.AddImage(context.Background(), database.NewImage{
		ProductID:        product.ID,
		Title:            title,
		CreatedByAdminID: f.Admin.ID,
		FilePath:         "images/" + title + ".png",
		Status:           database.StatusPendingReview,
	})
	require.NoError(t, err)
	return img
}
