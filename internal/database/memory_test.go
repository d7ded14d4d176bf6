package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerdesk/banner-service/internal/storage"
)

func newTestMemoryStore(t *testing.T, opts ...MemoryOption) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(context.Background(), opts...)
	require.NoError(t, err)
	return s
}

// seedCatalog creates one municipality, business and product.
func seedCatalog(t *testing.T, s Store) (*Municipality, *Business, *Product) {
	t.Helper()
	ctx := context.Background()

	m, err := s.AddMunicipality(ctx, Municipality{Name: "Kamiyama", Code: "KMY"})
	require.NoError(t, err)
	b, err := s.AddBusiness(ctx, Business{MunicipalityID: m.ID, Name: "Sudachi Farm", Code: "SF", Portals: []string{"rakuten", "choice", "rakuten"}})
	require.NoError(t, err)
	p, err := s.AddProduct(ctx, Product{BusinessID: b.ID, Name: "Sudachi 1kg", Portals: b.Portals})
	require.NoError(t, err)
	return m, b, p
}

func TestMemoryStoreSequentialIDs(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	m1, err := s.AddMunicipality(ctx, Municipality{Name: "A"})
	require.NoError(t, err)
	m2, err := s.AddMunicipality(ctx, Municipality{Name: "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), m1.ID)
	assert.Equal(t, int64(2), m2.ID)

	require.NoError(t, s.DeleteMunicipality(ctx, m2.ID))
	m3, err := s.AddMunicipality(ctx, Municipality{Name: "C"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), m3.ID, "ids are never reused")
}

func TestMemoryStoreReferences(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	_, err := s.AddBusiness(ctx, Business{MunicipalityID: 42, Name: "Orphan"})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.AddProduct(ctx, Product{BusinessID: 42, Name: "Orphan"})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = s.AddImage(ctx, NewImage{ProductID: 42, Title: "x", FilePath: "x.png", Status: StatusPendingReview})
	assert.ErrorIs(t, err, ErrInvalidReference)

	m, b, _ := seedCatalog(t, s)
	assert.Equal(t, []string{"choice", "rakuten"}, b.Portals)

	err = s.DeleteMunicipality(ctx, m.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStoreUpdateMissingIsNotFound(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	name := "x"

	assert.ErrorIs(t, s.UpdateBusiness(ctx, 99, BusinessUpdate{Name: &name}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateMunicipality(ctx, 99, MunicipalityUpdate{Name: &name}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateVersionStatus(ctx, 99, 1, StatusApproved), ErrNotFound)

	_, err := s.GetProduct(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreVersionNumbering(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	_, _, p := seedCatalog(t, s)

	img, err := s.AddImage(ctx, NewImage{ProductID: p.ID, Title: "Banner", CreatedByAdminID: 1, FilePath: "a.png", Status: StatusPendingReview})
	require.NoError(t, err)
	require.Len(t, img.Versions, 1)

	for i := 0; i < 4; i++ {
		_, err := s.AppendVersion(ctx, img.ID, "next.png", StatusPendingReview)
		require.NoError(t, err)
	}

	got, err := s.GetImage(ctx, img.ID)
	require.NoError(t, err)
	require.Len(t, got.Versions, 5)
	for i, v := range got.Versions {
		assert.Equal(t, i+1, v.VersionNumber)
		assert.Equal(t, img.ID, v.ImageID)
	}
	assert.Equal(t, 5, got.Current().VersionNumber)

	_, err = s.AppendVersion(ctx, 999, "x.png", StatusPendingReview)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateVersionStatus(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	_, _, p := seedCatalog(t, s)

	img, err := s.AddImage(ctx, NewImage{ProductID: p.ID, Title: "Banner", FilePath: "a.png", Status: StatusPendingReview})
	require.NoError(t, err)
	v1 := img.Versions[0]

	require.NoError(t, s.UpdateVersionStatus(ctx, img.ID, v1.ID, StatusApproved))
	err = s.UpdateVersionStatus(ctx, img.ID, v1.ID+100, StatusApproved)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Current().Status)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	_, _, p := seedCatalog(t, s)

	img, err := s.AddImage(ctx, NewImage{ProductID: p.ID, Title: "Banner", FilePath: "a.png", Status: StatusPendingReview})
	require.NoError(t, err)

	img.Versions[0].Status = StatusRejected
	got, err := s.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, got.Versions[0].Status)
}

func TestMemoryStoreCascades(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	m, b, p := seedCatalog(t, s)

	img, err := s.AddImage(ctx, NewImage{ProductID: p.ID, Title: "Banner", FilePath: "a.png", Status: StatusPendingReview})
	require.NoError(t, err)
	_, err = s.AddComment(ctx, Comment{ImageID: img.ID, CommenterType: CommenterAdmin, CommenterID: 1, CommenterName: "Admin", Body: "hi"})
	require.NoError(t, err)

	project, err := s.AddProject(ctx, Project{Name: "Winter", MunicipalityID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, ProjectNotStarted, project.Status)
	require.NoError(t, s.UpdateProduct(ctx, p.ID, ProductUpdate{ProjectID: &project.ID}))

	require.NoError(t, s.DeleteProject(ctx, project.ID))
	unlinked, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, unlinked.ProjectID)

	require.NoError(t, s.DeleteBusiness(ctx, b.ID))

	_, err = s.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetImage(ctx, img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	comments, err := s.ListComments(ctx, img.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	require.NoError(t, s.DeleteMunicipality(ctx, m.ID))
}

func TestMemoryStoreUnreadCounter(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	_, _, p := seedCatalog(t, s)

	img, err := s.AddImage(ctx, NewImage{ProductID: p.ID, Title: "Banner", FilePath: "a.png", Status: StatusPendingReview})
	require.NoError(t, err)

	c1, err := s.AddComment(ctx, Comment{ImageID: img.ID, CommenterType: CommenterAdmin, CommenterID: 1, Body: "one"})
	require.NoError(t, err)
	c2, err := s.AddComment(ctx, Comment{ImageID: img.ID, CommenterType: CommenterMunicipality, CommenterID: 2, Body: "two"})
	require.NoError(t, err)
	_, err = s.AddComment(ctx, Comment{ImageID: img.ID, CommenterType: CommenterBusiness, CommenterID: 3, Body: "three"})
	require.NoError(t, err)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadCommentsCount, "admin comments are not unread for the admin side")

	require.NoError(t, s.DeleteComment(ctx, c1.ID))
	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnreadCommentsCount)

	require.NoError(t, s.ResetUnreadComments(ctx, p.ID))
	require.NoError(t, s.DeleteComment(ctx, c2.ID))

	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadCommentsCount, "counter never drops below zero")

	thread, err := s.ListComments(ctx, img.ID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, "three", thread[0].Body)
}

func TestMemoryStoreNotifications(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	n1, err := s.AddNotification(ctx, Notification{Title: "first", Message: "m"})
	require.NoError(t, err)
	_, err = s.AddNotification(ctx, Notification{Title: "second", Message: "m"})
	require.NoError(t, err)

	require.NoError(t, s.SetNotificationRead(ctx, n1.ID, true))
	unread, err := s.ListNotifications(ctx, NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "second", unread[0].Title)

	all, err := s.ListNotifications(ctx, NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Title, "newest first")

	got, err := s.GetNotification(ctx, n1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	_, err = s.GetNotification(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.SetNotificationRead(ctx, 99, true), ErrNotFound)
}

func TestMemoryStoreUsers(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	u, err := s.AddUser(ctx, User{Email: "Admin@example.jp", Name: "Admin", Role: "super_admin"})
	require.NoError(t, err)

	got, err := s.GetUserByEmail(ctx, "admin@example.jp")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.AddUser(ctx, User{Email: "admin@example.jp"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStoreSnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	s := newTestMemoryStore(t, WithSnapshot(files, DefaultSnapshotKey))
	_, _, p := seedCatalog(t, s)
	img, err := s.AddImage(ctx, NewImage{ProductID: p.ID, Title: "Banner", FilePath: "a.png", Status: StatusPendingReview})
	require.NoError(t, err)

	reopened := newTestMemoryStore(t, WithSnapshot(files, DefaultSnapshotKey))
	got, err := reopened.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, "Banner", got.Title)

	next, err := reopened.AppendVersion(ctx, img.ID, "b.png", StatusPendingReview)
	require.NoError(t, err)
	assert.Greater(t, next.ID, img.Versions[0].ID)
	assert.Equal(t, 2, next.VersionNumber)
}

// failingStorage rejects writes while putFn returns an error.
type failingStorage struct {
	storage.Storage
	putFn func() error
}

func (f *failingStorage) Put(ctx context.Context, key string, content []byte, m *storage.Metadata) error {
	if err := f.putFn(); err != nil {
		return err
	}
	return f.Storage.Put(ctx, key, content, m)
}

func TestMemoryStoreRollsBackFailedWrite(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	fail := false
	files := &failingStorage{Storage: local, putFn: func() error {
		if fail {
			return errors.New("disk full")
		}
		return nil
	}}

	s := newTestMemoryStore(t, WithSnapshot(files, DefaultSnapshotKey), WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	}))
	_, _, p := seedCatalog(t, s)

	fail = true
	_, err = s.AddImage(ctx, NewImage{ProductID: p.ID, Title: "Banner", FilePath: "a.png", Status: StatusPendingReview})
	require.Error(t, err)

	images, err := s.ListImages(ctx, ImageFilter{})
	require.NoError(t, err)
	assert.Empty(t, images, "failed write leaves no partial state")

	fail = false
	img, err := s.AddImage(ctx, NewImage{ProductID: p.ID, Title: "Banner", FilePath: "a.png", Status: StatusPendingReview})
	require.NoError(t, err)
	assert.Equal(t, int64(1), img.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), img.CreatedAt)
}
