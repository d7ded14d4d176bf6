package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bannerdesk/banner-service/internal/storage"
)

// DefaultSnapshotKey is where MemoryStore persists its state.
const DefaultSnapshotKey = "snapshots/store.json"

type memoryData struct {
	Sequences      map[string]int64 `json:"sequences"`
	Municipalities []Municipality   `json:"municipalities"`
	Businesses     []Business       `json:"businesses"`
	Products       []Product        `json:"products"`
	Projects       []Project        `json:"projects"`
	Images         []ImageEntity    `json:"images"`
	Comments       []Comment        `json:"comments"`
	Notifications  []Notification   `json:"notifications"`
	Users          []User           `json:"users"`
}

// MemoryStore keeps all entities in process memory. When a snapshot backend
// is configured every mutation is written through before it returns; a
// failed write rolls the mutation back.
type MemoryStore struct {
	mu      sync.RWMutex
	data    memoryData
	snap    storage.Storage
	snapKey string
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithSnapshot persists the store to key in s.
func WithSnapshot(s storage.Storage, key string) MemoryOption {
	return func(m *MemoryStore) {
		m.snap = s
		m.snapKey = key
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates a store, loading the snapshot when one exists.
func NewMemoryStore(ctx context.Context, opts ...MemoryOption) (*MemoryStore, error) {
	m := &MemoryStore{
		data:    memoryData{Sequences: map[string]int64{}},
		snapKey: DefaultSnapshotKey,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.snap != nil {
		raw, err := m.snap.Get(ctx, m.snapKey)
		switch {
		case errors.Is(err, storage.ErrObjectNotFound):
		case err != nil:
			return nil, fmt.Errorf("load snapshot: %w", err)
		default:
			if err := json.Unmarshal(raw, &m.data); err != nil {
				return nil, fmt.Errorf("decode snapshot: %w", err)
			}
			if m.data.Sequences == nil {
				m.data.Sequences = map[string]int64{}
			}
		}
	}
	m.syncSequences()
	return m, nil
}

// syncSequences raises every sequence to at least the largest stored id.
func (m *MemoryStore) syncSequences() {
	raise := func(kind string, id int64) {
		if id > m.data.Sequences[kind] {
			m.data.Sequences[kind] = id
		}
	}
	for _, v := range m.data.Municipalities {
		raise("municipality", v.ID)
	}
	for _, v := range m.data.Businesses {
		raise("business", v.ID)
	}
	for _, v := range m.data.Products {
		raise("product", v.ID)
	}
	for _, v := range m.data.Projects {
		raise("project", v.ID)
	}
	for _, v := range m.data.Images {
		raise("image", v.ID)
		for _, ver := range v.Versions {
			raise("image_version", ver.ID)
		}
	}
	for _, v := range m.data.Comments {
		raise("comment", v.ID)
	}
	for _, v := range m.data.Notifications {
		raise("notification", v.ID)
	}
	for _, v := range m.data.Users {
		raise("user", v.ID)
	}
}

func (m *MemoryStore) nextID(kind string) int64 {
	m.data.Sequences[kind]++
	return m.data.Sequences[kind]
}

// mutate runs fn under the write lock and persists the result.
func (m *MemoryStore) mutate(ctx context.Context, fn func(d *memoryData) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var before []byte
	if m.snap != nil {
		var err error
		if before, err = json.Marshal(&m.data); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
	}

	if err := fn(&m.data); err != nil {
		if before != nil {
			m.restore(before)
		}
		return err
	}

	if m.snap == nil {
		return nil
	}
	after, err := json.Marshal(&m.data)
	if err != nil {
		m.restore(before)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.snap.Put(ctx, m.snapKey, after, &storage.Metadata{ContentType: "application/json"}); err != nil {
		m.restore(before)
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (m *MemoryStore) restore(raw []byte) {
	var d memoryData
	if err := json.Unmarshal(raw, &d); err == nil {
		m.data = d
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func indexByID[T any](items []T, id int64, idOf func(*T) int64) int {
	for i := range items {
		if idOf(&items[i]) == id {
			return i
		}
	}
	return -1
}

func municipalityID(v *Municipality) int64 { return v.ID }
func businessID(v *Business) int64         { return v.ID }
func productID(v *Product) int64           { return v.ID }
func projectID(v *Project) int64           { return v.ID }
func imageID(v *ImageEntity) int64         { return v.ID }
func commentID(v *Comment) int64           { return v.ID }
func notificationID(v *Notification) int64 { return v.ID }
func userID(v *User) int64                 { return v.ID }

func cloneBusiness(b Business) Business {
	b.Portals = slices.Clone(b.Portals)
	return b
}

func cloneProduct(p Product) Product {
	p.Portals = slices.Clone(p.Portals)
	if p.Deadline != nil {
		d := *p.Deadline
		p.Deadline = &d
	}
	return p
}

func cloneImage(i ImageEntity) ImageEntity {
	i.Versions = slices.Clone(i.Versions)
	return i
}

// Municipalities

func (m *MemoryStore) ListMunicipalities(ctx context.Context) ([]Municipality, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.data.Municipalities), nil
}

func (m *MemoryStore) GetMunicipality(ctx context.Context, id int64) (*Municipality, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := indexByID(m.data.Municipalities, id, municipalityID)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := m.data.Municipalities[i]
	return &v, nil
}

func (m *MemoryStore) AddMunicipality(ctx context.Context, in Municipality) (*Municipality, error) {
	err := m.mutate(ctx, func(d *memoryData) error {
		in.ID = m.nextID("municipality")
		in.CreatedAt = m.now()
		d.Municipalities = append(d.Municipalities, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (m *MemoryStore) UpdateMunicipality(ctx context.Context, id int64, u MunicipalityUpdate) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Municipalities, id, municipalityID)
		if i < 0 {
			return ErrNotFound
		}
		u.apply(&d.Municipalities[i])
		return nil
	})
}

func (m *MemoryStore) DeleteMunicipality(ctx context.Context, id int64) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Municipalities, id, municipalityID)
		if i < 0 {
			return ErrNotFound
		}
		for _, b := range d.Businesses {
			if b.MunicipalityID == id {
				return fmt.Errorf("%w: municipality %d has businesses", ErrConflict, id)
			}
		}
		for _, p := range d.Projects {
			if p.MunicipalityID == id {
				return fmt.Errorf("%w: municipality %d has projects", ErrConflict, id)
			}
		}
		d.Municipalities = slices.Delete(d.Municipalities, i, i+1)
		return nil
	})
}

// Businesses

func (m *MemoryStore) ListBusinesses(ctx context.Context, f BusinessFilter) ([]Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Business, 0, len(m.data.Businesses))
	for _, b := range m.data.Businesses {
		if f.MunicipalityID != nil && b.MunicipalityID != *f.MunicipalityID {
			continue
		}
		out = append(out, cloneBusiness(b))
	}
	return out, nil
}

func (m *MemoryStore) GetBusiness(ctx context.Context, id int64) (*Business, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := indexByID(m.data.Businesses, id, businessID)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := cloneBusiness(m.data.Businesses[i])
	return &v, nil
}

func (m *MemoryStore) AddBusiness(ctx context.Context, in Business) (*Business, error) {
	err := m.mutate(ctx, func(d *memoryData) error {
		if indexByID(d.Municipalities, in.MunicipalityID, municipalityID) < 0 {
			return fmt.Errorf("%w: municipality %d", ErrInvalidReference, in.MunicipalityID)
		}
		in.ID = m.nextID("business")
		in.Portals = NormalizePortals(in.Portals)
		in.CreatedAt = m.now()
		d.Businesses = append(d.Businesses, cloneBusiness(in))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (m *MemoryStore) UpdateBusiness(ctx context.Context, id int64, u BusinessUpdate) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Businesses, id, businessID)
		if i < 0 {
			return ErrNotFound
		}
		if u.MunicipalityID != nil && indexByID(d.Municipalities, *u.MunicipalityID, municipalityID) < 0 {
			return fmt.Errorf("%w: municipality %d", ErrInvalidReference, *u.MunicipalityID)
		}
		u.apply(&d.Businesses[i])
		return nil
	})
}

func (m *MemoryStore) DeleteBusiness(ctx context.Context, id int64) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Businesses, id, businessID)
		if i < 0 {
			return ErrNotFound
		}
		d.Businesses = slices.Delete(d.Businesses, i, i+1)
		var products []int64
		for _, p := range d.Products {
			if p.BusinessID == id {
				products = append(products, p.ID)
			}
		}
		for _, pid := range products {
			deleteProductLocked(d, pid)
		}
		return nil
	})
}

// Products

func (m *MemoryStore) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.data.Products))
	for _, p := range m.data.Products {
		if f.BusinessID != nil && p.BusinessID != *f.BusinessID {
			continue
		}
		if f.ProjectID != nil && (p.ProjectID == nil || *p.ProjectID != *f.ProjectID) {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	return out, nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id int64) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := indexByID(m.data.Products, id, productID)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := cloneProduct(m.data.Products[i])
	return &v, nil
}

func (m *MemoryStore) AddProduct(ctx context.Context, in Product) (*Product, error) {
	err := m.mutate(ctx, func(d *memoryData) error {
		if indexByID(d.Businesses, in.BusinessID, businessID) < 0 {
			return fmt.Errorf("%w: business %d", ErrInvalidReference, in.BusinessID)
		}
		if in.ProjectID != nil && indexByID(d.Projects, *in.ProjectID, projectID) < 0 {
			return fmt.Errorf("%w: project %d", ErrInvalidReference, *in.ProjectID)
		}
		in.ID = m.nextID("product")
		in.Portals = NormalizePortals(in.Portals)
		in.CreatedAt = m.now()
		d.Products = append(d.Products, cloneProduct(in))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, id int64, u ProductUpdate) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Products, id, productID)
		if i < 0 {
			return ErrNotFound
		}
		if !u.ClearProject && u.ProjectID != nil && indexByID(d.Projects, *u.ProjectID, projectID) < 0 {
			return fmt.Errorf("%w: project %d", ErrInvalidReference, *u.ProjectID)
		}
		u.apply(&d.Products[i])
		return nil
	})
}

func (m *MemoryStore) DeleteProduct(ctx context.Context, id int64) error {
	return m.mutate(ctx, func(d *memoryData) error {
		if indexByID(d.Products, id, productID) < 0 {
			return ErrNotFound
		}
		deleteProductLocked(d, id)
		return nil
	})
}

func deleteProductLocked(d *memoryData, id int64) {
	if i := indexByID(d.Products, id, productID); i >= 0 {
		d.Products = slices.Delete(d.Products, i, i+1)
	}
	var images []int64
	for _, img := range d.Images {
		if img.ProductID == id {
			images = append(images, img.ID)
		}
	}
	for _, iid := range images {
		deleteImageLocked(d, iid)
	}
}

// Projects

func (m *MemoryStore) ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Project, 0, len(m.data.Projects))
	for _, p := range m.data.Projects {
		if f.MunicipalityID != nil && p.MunicipalityID != *f.MunicipalityID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := indexByID(m.data.Projects, id, projectID)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := m.data.Projects[i]
	return &v, nil
}

func (m *MemoryStore) AddProject(ctx context.Context, in Project) (*Project, error) {
	err := m.mutate(ctx, func(d *memoryData) error {
		if indexByID(d.Municipalities, in.MunicipalityID, municipalityID) < 0 {
			return fmt.Errorf("%w: municipality %d", ErrInvalidReference, in.MunicipalityID)
		}
		if in.Status == "" {
			in.Status = ProjectNotStarted
		}
		in.ID = m.nextID("project")
		in.CreatedAt = m.now()
		d.Projects = append(d.Projects, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (m *MemoryStore) UpdateProject(ctx context.Context, id int64, u ProjectUpdate) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Projects, id, projectID)
		if i < 0 {
			return ErrNotFound
		}
		u.apply(&d.Projects[i])
		return nil
	})
}

func (m *MemoryStore) DeleteProject(ctx context.Context, id int64) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Projects, id, projectID)
		if i < 0 {
			return ErrNotFound
		}
		d.Projects = slices.Delete(d.Projects, i, i+1)
		for k := range d.Products {
			if p := d.Products[k].ProjectID; p != nil && *p == id {
				d.Products[k].ProjectID = nil
			}
		}
		return nil
	})
}

// Images

func (m *MemoryStore) ListImages(ctx context.Context, f ImageFilter) ([]ImageEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ImageEntity, 0, len(m.data.Images))
	for _, img := range m.data.Images {
		if f.ProductID != nil && img.ProductID != *f.ProductID {
			continue
		}
		out = append(out, cloneImage(img))
	}
	return out, nil
}

func (m *MemoryStore) GetImage(ctx context.Context, id int64) (*ImageEntity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := indexByID(m.data.Images, id, imageID)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := cloneImage(m.data.Images[i])
	return &v, nil
}

func (m *MemoryStore) AddImage(ctx context.Context, in NewImage) (*ImageEntity, error) {
	var img ImageEntity
	err := m.mutate(ctx, func(d *memoryData) error {
		if indexByID(d.Products, in.ProductID, productID) < 0 {
			return fmt.Errorf("%w: product %d", ErrInvalidReference, in.ProductID)
		}
		now := m.now()
		img = ImageEntity{
			ID:               m.nextID("image"),
			ProductID:        in.ProductID,
			Title:            in.Title,
			ExternalURL:      in.ExternalURL,
			CreatedByAdminID: in.CreatedByAdminID,
			CreatedAt:        now,
		}
		img.Versions = []ImageVersion{{
			ID:            m.nextID("image_version"),
			ImageID:       img.ID,
			VersionNumber: 1,
			FilePath:      in.FilePath,
			Status:        in.Status,
			SubmittedAt:   now,
			CreatedAt:     now,
		}}
		d.Images = append(d.Images, cloneImage(img))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (m *MemoryStore) AppendVersion(ctx context.Context, id int64, filePath string, status ImageStatus) (*ImageVersion, error) {
	var v ImageVersion
	err := m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Images, id, imageID)
		if i < 0 {
			return ErrNotFound
		}
		img := &d.Images[i]
		next := 1
		if cur := img.Current(); cur != nil {
			next = cur.VersionNumber + 1
		}
		now := m.now()
		v = ImageVersion{
			ID:            m.nextID("image_version"),
			ImageID:       id,
			VersionNumber: next,
			FilePath:      filePath,
			Status:        status,
			SubmittedAt:   now,
			CreatedAt:     now,
		}
		img.Versions = append(img.Versions, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *MemoryStore) UpdateVersionStatus(ctx context.Context, imgID, versionID int64, status ImageStatus) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Images, imgID, imageID)
		if i < 0 {
			return fmt.Errorf("%w: image %d", ErrNotFound, imgID)
		}
		v := d.Images[i].Version(versionID)
		if v == nil {
			return fmt.Errorf("%w: version %d of image %d", ErrNotFound, versionID, imgID)
		}
		v.Status = status
		return nil
	})
}

func (m *MemoryStore) DeleteImage(ctx context.Context, id int64) error {
	return m.mutate(ctx, func(d *memoryData) error {
		if indexByID(d.Images, id, imageID) < 0 {
			return ErrNotFound
		}
		deleteImageLocked(d, id)
		return nil
	})
}

func deleteImageLocked(d *memoryData, id int64) {
	if i := indexByID(d.Images, id, imageID); i >= 0 {
		d.Images = slices.Delete(d.Images, i, i+1)
	}
	d.Comments = slices.DeleteFunc(d.Comments, func(c Comment) bool { return c.ImageID == id })
}

// Comments

func (m *MemoryStore) ListComments(ctx context.Context, imgID int64) ([]Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Comment{}
	for _, c := range m.data.Comments {
		if c.ImageID == imgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetComment(ctx context.Context, id int64) (*Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := indexByID(m.data.Comments, id, commentID)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := m.data.Comments[i]
	return &v, nil
}

func (m *MemoryStore) AddComment(ctx context.Context, in Comment) (*Comment, error) {
	err := m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Images, in.ImageID, imageID)
		if i < 0 {
			return fmt.Errorf("%w: image %d", ErrInvalidReference, in.ImageID)
		}
		in.ID = m.nextID("comment")
		in.CreatedAt = m.now()
		d.Comments = append(d.Comments, in)
		if !in.CommenterType.CountsAsUnread() {
			return nil
		}
		if p := indexByID(d.Products, d.Images[i].ProductID, productID); p >= 0 {
			d.Products[p].UnreadCommentsCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (m *MemoryStore) DeleteComment(ctx context.Context, id int64) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Comments, id, commentID)
		if i < 0 {
			return ErrNotFound
		}
		c := d.Comments[i]
		d.Comments = slices.Delete(d.Comments, i, i+1)
		if !c.CommenterType.CountsAsUnread() {
			return nil
		}
		if img := indexByID(d.Images, c.ImageID, imageID); img >= 0 {
			if p := indexByID(d.Products, d.Images[img].ProductID, productID); p >= 0 && d.Products[p].UnreadCommentsCount > 0 {
				d.Products[p].UnreadCommentsCount--
			}
		}
		return nil
	})
}

func (m *MemoryStore) ResetUnreadComments(ctx context.Context, id int64) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Products, id, productID)
		if i < 0 {
			return ErrNotFound
		}
		d.Products[i].UnreadCommentsCount = 0
		return nil
	})
}

// Notifications

func (m *MemoryStore) ListNotifications(ctx context.Context, f NotificationFilter) ([]Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Notification{}
	for i := len(m.data.Notifications) - 1; i >= 0; i-- {
		n := m.data.Notifications[i]
		if f.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) GetNotification(ctx context.Context, id int64) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := indexByID(m.data.Notifications, id, notificationID)
	if i < 0 {
		return nil, ErrNotFound
	}
	n := m.data.Notifications[i]
	return &n, nil
}

func (m *MemoryStore) AddNotification(ctx context.Context, in Notification) (*Notification, error) {
	err := m.mutate(ctx, func(d *memoryData) error {
		in.ID = m.nextID("notification")
		in.CreatedAt = m.now()
		d.Notifications = append(d.Notifications, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (m *MemoryStore) SetNotificationRead(ctx context.Context, id int64, read bool) error {
	return m.mutate(ctx, func(d *memoryData) error {
		i := indexByID(d.Notifications, id, notificationID)
		if i < 0 {
			return ErrNotFound
		}
		d.Notifications[i].IsRead = read
		return nil
	})
}

// Users

func (m *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.data.Users), nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := indexByID(m.data.Users, id, userID)
	if i < 0 {
		return nil, ErrNotFound
	}
	v := m.data.Users[i]
	return &v, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.data.Users {
		if strings.EqualFold(u.Email, email) {
			v := u
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) AddUser(ctx context.Context, in User) (*User, error) {
	err := m.mutate(ctx, func(d *memoryData) error {
		for _, u := range d.Users {
			if strings.EqualFold(u.Email, in.Email) {
				return fmt.Errorf("%w: email %s is taken", ErrConflict, in.Email)
			}
		}
		in.ID = m.nextID("user")
		in.CreatedAt = m.now()
		d.Users = append(d.Users, in)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &in, nil
}
