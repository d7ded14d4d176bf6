package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a mutation would break a reference.
	ErrConflict = errors.New("conflict")
	// ErrInvalidReference is returned when a parent id does not exist.
	ErrInvalidReference = errors.New("invalid reference")
)

// Store is the persistence surface the workflow engine commits to.
// Every mutation is durable when the call returns.
type Store interface {
	CatalogStore
	ImageStore
	CommentStore
	NotificationStore
	UserStore

	Ping(ctx context.Context) error
	Close() error
}

// CatalogStore holds municipalities, businesses, products and projects.
type CatalogStore interface {
	ListMunicipalities(ctx context.Context) ([]Municipality, error)
	GetMunicipality(ctx context.Context, id int64) (*Municipality, error)
	AddMunicipality(ctx context.Context, m Municipality) (*Municipality, error)
	UpdateMunicipality(ctx context.Context, id int64, u MunicipalityUpdate) error
	// DeleteMunicipality fails with ErrConflict while businesses reference it.
	DeleteMunicipality(ctx context.Context, id int64) error

	ListBusinesses(ctx context.Context, f BusinessFilter) ([]Business, error)
	GetBusiness(ctx context.Context, id int64) (*Business, error)
	AddBusiness(ctx context.Context, b Business) (*Business, error)
	UpdateBusiness(ctx context.Context, id int64, u BusinessUpdate) error
	// DeleteBusiness removes the business with its products and their images.
	DeleteBusiness(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	AddProduct(ctx context.Context, p Product) (*Product, error)
	UpdateProduct(ctx context.Context, id int64, u ProductUpdate) error
	// DeleteProduct removes the product with its images.
	DeleteProduct(ctx context.Context, id int64) error

	ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error)
	GetProject(ctx context.Context, id int64) (*Project, error)
	AddProject(ctx context.Context, p Project) (*Project, error)
	UpdateProject(ctx context.Context, id int64, u ProjectUpdate) error
	// DeleteProject unlinks its products without deleting them.
	DeleteProject(ctx context.Context, id int64) error
}

// ImageStore holds images and their append-only version history.
type ImageStore interface {
	ListImages(ctx context.Context, f ImageFilter) ([]ImageEntity, error)
	GetImage(ctx context.Context, id int64) (*ImageEntity, error)
	// AddImage creates the image together with version 1.
	AddImage(ctx context.Context, in NewImage) (*ImageEntity, error)
	// AppendVersion adds version max+1 to the image.
	AppendVersion(ctx context.Context, imageID int64, filePath string, status ImageStatus) (*ImageVersion, error)
	UpdateVersionStatus(ctx context.Context, imageID, versionID int64, status ImageStatus) error
	// DeleteImage removes the image with its versions and comments.
	DeleteImage(ctx context.Context, id int64) error
}

// CommentStore holds image threads and the product unread counters they drive.
type CommentStore interface {
	// ListComments returns the thread in insertion order.
	ListComments(ctx context.Context, imageID int64) ([]Comment, error)
	GetComment(ctx context.Context, id int64) (*Comment, error)
	// AddComment appends the comment and, for comments posted by the
	// municipality or business side, increments the unread counter of the
	// image's product in the same commit.
	AddComment(ctx context.Context, c Comment) (*Comment, error)
	// DeleteComment removes the comment and undoes its counter increment,
	// never below zero.
	DeleteComment(ctx context.Context, id int64) error
	// ResetUnreadComments sets the product's unread counter to zero.
	ResetUnreadComments(ctx context.Context, productID int64) error
}

// NotificationStore holds system notifications.
type NotificationStore interface {
	ListNotifications(ctx context.Context, f NotificationFilter) ([]Notification, error)
	GetNotification(ctx context.Context, id int64) (*Notification, error)
	AddNotification(ctx context.Context, n Notification) (*Notification, error)
	SetNotificationRead(ctx context.Context, id int64, read bool) error
}

// UserStore holds dashboard accounts.
type UserStore interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// AddUser fails with ErrConflict when the email is taken.
	AddUser(ctx context.Context, u User) (*User, error)
}

// NewImage is the input of ImageStore.AddImage.
type NewImage struct {
	ProductID        int64
	Title            string
	ExternalURL      *string
	CreatedByAdminID int64
	FilePath         string
	Status           ImageStatus
}

type BusinessFilter struct {
	MunicipalityID *int64
}

type ProductFilter struct {
	BusinessID *int64
	ProjectID  *int64
}

type ProjectFilter struct {
	MunicipalityID *int64
}

type ImageFilter struct {
	ProductID *int64
}

type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
}

// MunicipalityUpdate carries the fields to change; nil fields are kept.
type MunicipalityUpdate struct {
	Name *string `json:"name,omitempty"`
	Code *string `json:"code,omitempty"`
}

type BusinessUpdate struct {
	MunicipalityID *int64    `json:"municipalityId,omitempty"`
	Name           *string   `json:"name,omitempty"`
	Code           *string   `json:"code,omitempty"`
	Category       *string   `json:"category,omitempty"`
	Portals        *[]string `json:"portals,omitempty"`
	ContactName    *string   `json:"contactName,omitempty"`
	ContactEmail   *string   `json:"contactEmail,omitempty"`
	ContactPhone   *string   `json:"contactPhone,omitempty"`
}

type ProductUpdate struct {
	Name             *string           `json:"name,omitempty"`
	Description      *string           `json:"description,omitempty"`
	Genre            *string           `json:"genre,omitempty"`
	ProductCode      *string           `json:"productCode,omitempty"`
	Deadline         *time.Time        `json:"deadline,omitempty"`
	ClearDeadline    bool              `json:"clearDeadline,omitempty"`
	ProjectID        *int64            `json:"projectId,omitempty"`
	ClearProject     bool              `json:"clearProject,omitempty"`
	DonationAmount   *int64            `json:"donationAmount,omitempty"`
	TemperatureRange *TemperatureRange `json:"temperatureRange,omitempty"`
	HasMaterials     *bool             `json:"hasMaterials,omitempty"`
	Portals          *[]string         `json:"portals,omitempty"`
}

type ProjectUpdate struct {
	Name               *string        `json:"name,omitempty"`
	Status             *ProjectStatus `json:"status,omitempty"`
	CollectionDeadline *time.Time     `json:"collectionDeadline,omitempty"`
	Deadline           *time.Time     `json:"deadline,omitempty"`
}

func (u MunicipalityUpdate) apply(m *Municipality) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Code != nil {
		m.Code = *u.Code
	}
}

func (u BusinessUpdate) apply(b *Business) {
	if u.MunicipalityID != nil {
		b.MunicipalityID = *u.MunicipalityID
	}
	if u.Name != nil {
		b.Name = *u.Name
	}
	if u.Code != nil {
		b.Code = *u.Code
	}
	if u.Category != nil {
		b.Category = u.Category
	}
	if u.Portals != nil {
		b.Portals = NormalizePortals(*u.Portals)
	}
	if u.ContactName != nil {
		b.ContactName = u.ContactName
	}
	if u.ContactEmail != nil {
		b.ContactEmail = u.ContactEmail
	}
	if u.ContactPhone != nil {
		b.ContactPhone = u.ContactPhone
	}
}

func (u ProductUpdate) apply(p *Product) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Genre != nil {
		p.Genre = u.Genre
	}
	if u.ProductCode != nil {
		p.ProductCode = u.ProductCode
	}
	if u.ClearDeadline {
		p.Deadline = nil
	} else if u.Deadline != nil {
		d := *u.Deadline
		p.Deadline = &d
	}
	if u.ClearProject {
		p.ProjectID = nil
	} else if u.ProjectID != nil {
		id := *u.ProjectID
		p.ProjectID = &id
	}
	if u.DonationAmount != nil {
		p.DonationAmount = u.DonationAmount
	}
	if u.TemperatureRange != nil {
		p.TemperatureRange = u.TemperatureRange
	}
	if u.HasMaterials != nil {
		p.HasMaterials = u.HasMaterials
	}
	if u.Portals != nil {
		p.Portals = NormalizePortals(*u.Portals)
	}
}

func (u ProjectUpdate) apply(p *Project) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.CollectionDeadline != nil {
		p.CollectionDeadline = u.CollectionDeadline
	}
	if u.Deadline != nil {
		p.Deadline = u.Deadline
	}
}
